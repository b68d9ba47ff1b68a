/*
# Copyright 2022-present Ralf Kundel
#
# Licensed under the Apache License, Version 2.0 (the "License");
# you may not use this file except in compliance with the License.
# You may obtain a copy of the License at
#
#    http://www.apache.org/licenses/LICENSE-2.0
#
# Unless required by applicable law or agreed to in writing, software
# distributed under the License is distributed on an "AS IS" BASIS,
# WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
# See the License for the specific language governing permissions and
# limitations under the License.
*/

package flowtable

import "fmt"

type ActionType uint8

const (
	ActionOutput ActionType = iota
	ActionFlood
	ActionDrop
	ActionController
)

type Action struct {
	Type ActionType
	Port uint32 // only for ActionOutput
}

func Output(port uint32) Action {
	return Action{Type: ActionOutput, Port: port}
}

func Flood() Action {
	return Action{Type: ActionFlood}
}

func Drop() Action {
	return Action{Type: ActionDrop}
}

func ToController() Action {
	return Action{Type: ActionController}
}

func (me Action) String() string {
	switch me.Type {
	case ActionOutput:
		return fmt.Sprintf("output:%d", me.Port)
	case ActionFlood:
		return "FLOOD"
	case ActionController:
		return "CONTROLLER"
	}
	return "drop"
}
