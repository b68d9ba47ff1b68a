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

package controller

import (
	"fmt"

	"ofslice/src/lib"
)

type SwitchState uint8

const (
	StateConnecting SwitchState = iota
	StateFeaturesPending
	StateTableMissInstalled
	StateProactiveRulesInstalled
	StateActive
	StateDisconnected
)

// Disconnected is reachable from every state and is terminal.
var transitions = map[SwitchState][]SwitchState{
	StateConnecting:              {StateFeaturesPending},
	StateFeaturesPending:         {StateTableMissInstalled},
	StateTableMissInstalled:      {StateProactiveRulesInstalled, StateActive},
	StateProactiveRulesInstalled: {StateActive},
	StateActive:                  {},
	StateDisconnected:            {},
}

func (s SwitchState) CanTransition(next SwitchState) bool {
	if next == StateDisconnected {
		return s != StateDisconnected
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SwitchState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateFeaturesPending:
		return "FeaturesPending"
	case StateTableMissInstalled:
		return "TableMissInstalled"
	case StateProactiveRulesInstalled:
		return "ProactiveRulesInstalled"
	case StateActive:
		return "Active"
	case StateDisconnected:
		return "Disconnected"
	}
	return fmt.Sprintf("SwitchState(%d)", uint8(s))
}

func transitionError(from, to SwitchState) error {
	return fmt.Errorf("%w: %s -> %s", lib.ErrBadTransition, from, to)
}
