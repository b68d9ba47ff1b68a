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

	"ofslice/src/flowtable"
	"ofslice/src/learning"
	"ofslice/src/lib"
	"ofslice/src/slicing"

	log "github.com/sirupsen/logrus"
)

// Switch is the controller side state of one connected datapath. It is
// created on connect, owned by that switch's worker and dropped on
// disconnect.
type Switch struct {
	Dpid  uint64
	Info  *slicing.SwitchInfo
	Table *flowtable.FlowTable
	Macs  *learning.MacTable

	state  SwitchState
	logger *log.Entry
}

func newSwitch(info *slicing.SwitchInfo, ports []uint32) *Switch {
	sw := Switch{
		Dpid:  info.Dpid,
		Info:  info,
		Table: flowtable.NewFlowTable(ports),
		Macs:  learning.NewMacTable(),
		state: StateConnecting,
	}
	sw.logger = log.WithFields(log.Fields{
		"dpid": lib.DpidString(info.Dpid),
		"role": info.Role(),
	})
	return &sw
}

func (me *Switch) State() SwitchState {
	return me.state
}

func (me *Switch) IsActive() bool {
	return me.state == StateActive
}

func (me *Switch) transition(next SwitchState) error {
	if !me.state.CanTransition(next) {
		return transitionError(me.state, next)
	}
	me.logger.Debugf("state %s -> %s", me.state, next)
	me.state = next
	return nil
}

func (me *Switch) String() string {
	return fmt.Sprintf("Switch(dpid: %s, state: %s, rules: %d, macs: %d)",
		lib.DpidString(me.Dpid), me.state, me.Table.Len(), me.Macs.Len())
}
