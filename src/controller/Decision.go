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
)

type Outcome uint8

const (
	OutcomeIgnore Outcome = iota
	OutcomeOverride
	OutcomeKnownUnicast
	OutcomeSlice
	OutcomeFlood
	OutcomeDrop
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnore:
		return "ignore"
	case OutcomeOverride:
		return "override"
	case OutcomeKnownUnicast:
		return "known_unicast"
	case OutcomeSlice:
		return "slice"
	case OutcomeFlood:
		return "flood"
	case OutcomeDrop:
		return "drop"
	case OutcomeRejected:
		return "rejected"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// PacketIn is one punted frame as delivered by the openflow stack.
type PacketIn struct {
	InPort   uint32
	BufferID uint32
	Data     []byte
}

// Decision is what the engine wants done for one packet-in: at most one rule
// to push to the switch and the actions for the packet held by the switch.
type Decision struct {
	Outcome  Outcome
	SliceID  uint8 // set for OutcomeSlice
	Rule     *flowtable.FlowRule
	Replaced bool // Rule replaced an existing entry of the table
	Actions  []flowtable.Action
	InPort   uint32
	BufferID uint32
	Data     []byte
	Err      error // why the event was ignored or rejected
}

// ForwardsPacket reports whether a packet-out has to be sent.
func (me Decision) ForwardsPacket() bool {
	return len(me.Actions) > 0
}

func (me Decision) String() string {
	rule := "none"
	if me.Rule != nil {
		rule = me.Rule.String()
	}
	if me.Err != nil {
		return fmt.Sprintf("Decision(%s, in_port=%d, err=%v)", me.Outcome, me.InPort, me.Err)
	}
	return fmt.Sprintf("Decision(%s, in_port=%d, actions=%v, rule=%s)", me.Outcome, me.InPort, me.Actions, rule)
}
