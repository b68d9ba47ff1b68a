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
	"net"

	"ofslice/src/flowtable"
	"ofslice/src/lib"
	"ofslice/src/packet"
	"ofslice/src/slicing"
)

// PriorityReactive is used for override, unicast and flood rules. Slice rules
// carry the priority of their slice.
const PriorityReactive uint16 = 1

// Engine holds the forwarding policy. It keeps no per switch state itself;
// every call works on the Switch handed in, so one Engine serves all workers.
type Engine struct {
	reg *slicing.Registry
}

func NewEngine(reg *slicing.Registry) *Engine {
	return &Engine{reg: reg}
}

func (me *Engine) Registry() *slicing.Registry {
	return me.reg
}

// Connect builds the state of a newly connected switch and returns the rules
// that have to be pushed to it, table-miss first.
func (me *Engine) Connect(dpid uint64, reported []uint32) (*Switch, []flowtable.FlowRule, error) {
	info, ok := me.reg.Switch(dpid)
	if !ok {
		return nil, nil, fmt.Errorf("dpid %s: %w", lib.DpidString(dpid), lib.ErrUnknownSwitch)
	}
	sw := newSwitch(info, effectivePorts(info.Ports, reported))
	if err := sw.transition(StateFeaturesPending); err != nil {
		return nil, nil, err
	}

	tableMiss := flowtable.TableMissRule()
	if _, err := sw.Table.Install(tableMiss); err != nil {
		return nil, nil, err
	}
	rules := []flowtable.FlowRule{tableMiss}
	if err := sw.transition(StateTableMissInstalled); err != nil {
		return nil, nil, err
	}

	for mac, port := range info.StaticMacs {
		hw, err := net.ParseMAC(mac)
		if err != nil {
			continue
		}
		sw.Macs.Observe(hw, port)
	}

	if info.Boundary || info.Edge {
		for _, rule := range me.reg.BoundaryRulesFor(dpid) {
			if _, err := sw.Table.Install(rule); err != nil {
				sw.logger.Warnf("skipping proactive rule %s: %v", rule, err)
				continue
			}
			rules = append(rules, rule)
		}
		if err := sw.transition(StateProactiveRulesInstalled); err != nil {
			return nil, nil, err
		}
	}

	if err := sw.transition(StateActive); err != nil {
		return nil, nil, err
	}
	sw.logger.Infof("switch active: %d rules, %d static macs", len(rules), sw.Macs.Len())
	return sw, rules, nil
}

// Decide runs the forwarding pipeline for one packet-in. The selected rule is
// already in sw.Table when Decide returns.
func (me *Engine) Decide(sw *Switch, pin PacketIn) Decision {
	d := Decision{
		Outcome:  OutcomeIgnore,
		InPort:   pin.InPort,
		BufferID: pin.BufferID,
		Data:     pin.Data,
	}
	if sw == nil || !sw.IsActive() {
		d.Err = lib.ErrNotConnected
		return d
	}
	if !sw.Table.HasPort(pin.InPort) {
		d.Err = fmt.Errorf("in_port %d: %w", pin.InPort, lib.ErrUnknownPort)
		return d
	}
	frame, err := packet.Parse(pin.Data)
	if err != nil {
		d.Err = err
		return d
	}
	if frame.IsLLDP() {
		return d
	}
	sw.logger.Tracef("packet-in on port %d: %s", pin.InPort, frame)

	if !lib.IsGroupMac(frame.Src) {
		sw.Macs.Observe(frame.Src, pin.InPort)
	}

	rule := me.selectRule(sw, pin.InPort, frame, &d)
	if rule == nil {
		return d
	}
	rule.IdleTimeout, rule.HardTimeout = me.reg.Timeouts()

	replaced, err := sw.Table.Install(*rule)
	if err != nil {
		sw.logger.Warnf("rejected %s: %v", rule, err)
		d.Outcome = OutcomeRejected
		d.Err = err
		return d
	}
	d.Rule = rule
	d.Replaced = replaced
	d.Actions = rule.Actions
	return d
}

// selectRule walks override, known unicast, slice and fallback in that order.
// A nil rule means the packet is dropped.
func (me *Engine) selectRule(sw *Switch, inPort uint32, frame *packet.Frame, d *Decision) *flowtable.FlowRule {
	if out, ok := me.reg.Override(sw.Dpid, inPort); ok {
		d.Outcome = OutcomeOverride
		rule := flowtable.NewFlowRule(PriorityReactive, flowtable.Match{InPort: inPort}, flowtable.Output(out))
		return &rule
	}

	if out, ok := sw.Macs.Resolve(frame.Dst); ok {
		d.Outcome = OutcomeKnownUnicast
		rule := flowtable.NewFlowRule(PriorityReactive, flowtable.Match{MacDa: frame.Dst}, flowtable.Output(out))
		return &rule
	}

	if slice := me.reg.Classify(frame); slice != nil {
		if out, ok := me.reg.EgressFor(sw.Dpid, slice.ID); ok {
			d.Outcome = OutcomeSlice
			d.SliceID = slice.ID
			rule := slice.RuleFor(inPort, frame, out)
			return &rule
		}
	}

	if sw.Info.Edge {
		d.Outcome = OutcomeDrop
		return nil
	}
	d.Outcome = OutcomeFlood
	rule := flowtable.NewFlowRule(PriorityReactive, flowtable.Match{InPort: inPort}, flowtable.Flood())
	return &rule
}

// Disconnect tears down the switch state. Calling it twice is harmless.
func (me *Engine) Disconnect(sw *Switch) {
	if sw == nil || sw.state == StateDisconnected {
		return
	}
	if err := sw.transition(StateDisconnected); err != nil {
		sw.logger.Warnln(err)
		return
	}
	sw.Table.Clear()
	sw.Macs.Clear()
	sw.logger.Infoln("switch disconnected")
}

// effectivePorts is the configured port set limited to what the switch
// reported. An empty report keeps the configured set.
func effectivePorts(configured []uint32, reported []uint32) []uint32 {
	if len(reported) == 0 {
		return configured
	}
	seen := make(map[uint32]bool, len(reported))
	for _, p := range reported {
		seen[p] = true
	}
	var ports []uint32
	for _, p := range configured {
		if seen[p] {
			ports = append(ports, p)
		}
	}
	return ports
}
