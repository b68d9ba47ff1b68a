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

import (
	"fmt"
	"sort"

	"ofslice/src/lib"
	"ofslice/src/packet"

	log "github.com/sirupsen/logrus"
)

// FlowTable is the controller side copy of one switch's table 0. Rules are
// kept sorted by priority (descending) and then by insertion order. It is
// owned by a single switch worker and does no locking.
type FlowTable struct {
	ports   map[uint32]bool
	rules   []*FlowRule
	nextSeq uint64
}

func NewFlowTable(ports []uint32) *FlowTable {
	table := FlowTable{ports: make(map[uint32]bool)}
	for _, p := range ports {
		table.ports[p] = true
	}
	return &table
}

func (me *FlowTable) HasPort(port uint32) bool {
	return me.ports[port]
}

func (me *FlowTable) Ports() []uint32 {
	ports := make([]uint32, 0, len(me.ports))
	for p := range me.ports {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// Validate rejects rules referencing ports the switch does not have.
func (me *FlowTable) Validate(rule FlowRule) error {
	if rule.Match.InPort != 0 && !me.ports[rule.Match.InPort] {
		return fmt.Errorf("%w: in_port %d: %v", lib.ErrInvalidRule, rule.Match.InPort, lib.ErrUnknownPort)
	}
	if len(rule.Actions) == 0 {
		return fmt.Errorf("%w: no actions", lib.ErrInvalidRule)
	}
	for _, action := range rule.Actions {
		if action.Type == ActionOutput && !me.ports[action.Port] {
			return fmt.Errorf("%w: output %d: %v", lib.ErrInvalidRule, action.Port, lib.ErrUnknownPort)
		}
	}
	return nil
}

// Install adds the rule, or replaces the entry with the same priority and
// match in place. replaced is true in the latter case.
func (me *FlowTable) Install(rule FlowRule) (replaced bool, err error) {
	if err := me.Validate(rule); err != nil {
		return false, err
	}

	for _, existing := range me.rules {
		if existing.SameEntry(rule) {
			seq := existing.seq
			*existing = rule
			existing.seq = seq
			log.Tracef("[flow-table] replaced %s", rule)
			return true, nil
		}
	}

	entry := rule
	entry.seq = me.nextSeq
	me.nextSeq = me.nextSeq + 1

	// first position with a strictly lower priority keeps insertion order among equals
	i := sort.Search(len(me.rules), func(k int) bool {
		return me.rules[k].Priority < rule.Priority
	})
	me.rules = append(me.rules, nil)
	copy(me.rules[i+1:], me.rules[i:])
	me.rules[i] = &entry
	log.Tracef("[flow-table] installed %s", rule)
	return false, nil
}

// Lookup returns the highest priority rule matching the frame, or nil.
func (me *FlowTable) Lookup(inPort uint32, frame *packet.Frame) *FlowRule {
	for _, rule := range me.rules {
		if rule.Match.Matches(inPort, frame) {
			found := *rule
			return &found
		}
	}
	return nil
}

// Rules returns a copy of the table in lookup order.
func (me *FlowTable) Rules() []FlowRule {
	rules := make([]FlowRule, 0, len(me.rules))
	for _, rule := range me.rules {
		rules = append(rules, *rule)
	}
	return rules
}

func (me *FlowTable) Len() int {
	return len(me.rules)
}

func (me *FlowTable) Clear() {
	me.rules = nil
	me.nextSeq = 0
}

func (me *FlowTable) String() string {
	return fmt.Sprintf("FlowTable(ports: %v, rules: %v)", me.Ports(), me.Rules())
}
