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
	"strings"

	"github.com/cespare/xxhash"
)

const (
	PriorityTableMiss uint16 = 0
)

type FlowRule struct {
	Priority    uint16
	Match       Match
	Actions     []Action
	IdleTimeout uint16 // seconds, 0 = never
	HardTimeout uint16 // seconds, 0 = never
	Cookie      uint64

	seq uint64 // insertion order within the table
}

// NewFlowRule derives the cookie from priority and match, so reinstalling the
// same entry always carries the same cookie.
func NewFlowRule(priority uint16, match Match, actions ...Action) FlowRule {
	rule := FlowRule{
		Priority: priority,
		Match:    match,
		Actions:  actions,
	}
	rule.Cookie = xxhash.Sum64String(rule.Key())
	return rule
}

func TableMissRule() FlowRule {
	return NewFlowRule(PriorityTableMiss, Match{}, ToController())
}

func (me FlowRule) Key() string {
	return fmt.Sprintf("%d/%s", me.Priority, me.Match)
}

func (me FlowRule) IsTableMiss() bool {
	return me.Priority == PriorityTableMiss && me.Match.IsEmpty()
}

// SameEntry reports whether other would replace this rule on install.
func (me FlowRule) SameEntry(other FlowRule) bool {
	return me.Priority == other.Priority && me.Match.Equal(other.Match)
}

func (me FlowRule) String() string {
	actions := make([]string, 0, len(me.Actions))
	for _, a := range me.Actions {
		actions = append(actions, a.String())
	}
	return fmt.Sprintf("FlowRule(priority=%d, %s, actions=%s)", me.Priority, me.Match, strings.Join(actions, ","))
}
