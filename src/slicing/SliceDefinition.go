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

package slicing

import (
	"fmt"
	"net"

	"ofslice/src/flowtable"
	"ofslice/src/packet"
)

const (
	DefaultTcpPriority uint16 = 1
	DefaultUdpPriority uint16 = 2
)

// AddressMatch selects which link-layer addresses a reactive slice rule pins.
type AddressMatch uint8

const (
	MatchNoAddress AddressMatch = iota
	MatchDestination
	MatchSourceDestination
)

func parseAddressMatch(val string, protocol packet.Kind) (AddressMatch, error) {
	switch val {
	case "":
		if protocol == packet.KindUDP {
			return MatchDestination, nil
		}
		return MatchSourceDestination, nil
	case "none":
		return MatchNoAddress, nil
	case "dst":
		return MatchDestination, nil
	case "src_dst":
		return MatchSourceDestination, nil
	}
	return MatchNoAddress, fmt.Errorf("unknown match_addresses %q", val)
}

// PathHop is one proactively installed hop of a slice path.
type PathHop struct {
	Dpid    uint64
	InPort  uint32 // 0 = any
	EthDst  net.HardwareAddr
	OutPort uint32
}

type SliceDefinition struct {
	ID           uint8
	Name         string
	Protocol     packet.Kind // KindTCP or KindUDP
	UdpPorts     []uint16    // empty = every UDP destination port
	IncludeIcmp  bool        // ICMP rides this slice
	Priority     uint16
	AddressMatch AddressMatch
	Egress       map[uint64]uint32
	Path         []PathHop
}

// Accepts reports whether the frame belongs to this slice.
func (me *SliceDefinition) Accepts(frame *packet.Frame) bool {
	if frame == nil || !frame.IsIPv4() {
		return false
	}
	switch frame.Kind {
	case packet.KindTCP:
		return me.Protocol == packet.KindTCP
	case packet.KindUDP:
		if me.Protocol != packet.KindUDP {
			return false
		}
		if len(me.UdpPorts) == 0 {
			return true
		}
		for _, p := range me.UdpPorts {
			if p == frame.DstPort {
				return true
			}
		}
		return false
	case packet.KindICMP:
		return me.IncludeIcmp
	}
	return false
}

// RuleFor builds the reactive rule steering this frame's flow to out.
func (me *SliceDefinition) RuleFor(inPort uint32, frame *packet.Frame, out uint32) flowtable.FlowRule {
	match := flowtable.Match{
		InPort:    inPort,
		Ethertype: packet.EtherTypeIPv4,
		IpProto:   frame.IPProto,
	}
	switch me.AddressMatch {
	case MatchDestination:
		match.MacDa = frame.Dst
	case MatchSourceDestination:
		match.MacDa = frame.Dst
		match.MacSa = frame.Src
	}
	if frame.Kind == packet.KindUDP {
		match.UdpDstPort = frame.DstPort
	}
	return flowtable.NewFlowRule(me.Priority, match, flowtable.Output(out))
}

// hopRules expands a path hop into one rule per protocol (and UDP port).
func (me *SliceDefinition) hopRules(hop PathHop) []flowtable.FlowRule {
	base := flowtable.Match{
		InPort:    hop.InPort,
		MacDa:     hop.EthDst,
		Ethertype: packet.EtherTypeIPv4,
	}
	var matches []flowtable.Match
	switch me.Protocol {
	case packet.KindTCP:
		m := base
		m.IpProto = packet.IPProtoTCP
		matches = append(matches, m)
	case packet.KindUDP:
		if len(me.UdpPorts) == 0 {
			m := base
			m.IpProto = packet.IPProtoUDP
			matches = append(matches, m)
		}
		for _, p := range me.UdpPorts {
			m := base
			m.IpProto = packet.IPProtoUDP
			m.UdpDstPort = p
			matches = append(matches, m)
		}
	}
	if me.IncludeIcmp {
		m := base
		m.IpProto = packet.IPProtoICMP
		matches = append(matches, m)
	}

	rules := make([]flowtable.FlowRule, 0, len(matches))
	for _, m := range matches {
		rules = append(rules, flowtable.NewFlowRule(me.Priority, m, flowtable.Output(hop.OutPort)))
	}
	return rules
}

func (me SliceDefinition) String() string {
	return fmt.Sprintf("Slice(ID: %d, name: %s, protocol: %s, priority: %d)", me.ID, me.Name, me.Protocol, me.Priority)
}
