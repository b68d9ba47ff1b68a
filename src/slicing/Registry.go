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
	"sort"

	"ofslice/src/flowtable"
	"ofslice/src/lib"
	"ofslice/src/packet"

	log "github.com/sirupsen/logrus"
)

// TopologyOverride renumbers ports on a switch that only patches traffic
// between its neighbours.
type TopologyOverride struct {
	Remap map[uint32]uint32
}

func (me *TopologyOverride) Lookup(inPort uint32) (uint32, bool) {
	if me == nil {
		return 0, false
	}
	out, ok := me.Remap[inPort]
	return out, ok
}

type SwitchInfo struct {
	Dpid       uint64
	Name       string
	Ports      []uint32
	Boundary   bool
	Edge       bool
	Override   *TopologyOverride
	StaticMacs map[string]uint32
}

func (me *SwitchInfo) Role() string {
	switch {
	case me.Boundary && me.Edge:
		return "boundary+edge"
	case me.Boundary:
		return "boundary"
	case me.Edge:
		return "edge"
	}
	return "interior"
}

// Registry is the static slicing configuration. It is built once at startup,
// never mutated and safe for concurrent readers.
type Registry struct {
	switches    map[uint64]*SwitchInfo
	slices      []*SliceDefinition
	idleTimeout uint16
	hardTimeout uint16
}

func NewRegistry(cfg *lib.SliceConfiguration) (*Registry, error) {
	reg := Registry{
		switches:    make(map[uint64]*SwitchInfo),
		idleTimeout: cfg.FlowIdleTimeout,
		hardTimeout: cfg.FlowHardTimeout,
	}

	for _, sc := range cfg.Switches {
		info, err := newSwitchInfo(sc)
		if err != nil {
			return nil, fmt.Errorf("%w: switch %d: %v", lib.ErrInvalidConfig, sc.Dpid, err)
		}
		if _, dup := reg.switches[info.Dpid]; dup {
			return nil, fmt.Errorf("%w: duplicate switch %d", lib.ErrInvalidConfig, info.Dpid)
		}
		reg.switches[info.Dpid] = info
	}

	ids := make(map[uint8]bool)
	for _, sc := range cfg.Slices {
		slice, err := reg.newSlice(sc)
		if err != nil {
			return nil, fmt.Errorf("%w: slice %d (%s): %v", lib.ErrInvalidConfig, sc.Id, sc.Name, err)
		}
		if ids[slice.ID] {
			return nil, fmt.Errorf("%w: duplicate slice id %d", lib.ErrInvalidConfig, slice.ID)
		}
		ids[slice.ID] = true
		reg.slices = append(reg.slices, slice)
	}

	log.Infof("Slice registry: %d switches, %d slices", len(reg.switches), len(reg.slices))
	return &reg, nil
}

func newSwitchInfo(sc lib.SwitchConfig) (*SwitchInfo, error) {
	if sc.Dpid == 0 {
		return nil, fmt.Errorf("dpid must not be 0")
	}
	if len(sc.Ports) == 0 {
		return nil, fmt.Errorf("no ports")
	}
	info := SwitchInfo{
		Dpid:       sc.Dpid,
		Name:       sc.Name,
		StaticMacs: make(map[string]uint32),
	}
	ports := make(map[uint32]bool)
	for _, p := range sc.Ports {
		if p == 0 || ports[p] {
			return nil, fmt.Errorf("invalid or duplicate port %d", p)
		}
		ports[p] = true
		info.Ports = append(info.Ports, p)
	}
	sort.Slice(info.Ports, func(i, j int) bool { return info.Ports[i] < info.Ports[j] })

	for _, role := range sc.Roles {
		switch role {
		case "boundary":
			info.Boundary = true
		case "edge":
			info.Edge = true
		case "interior":
		default:
			return nil, fmt.Errorf("unknown role %q", role)
		}
	}

	if len(sc.PortRemap) > 0 {
		override := TopologyOverride{Remap: make(map[uint32]uint32)}
		for in, out := range sc.PortRemap {
			if !ports[in] || !ports[out] {
				return nil, fmt.Errorf("port_remap %d->%d: %v", in, out, lib.ErrUnknownPort)
			}
			override.Remap[in] = out
		}
		info.Override = &override
	}

	for mac, port := range sc.StaticMacs {
		hw, err := lib.ParseMac(mac)
		if err != nil {
			return nil, err
		}
		if !ports[port] {
			return nil, fmt.Errorf("static mac %s on port %d: %v", mac, port, lib.ErrUnknownPort)
		}
		info.StaticMacs[hw.String()] = port
	}
	return &info, nil
}

func (me *Registry) newSlice(sc lib.SliceConfig) (*SliceDefinition, error) {
	slice := SliceDefinition{
		ID:          sc.Id,
		Name:        sc.Name,
		UdpPorts:    sc.UdpPorts,
		IncludeIcmp: sc.IncludeIcmp,
		Priority:    sc.Priority,
		Egress:      make(map[uint64]uint32),
	}
	switch sc.Protocol {
	case "tcp":
		slice.Protocol = packet.KindTCP
		if slice.Priority == 0 {
			slice.Priority = DefaultTcpPriority
		}
		if len(sc.UdpPorts) > 0 {
			return nil, fmt.Errorf("udp_ports on a tcp slice")
		}
	case "udp":
		slice.Protocol = packet.KindUDP
		if slice.Priority == 0 {
			slice.Priority = DefaultUdpPriority
		}
	default:
		return nil, fmt.Errorf("unknown protocol %q", sc.Protocol)
	}

	var err error
	slice.AddressMatch, err = parseAddressMatch(sc.MatchAddresses, slice.Protocol)
	if err != nil {
		return nil, err
	}

	for dpid, port := range sc.Egress {
		if err := me.checkPort(dpid, port); err != nil {
			return nil, fmt.Errorf("egress: %v", err)
		}
		slice.Egress[dpid] = port
	}

	for _, h := range sc.Path {
		if err := me.checkPort(h.Dpid, h.OutPort); err != nil {
			return nil, fmt.Errorf("path: %v", err)
		}
		// proactive rules only go to boundary and edge switches
		if info := me.switches[h.Dpid]; !info.Boundary && !info.Edge {
			return nil, fmt.Errorf("path: switch %d is %s", h.Dpid, info.Role())
		}
		if h.InPort != 0 {
			if err := me.checkPort(h.Dpid, h.InPort); err != nil {
				return nil, fmt.Errorf("path: %v", err)
			}
		}
		hop := PathHop{Dpid: h.Dpid, InPort: h.InPort, OutPort: h.OutPort}
		if h.EthDst != "" {
			hop.EthDst, err = lib.ParseMac(h.EthDst)
			if err != nil {
				return nil, fmt.Errorf("path: %v", err)
			}
		}
		slice.Path = append(slice.Path, hop)
	}
	return &slice, nil
}

func (me *Registry) checkPort(dpid uint64, port uint32) error {
	info, ok := me.switches[dpid]
	if !ok {
		return fmt.Errorf("switch %d: %v", dpid, lib.ErrUnknownSwitch)
	}
	for _, p := range info.Ports {
		if p == port {
			return nil
		}
	}
	return fmt.Errorf("switch %d port %d: %v", dpid, port, lib.ErrUnknownPort)
}

func (me *Registry) Switch(dpid uint64) (*SwitchInfo, bool) {
	info, ok := me.switches[dpid]
	return info, ok
}

func (me *Registry) Dpids() []uint64 {
	dpids := make([]uint64, 0, len(me.switches))
	for dpid := range me.switches {
		dpids = append(dpids, dpid)
	}
	sort.Slice(dpids, func(i, j int) bool { return dpids[i] < dpids[j] })
	return dpids
}

func (me *Registry) Slices() []*SliceDefinition {
	return me.slices
}

func (me *Registry) Timeouts() (idle uint16, hard uint16) {
	return me.idleTimeout, me.hardTimeout
}

// Override returns the remapped egress for a port of a patching switch.
func (me *Registry) Override(dpid uint64, inPort uint32) (uint32, bool) {
	info, ok := me.switches[dpid]
	if !ok {
		return 0, false
	}
	return info.Override.Lookup(inPort)
}

// Classify returns the slice a frame belongs to, or nil. TCP slices are
// consulted before UDP slices, so ICMP lands on a TCP slice carrying it first.
func (me *Registry) Classify(frame *packet.Frame) *SliceDefinition {
	if frame == nil || !frame.IsIPv4() {
		return nil
	}
	for _, protocol := range []packet.Kind{packet.KindTCP, packet.KindUDP} {
		for _, slice := range me.slices {
			if slice.Protocol == protocol && slice.Accepts(frame) {
				return slice
			}
		}
	}
	return nil
}

func (me *Registry) EgressFor(dpid uint64, sliceID uint8) (uint32, bool) {
	for _, slice := range me.slices {
		if slice.ID == sliceID {
			port, ok := slice.Egress[dpid]
			return port, ok
		}
	}
	return 0, false
}

// BoundaryRulesFor lists the proactive slice path rules for a switch.
func (me *Registry) BoundaryRulesFor(dpid uint64) []flowtable.FlowRule {
	var rules []flowtable.FlowRule
	for _, slice := range me.slices {
		for _, hop := range slice.Path {
			if hop.Dpid == dpid {
				rules = append(rules, slice.hopRules(hop)...)
			}
		}
	}
	return rules
}
