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
	"bytes"
	"fmt"
	"net"
	"strings"

	"ofslice/src/packet"
)

// Small subset of openflow fields the slicing policy matches on.
// A zero value wildcards the field.
type Match struct {
	InPort     uint32           // Input port number
	MacSa      net.HardwareAddr // Mac source
	MacDa      net.HardwareAddr // Mac dest
	Ethertype  uint16           // Ethertype
	IpProto    uint8            // IP protocol, requires Ethertype IPv4
	UdpDstPort uint16           // UDP dest port, requires IpProto UDP
}

func (me Match) IsEmpty() bool {
	return me.InPort == 0 && len(me.MacSa) == 0 && len(me.MacDa) == 0 &&
		me.Ethertype == 0 && me.IpProto == 0 && me.UdpDstPort == 0
}

func (me Match) Equal(other Match) bool {
	return me.InPort == other.InPort &&
		bytes.Equal(me.MacSa, other.MacSa) &&
		bytes.Equal(me.MacDa, other.MacDa) &&
		me.Ethertype == other.Ethertype &&
		me.IpProto == other.IpProto &&
		me.UdpDstPort == other.UdpDstPort
}

// Matches reports whether a frame received on inPort satisfies every set field.
func (me Match) Matches(inPort uint32, frame *packet.Frame) bool {
	if me.InPort != 0 && me.InPort != inPort {
		return false
	}
	if frame == nil {
		return len(me.MacSa) == 0 && len(me.MacDa) == 0 &&
			me.Ethertype == 0 && me.IpProto == 0 && me.UdpDstPort == 0
	}
	if len(me.MacSa) != 0 && !bytes.Equal(me.MacSa, frame.Src) {
		return false
	}
	if len(me.MacDa) != 0 && !bytes.Equal(me.MacDa, frame.Dst) {
		return false
	}
	if me.Ethertype != 0 && me.Ethertype != frame.EtherType {
		return false
	}
	if me.IpProto != 0 && (!frame.IsIPv4() || me.IpProto != frame.IPProto) {
		return false
	}
	if me.UdpDstPort != 0 && (frame.Kind != packet.KindUDP || me.UdpDstPort != frame.DstPort) {
		return false
	}
	return true
}

// String renders the match in ovs-ofctl notation; it doubles as the rule key.
func (me Match) String() string {
	var fields []string
	if me.InPort != 0 {
		fields = append(fields, fmt.Sprintf("in_port=%d", me.InPort))
	}
	if len(me.MacSa) != 0 {
		fields = append(fields, "dl_src="+me.MacSa.String())
	}
	if len(me.MacDa) != 0 {
		fields = append(fields, "dl_dst="+me.MacDa.String())
	}
	if me.Ethertype != 0 {
		fields = append(fields, fmt.Sprintf("dl_type=0x%04x", me.Ethertype))
	}
	if me.IpProto != 0 {
		fields = append(fields, fmt.Sprintf("nw_proto=%d", me.IpProto))
	}
	if me.UdpDstPort != 0 {
		fields = append(fields, fmt.Sprintf("tp_dst=%d", me.UdpDstPort))
	}
	if len(fields) == 0 {
		return "any"
	}
	return strings.Join(fields, ",")
}
