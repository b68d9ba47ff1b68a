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

package packet

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
	EtherTypeLLDP uint16 = 0x88cc

	IPProtoICMP uint8 = 0x01
	IPProtoTCP  uint8 = 0x06
	IPProtoUDP  uint8 = 0x11

	tcpMinHeaderLen = 20
	udpHeaderLen    = 8
)

var ErrNoLinkLayer = errors.New("no parsable link-layer header")

// Kind is the transport class of a frame. Only IPv4 frames are TCP, UDP or ICMP.
type Kind uint8

const (
	KindOther Kind = iota
	KindTCP
	KindUDP
	KindICMP
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	case KindICMP:
		return "icmp"
	}
	return "other"
}

// Frame is a packet-in payload decoded once into the fields the forwarding
// policy looks at.
type Frame struct {
	Src       net.HardwareAddr
	Dst       net.HardwareAddr
	EtherType uint16
	Kind      Kind
	IPProto   uint8
	SrcPort   uint16
	DstPort   uint16
}

// Parse decodes an ethernet frame. It only fails when there is no ethernet
// header; anything undecodable above layer 2 is reported as KindOther.
func Parse(data []byte) (*Frame, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, ErrNoLinkLayer
	}
	eth, _ := ethLayer.(*layers.Ethernet)
	if len(eth.SrcMAC) != 6 || len(eth.DstMAC) != 6 {
		return nil, ErrNoLinkLayer
	}

	frame := &Frame{
		Src:       eth.SrcMAC,
		Dst:       eth.DstMAC,
		EtherType: uint16(eth.EthernetType),
		Kind:      KindOther,
	}
	if frame.EtherType != EtherTypeIPv4 {
		return frame, nil
	}

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return frame, nil
	}
	ip, _ := ipLayer.(*layers.IPv4)
	frame.IPProto = uint8(ip.Protocol)

	// a cut off or undecodable transport header carries no usable ports
	if packet.ErrorLayer() != nil || packet.Metadata().Truncated {
		return frame, nil
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp, _ := tcpLayer.(*layers.TCP)
		if len(tcp.Contents) < tcpMinHeaderLen {
			return frame, nil
		}
		frame.Kind = KindTCP
		frame.SrcPort = uint16(tcp.SrcPort)
		frame.DstPort = uint16(tcp.DstPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp, _ := udpLayer.(*layers.UDP)
		if len(udp.Contents) < udpHeaderLen {
			return frame, nil
		}
		frame.Kind = KindUDP
		frame.SrcPort = uint16(udp.SrcPort)
		frame.DstPort = uint16(udp.DstPort)
	} else if packet.Layer(layers.LayerTypeICMPv4) != nil {
		frame.Kind = KindICMP
	}
	return frame, nil
}

func (me *Frame) IsLLDP() bool {
	return me.EtherType == EtherTypeLLDP
}

func (me *Frame) IsIPv4() bool {
	return me.EtherType == EtherTypeIPv4
}

func (me *Frame) String() string {
	switch me.Kind {
	case KindTCP, KindUDP:
		return fmt.Sprintf("%s %s:%d > %s:%d", me.Kind, me.Src, me.SrcPort, me.Dst, me.DstPort)
	case KindICMP:
		return fmt.Sprintf("icmp %s > %s", me.Src, me.Dst)
	}
	return fmt.Sprintf("ethertype 0x%04x %s > %s", me.EtherType, me.Src, me.Dst)
}
