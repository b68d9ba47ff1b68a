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
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// BuildFrame serializes an ethernet frame carrying an IPv4 packet of the given
// kind. KindOther yields an ARP request.
func BuildFrame(src, dst net.HardwareAddr, kind Kind, dstPort uint16) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		TTL:     64,
		SrcIP:   net.IP{10, 0, 0, 1},
		DstIP:   net.IP{10, 0, 0, 2},
	}

	switch kind {
	case KindTCP:
		ip.Protocol = layers.IPProtocolTCP
		gopacket.SerializeLayers(buf, opts, eth, ip,
			&layers.TCP{SrcPort: 40000, DstPort: layers.TCPPort(dstPort), Window: 1024},
			gopacket.Payload([]byte("ofslice")))
	case KindUDP:
		ip.Protocol = layers.IPProtocolUDP
		gopacket.SerializeLayers(buf, opts, eth, ip,
			&layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)},
			gopacket.Payload([]byte("ofslice")))
	case KindICMP:
		ip.Protocol = layers.IPProtocolICMPv4
		gopacket.SerializeLayers(buf, opts, eth, ip,
			&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1},
			gopacket.Payload([]byte("ofslice")))
	default:
		eth.EthernetType = layers.EthernetTypeARP
		gopacket.SerializeLayers(buf, opts, eth,
			&layers.ARP{
				AddrType:          layers.LinkTypeEthernet,
				Protocol:          layers.EthernetTypeIPv4,
				HwAddressSize:     6,
				ProtAddressSize:   4,
				Operation:         layers.ARPRequest,
				SourceHwAddress:   src,
				SourceProtAddress: []byte{10, 0, 0, 1},
				DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
				DstProtAddress:    []byte{10, 0, 0, 2},
			})
	}
	return buf.Bytes()
}

// BuildLLDP serializes a minimal LLDP frame to the nearest-bridge group address.
func BuildLLDP(src net.HardwareAddr) []byte {
	buf := gopacket.NewSerializeBuffer()
	gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&layers.Ethernet{
			SrcMAC:       src,
			DstMAC:       net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x0e},
			EthernetType: layers.EthernetTypeLinkLayerDiscovery,
		},
		gopacket.Payload([]byte{0x02, 0x07, 0x04, 0, 0, 0, 0, 0, 1, 0, 0}),
	)
	return buf.Bytes()
}
