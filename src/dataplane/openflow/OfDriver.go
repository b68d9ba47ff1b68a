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

package openflow

import (
	"fmt"
	"sync"

	"ofslice/src/dataplane"
	"ofslice/src/flowtable"
	"ofslice/src/lib"

	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	log "github.com/sirupsen/logrus"
)

// OFPCML_NO_BUFFER: send the complete frame to the controller
const controllerMaxLen uint16 = 0xffff

// Sender delivers one message on a switch control channel.
type Sender interface {
	Send(msg util.Message) error
}

// Driver implements dataplane.DataPlaneInterface on top of the control
// channels registered by the Controller.
type Driver struct {
	mu      sync.RWMutex
	senders map[uint64]Sender
}

var _ dataplane.DataPlaneInterface = (*Driver)(nil)

func NewDriver() *Driver {
	return &Driver{senders: make(map[uint64]Sender)}
}

func (me *Driver) Register(dpid uint64, s Sender) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.senders[dpid] = s
}

// Unregister removes s if it is still the channel of dpid. It returns false
// when a newer connection already took over.
func (me *Driver) Unregister(dpid uint64, s Sender) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if cur, ok := me.senders[dpid]; !ok || cur != s {
		return false
	}
	delete(me.senders, dpid)
	return true
}

func (me *Driver) sender(dpid uint64) (Sender, error) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	s, ok := me.senders[dpid]
	if !ok {
		return nil, fmt.Errorf("dpid %s: %w", lib.DpidString(dpid), lib.ErrNotConnected)
	}
	return s, nil
}

func (me *Driver) InstallRule(dpid uint64, rule flowtable.FlowRule) error {
	s, err := me.sender(dpid)
	if err != nil {
		return err
	}
	flowMod, err := FlowModFor(rule)
	if err != nil {
		return err
	}
	log.Tracef("[%s] flow_mod %s", lib.DpidString(dpid), rule)
	return s.Send(flowMod)
}

func (me *Driver) SendPacket(dpid uint64, out dataplane.PacketOut) error {
	s, err := me.sender(dpid)
	if err != nil {
		return err
	}
	packetOut, err := PacketOutFor(out)
	if err != nil {
		return err
	}
	return s.Send(packetOut)
}

// FlowModFor translates a rule into an OFPFC_ADD for table 0.
func FlowModFor(rule flowtable.FlowRule) (*openflow13.FlowMod, error) {
	flowMod := openflow13.NewFlowMod()
	flowMod.TableId = 0
	flowMod.Command = openflow13.FC_ADD
	flowMod.Priority = rule.Priority
	flowMod.Cookie = rule.Cookie
	flowMod.IdleTimeout = rule.IdleTimeout
	flowMod.HardTimeout = rule.HardTimeout
	flowMod.Match = xlateMatch(rule.Match)

	// no instruction at all means drop
	actions, err := xlateActions(rule.Actions)
	if err != nil {
		return nil, err
	}
	if len(actions) > 0 {
		instr := openflow13.NewInstrApplyActions()
		for _, act := range actions {
			if err := instr.AddAction(act, false); err != nil {
				return nil, err
			}
		}
		flowMod.AddInstruction(instr)
	}
	return flowMod, nil
}

func PacketOutFor(out dataplane.PacketOut) (*openflow13.PacketOut, error) {
	packetOut := openflow13.NewPacketOut()
	packetOut.BufferId = out.BufferID
	packetOut.InPort = out.InPort

	actions, err := xlateActions(out.Actions)
	if err != nil {
		return nil, err
	}
	for _, act := range actions {
		packetOut.AddAction(act)
	}
	if out.BufferID == dataplane.NoBuffer && len(out.Data) > 0 {
		frame := rawFrame(out.Data)
		packetOut.Data = &frame
	}
	return packetOut, nil
}

func xlateMatch(m flowtable.Match) openflow13.Match {
	ofMatch := openflow13.NewMatch()

	if m.InPort != 0 {
		ofMatch.AddField(*openflow13.NewInPortField(m.InPort))
	}
	if len(m.MacDa) != 0 {
		ofMatch.AddField(*openflow13.NewEthDstField(m.MacDa, nil))
	}
	if len(m.MacSa) != 0 {
		ofMatch.AddField(*openflow13.NewEthSrcField(m.MacSa, nil))
	}
	// prerequisites: udp_dst needs ip_proto, ip_proto needs eth_type
	ipProto := m.IpProto
	if ipProto == 0 && m.UdpDstPort != 0 {
		ipProto = 17
	}
	ethertype := m.Ethertype
	if ethertype == 0 && ipProto != 0 {
		ethertype = 0x0800
	}
	if ethertype != 0 {
		ofMatch.AddField(*openflow13.NewEthTypeField(ethertype))
	}
	if ipProto != 0 {
		ofMatch.AddField(*openflow13.NewIpProtoField(ipProto))
	}
	if m.UdpDstPort != 0 {
		ofMatch.AddField(*openflow13.NewUdpDstField(m.UdpDstPort))
	}
	return *ofMatch
}

func xlateActions(actions []flowtable.Action) ([]openflow13.Action, error) {
	var result []openflow13.Action
	for _, a := range actions {
		switch a.Type {
		case flowtable.ActionOutput:
			result = append(result, openflow13.NewActionOutput(a.Port))
		case flowtable.ActionFlood:
			result = append(result, openflow13.NewActionOutput(openflow13.P_FLOOD))
		case flowtable.ActionController:
			act := openflow13.NewActionOutput(openflow13.P_CONTROLLER)
			act.MaxLen = controllerMaxLen
			result = append(result, act)
		case flowtable.ActionDrop:
		default:
			return nil, fmt.Errorf("%w: action %s", lib.ErrInvalidRule, a)
		}
	}
	return result, nil
}

// rawFrame carries an unbuffered frame as packet-out payload.
type rawFrame []byte

func (me *rawFrame) Len() uint16 {
	return uint16(len(*me))
}

func (me *rawFrame) MarshalBinary() ([]byte, error) {
	return []byte(*me), nil
}

func (me *rawFrame) UnmarshalBinary(data []byte) error {
	*me = append((*me)[:0], data...)
	return nil
}
