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
	"errors"
	"net"
	"sync"
	"testing"

	"ofslice/src/dataplane"
	"ofslice/src/flowtable"
	"ofslice/src/lib"

	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []util.Message
	err  error
}

func (me *recordingSender) Send(msg util.Message) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.msgs = append(me.msgs, msg)
	return me.err
}

var hostMac = net.HardwareAddr{0, 0, 0, 0, 0, 0x05}

func outputPort(t *testing.T, fm *openflow13.FlowMod) *openflow13.ActionOutput {
	require.Len(t, fm.Instructions, 1)
	instr, ok := fm.Instructions[0].(*openflow13.InstrActions)
	require.True(t, ok)
	require.Len(t, instr.Actions, 1)
	out, ok := instr.Actions[0].(*openflow13.ActionOutput)
	require.True(t, ok)
	return out
}

func TestFlowModForUdpSliceRule(t *testing.T) {
	rule := flowtable.NewFlowRule(2, flowtable.Match{
		InPort:     1,
		MacDa:      hostMac,
		Ethertype:  0x0800,
		IpProto:    17,
		UdpDstPort: 5001,
	}, flowtable.Output(2))
	rule.IdleTimeout = 30

	fm, err := FlowModFor(rule)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), fm.Priority)
	assert.Equal(t, rule.Cookie, fm.Cookie)
	assert.Equal(t, uint16(30), fm.IdleTimeout)
	assert.Equal(t, uint16(0), fm.HardTimeout)
	assert.Equal(t, uint8(openflow13.FC_ADD), uint8(fm.Command))

	fields := fm.Match.Fields
	require.Len(t, fields, 5)
	assert.Equal(t, uint8(openflow13.OXM_FIELD_IN_PORT), fields[0].Field)
	assert.Equal(t, uint32(1), fields[0].Value.(*openflow13.InPortField).InPort)
	assert.Equal(t, uint8(openflow13.OXM_FIELD_ETH_DST), fields[1].Field)
	assert.Equal(t, uint8(openflow13.OXM_FIELD_ETH_TYPE), fields[2].Field)
	assert.Equal(t, uint8(openflow13.OXM_FIELD_IP_PROTO), fields[3].Field)
	assert.Equal(t, uint8(openflow13.OXM_FIELD_UDP_DST), fields[4].Field)

	assert.Equal(t, uint32(2), outputPort(t, fm).Port)

	data, err := fm.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, uint8(openflow13.VERSION), data[0])
	assert.Equal(t, uint8(openflow13.Type_FlowMod), data[1])
}

func TestFlowModForTableMiss(t *testing.T) {
	fm, err := FlowModFor(flowtable.TableMissRule())
	require.NoError(t, err)
	assert.Equal(t, uint16(0), fm.Priority)
	assert.Empty(t, fm.Match.Fields)

	out := outputPort(t, fm)
	assert.Equal(t, uint32(openflow13.P_CONTROLLER), out.Port)
	assert.Equal(t, uint16(0xffff), out.MaxLen)
}

func TestFlowModForFloodAndDrop(t *testing.T) {
	fm, err := FlowModFor(flowtable.NewFlowRule(1, flowtable.Match{InPort: 3}, flowtable.Flood()))
	require.NoError(t, err)
	assert.Equal(t, uint32(openflow13.P_FLOOD), outputPort(t, fm).Port)

	fm, err = FlowModFor(flowtable.NewFlowRule(1, flowtable.Match{InPort: 3}, flowtable.Drop()))
	require.NoError(t, err)
	assert.Empty(t, fm.Instructions)
}

func TestMatchPrerequisites(t *testing.T) {
	tests := []struct {
		name   string
		match  flowtable.Match
		fields []uint8
		values [][]byte
	}{
		{"udp port only", flowtable.Match{UdpDstPort: 53},
			[]uint8{openflow13.OXM_FIELD_ETH_TYPE, openflow13.OXM_FIELD_IP_PROTO, openflow13.OXM_FIELD_UDP_DST},
			[][]byte{{0x08, 0x00}, {17}, {0, 53}}},
		{"ip proto only", flowtable.Match{IpProto: 6},
			[]uint8{openflow13.OXM_FIELD_ETH_TYPE, openflow13.OXM_FIELD_IP_PROTO},
			[][]byte{{0x08, 0x00}, {6}}},
		{"ethertype kept", flowtable.Match{Ethertype: 0x0806},
			[]uint8{openflow13.OXM_FIELD_ETH_TYPE},
			[][]byte{{0x08, 0x06}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := xlateMatch(tt.match)
			require.Len(t, match.Fields, len(tt.fields))
			for i, field := range match.Fields {
				assert.Equal(t, tt.fields[i], field.Field)
				value, err := field.Value.MarshalBinary()
				require.NoError(t, err)
				assert.Equal(t, tt.values[i], value)
			}
		})
	}
}

func TestPacketOutFor(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0x08, 0x06}

	po, err := PacketOutFor(dataplane.PacketOut{
		BufferID: dataplane.NoBuffer,
		InPort:   4,
		Actions:  []flowtable.Action{flowtable.Output(1)},
		Data:     frame,
	})
	require.NoError(t, err)
	assert.Equal(t, dataplane.NoBuffer, po.BufferId)
	assert.Equal(t, uint32(4), po.InPort)
	require.Len(t, po.Actions, 1)
	assert.Equal(t, uint32(1), po.Actions[0].(*openflow13.ActionOutput).Port)
	require.NotNil(t, po.Data)
	data, err := po.Data.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, frame, data)

	po, err = PacketOutFor(dataplane.PacketOut{
		BufferID: 33,
		InPort:   4,
		Actions:  []flowtable.Action{flowtable.Flood()},
		Data:     frame,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(33), po.BufferId)
	assert.Nil(t, po.Data)
}

func TestDriverRegistration(t *testing.T) {
	driver := NewDriver()
	rule := flowtable.TableMissRule()

	err := driver.InstallRule(1, rule)
	assert.ErrorIs(t, err, lib.ErrNotConnected)

	sender := &recordingSender{}
	driver.Register(1, sender)
	require.NoError(t, driver.InstallRule(1, rule))
	require.NoError(t, driver.SendPacket(1, dataplane.PacketOut{BufferID: 9, Actions: []flowtable.Action{flowtable.Flood()}}))
	require.Len(t, sender.msgs, 2)
	assert.IsType(t, &openflow13.FlowMod{}, sender.msgs[0])
	assert.IsType(t, &openflow13.PacketOut{}, sender.msgs[1])

	newer := &recordingSender{}
	driver.Register(1, newer)
	assert.False(t, driver.Unregister(1, sender))
	require.NoError(t, driver.InstallRule(1, rule))
	assert.Len(t, newer.msgs, 1)

	assert.True(t, driver.Unregister(1, newer))
	assert.ErrorIs(t, driver.SendPacket(1, dataplane.PacketOut{}), lib.ErrNotConnected)
}

func TestDriverSurfacesSendErrors(t *testing.T) {
	driver := NewDriver()
	driver.Register(2, &recordingSender{err: errors.New("broken pipe")})
	assert.Error(t, driver.InstallRule(2, flowtable.TableMissRule()))
}
