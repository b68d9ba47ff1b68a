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
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"ofslice/src/dataplane"
	"ofslice/src/flowtable"
	"ofslice/src/lib"
	"ofslice/src/packet"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packetInEvent struct {
	dpid     uint64
	inPort   uint32
	bufferID uint32
	data     []byte
}

type fakeHandler struct {
	connected    chan uint64
	disconnected chan uint64
	packetIns    chan packetInEvent
	reject       error
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		connected:    make(chan uint64, 4),
		disconnected: make(chan uint64, 4),
		packetIns:    make(chan packetInEvent, 4),
	}
}

func (me *fakeHandler) SwitchConnected(dpid uint64, ports []uint32) error {
	if me.reject != nil {
		return me.reject
	}
	me.connected <- dpid
	return nil
}

func (me *fakeHandler) SwitchDisconnected(dpid uint64) {
	me.disconnected <- dpid
}

func (me *fakeHandler) PacketIn(dpid uint64, inPort uint32, bufferID uint32, data []byte) {
	me.packetIns <- packetInEvent{dpid, inPort, bufferID, data}
}

var (
	hostA = net.HardwareAddr{0, 0, 0, 0, 0, 1}
	hostB = net.HardwareAddr{0, 0, 0, 0, 0, 2}
)

func waitFor[T any](t *testing.T, ch chan T) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for event")
	}
	var zero T
	return zero
}

// readMsg reads one openflow message from the switch side of the channel.
func readMsg(t *testing.T, conn net.Conn) []byte {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	hdr := make([]byte, 8)
	_, err := io.ReadFull(conn, hdr)
	require.NoError(t, err)
	body := make([]byte, int(binary.BigEndian.Uint16(hdr[2:4]))-8)
	_, err = io.ReadFull(conn, body)
	require.NoError(t, err)
	return append(hdr, body...)
}

func writeMsg(t *testing.T, conn net.Conn, msg util.Message) {
	data, err := msg.MarshalBinary()
	require.NoError(t, err)
	writeRaw(t, conn, data)
}

func writeRaw(t *testing.T, conn net.Conn, data []byte) {
	binary.BigEndian.PutUint16(data[2:4], uint16(len(data)))
	_, err := conn.Write(data)
	require.NoError(t, err)
}

// packetInBytes encodes an OFPT_PACKET_IN whose match only carries in_port.
func packetInBytes(inPort uint32, bufferID uint32, frame []byte) []byte {
	b := []byte{openflow13.VERSION, openflow13.Type_PacketIn, 0, 0, 0, 0, 0, 7}
	b = binary.BigEndian.AppendUint32(b, bufferID)
	b = binary.BigEndian.AppendUint16(b, uint16(len(frame)))
	b = append(b, 0, 0)                    // reason, table
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 0) // cookie
	b = append(b, 0, 1, 0, 12)            // OFPMT_OXM, length
	b = append(b, 0x80, 0x00, 0x00, 0x04) // OXM in_port
	b = binary.BigEndian.AppendUint32(b, inPort)
	b = append(b, 0, 0, 0, 0) // match padding
	b = append(b, 0, 0)
	return append(b, frame...)
}

// featuresReplyBytes encodes an OFPT_FEATURES_REPLY without ports.
func featuresReplyBytes(dpid byte) []byte {
	b := []byte{openflow13.VERSION, openflow13.Type_FeaturesReply, 0, 32, 0, 0, 0, 1}
	b = append(b, 0, 0, 0, 0, 0, 0, 0, dpid)
	b = binary.BigEndian.AppendUint32(b, 256) // n_buffers
	b = append(b, 254, 0, 0, 0)               // n_tables, auxiliary_id, pad
	b = binary.BigEndian.AppendUint32(b, 0)   // capabilities
	return binary.BigEndian.AppendUint32(b, 0)
}

func handshake(t *testing.T, client net.Conn, dpid byte) {
	hello := readMsg(t, client)
	assert.Equal(t, uint8(openflow13.Type_Hello), hello[1])

	reply, err := common.NewHello(4)
	require.NoError(t, err)
	writeMsg(t, client, reply)

	req := readMsg(t, client)
	assert.Equal(t, uint8(openflow13.Type_FeaturesRequest), req[1])

	writeRaw(t, client, featuresReplyBytes(dpid))
}

func TestControllerSession(t *testing.T) {
	driver := NewDriver()
	handler := newFakeHandler()
	ctrl := NewController(driver, handler)
	defer ctrl.Close()

	server, client := net.Pipe()
	go ctrl.HandleConnection(server)

	handshake(t, client, 1)
	assert.Equal(t, uint64(1), waitFor(t, handler.connected))

	// rules reach the switch through the registered channel
	go driver.InstallRule(1, flowtable.TableMissRule())
	flowMod := readMsg(t, client)
	assert.Equal(t, uint8(openflow13.Type_FlowMod), flowMod[1])

	echo := openflow13.NewEchoRequest()
	echo.Xid = 42
	writeMsg(t, client, echo)
	reply := readMsg(t, client)
	assert.Equal(t, uint8(openflow13.Type_EchoReply), reply[1])
	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(reply[4:8]))

	// frames reach the handler byte for byte
	for _, kind := range []packet.Kind{packet.KindOther, packet.KindICMP, packet.KindTCP, packet.KindUDP} {
		frame := packet.BuildFrame(hostA, hostB, kind, 5001)
		writeRaw(t, client, packetInBytes(3, dataplane.NoBuffer, frame))
		pin := waitFor(t, handler.packetIns)
		assert.Equal(t, uint64(1), pin.dpid)
		assert.Equal(t, uint32(3), pin.inPort)
		assert.Equal(t, dataplane.NoBuffer, pin.bufferID)
		assert.Equal(t, frame, pin.data, "%s frame changed", kind)
	}

	client.Close()
	assert.Equal(t, uint64(1), waitFor(t, handler.disconnected))
	assert.ErrorIs(t, driver.InstallRule(1, flowtable.TableMissRule()), lib.ErrNotConnected)
}

func TestParseKeepsPacketInFrame(t *testing.T) {
	ctrl := NewController(NewDriver(), newFakeHandler())
	defer ctrl.Close()

	frame := packet.BuildFrame(hostA, hostB, packet.KindICMP, 0)
	msg, err := ctrl.Parse(packetInBytes(2, 7, frame))
	require.NoError(t, err)
	pin, ok := msg.(*packetIn)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, uint32(7), pin.BufferId)
	port, ok := packetInPort(pin.PacketIn)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), port)
	assert.Equal(t, frame, pin.frame)

	_, err = packetInFrame(packetInBytes(2, 7, frame)[:26])
	assert.ErrorIs(t, err, errShortPacketIn)

	echo, err := openflow13.NewEchoRequest().MarshalBinary()
	require.NoError(t, err)
	msg, err = ctrl.Parse(echo)
	require.NoError(t, err)
	assert.IsType(t, &common.Header{}, msg)
}

func TestControllerRejectedSwitch(t *testing.T) {
	driver := NewDriver()
	handler := newFakeHandler()
	handler.reject = lib.ErrUnknownSwitch
	ctrl := NewController(driver, handler)
	defer ctrl.Close()

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		ctrl.HandleConnection(server)
		close(done)
	}()

	handshake(t, client, 9)
	waitFor(t, done)
	assert.ErrorIs(t, driver.InstallRule(9, flowtable.TableMissRule()), lib.ErrNotConnected)
	client.Close()
}

func TestControllerRejectsOtherVersions(t *testing.T) {
	ctrl := NewController(NewDriver(), newFakeHandler())
	defer ctrl.Close()

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		ctrl.HandleConnection(server)
		close(done)
	}()

	readMsg(t, client)
	hello, err := common.NewHello(1)
	require.NoError(t, err)
	writeMsg(t, client, hello)
	waitFor(t, done)
	client.Close()
}

func TestControllerClosedRefusesConnections(t *testing.T) {
	ctrl := NewController(NewDriver(), newFakeHandler())
	ctrl.Close()

	server, client := net.Pipe()
	ctrl.HandleConnection(server)

	_, err := client.Read(make([]byte, 1))
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe), "got %v", err)
	assert.NoError(t, ctrl.Listen("127.0.0.1:0"))
}

func TestControllerListen(t *testing.T) {
	port, err := freeport.GetFreePort()
	require.NoError(t, err)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	handler := newFakeHandler()
	ctrl := NewController(NewDriver(), handler)
	stopped := make(chan error, 1)
	go func() { stopped <- ctrl.Listen(addr) }()

	var client net.Conn
	require.Eventually(t, func() bool {
		client, err = net.Dial("tcp", addr)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer client.Close()

	handshake(t, client, 6)
	assert.Equal(t, uint64(6), waitFor(t, handler.connected))

	ctrl.Close()
	assert.NoError(t, waitFor(t, stopped))
	assert.Equal(t, uint64(6), waitFor(t, handler.disconnected))
}
