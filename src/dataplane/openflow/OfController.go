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
	"fmt"
	"net"
	"sync"
	"time"

	"ofslice/src/lib"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// To attach an ovs bridge:
// ovs-vsctl set bridge <bridge> protocols=OpenFlow13
// ovs-vsctl set-controller <bridge> tcp:<ip>:6653

const (
	handshakeTimeout = 3 * time.Second
	sendTimeout      = time.Second
)

// SwitchHandler receives the events of all switch connections.
type SwitchHandler interface {
	SwitchConnected(dpid uint64, ports []uint32) error
	SwitchDisconnected(dpid uint64)
	PacketIn(dpid uint64, inPort uint32, bufferID uint32, data []byte)
}

// Controller accepts switch connections, negotiates openflow 1.3 and feeds
// the handler. Outgoing rules and packets go through the Driver.
type Controller struct {
	driver  *Driver
	handler SwitchHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]bool
	closed   bool
	done     chan struct{}
}

func NewController(driver *Driver, handler SwitchHandler) *Controller {
	return &Controller{
		driver:  driver,
		handler: handler,
		conns:   make(map[net.Conn]bool),
		done:    make(chan struct{}),
	}
}

// packetIn is a decoded OFPT_PACKET_IN together with the frame exactly as
// the switch sent it. The decoded Data re-serializes some frames differently.
type packetIn struct {
	*openflow13.PacketIn
	frame []byte
}

// Parse implements util.Parser for the message streams.
func (me *Controller) Parse(b []byte) (util.Message, error) {
	msg, err := openflow13.Parse(b)
	if err != nil {
		return nil, err
	}
	pin, ok := msg.(*openflow13.PacketIn)
	if !ok {
		return msg, nil
	}
	frame, err := packetInFrame(b)
	if err != nil {
		return nil, err
	}
	return &packetIn{PacketIn: pin, frame: frame}, nil
}

// ofp_packet_in up to the match: header, buffer_id, total_len, reason,
// table_id and cookie.
const packetInFixedLen = 24

var errShortPacketIn = errors.New("packet-in shorter than its match")

// packetInFrame copies the frame behind the padded match and the two pad
// bytes. The stream reuses b once Parse returns.
func packetInFrame(b []byte) ([]byte, error) {
	if len(b) < packetInFixedLen+4 {
		return nil, errShortPacketIn
	}
	matchLen := int(binary.BigEndian.Uint16(b[packetInFixedLen+2:]))
	start := packetInFixedLen + (matchLen+7)/8*8 + 2
	if matchLen < 4 || start > len(b) {
		return nil, errShortPacketIn
	}
	return append([]byte(nil), b[start:]...), nil
}

// Listen accepts connections until Close is called.
func (me *Controller) Listen(addr string) error {
	sock, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	me.mu.Lock()
	if me.closed {
		me.mu.Unlock()
		sock.Close()
		return nil
	}
	me.listener = sock
	me.mu.Unlock()

	log.Infof("Listening for openflow connections on %s", sock.Addr())
	for {
		conn, err := sock.Accept()
		if err != nil {
			if me.isClosed() {
				return nil
			}
			return err
		}
		go me.HandleConnection(conn)
	}
}

func (me *Controller) Close() {
	log.Infoln("CLOSE openflow controller")
	me.mu.Lock()
	if !me.closed {
		me.closed = true
		close(me.done)
	}
	if me.listener != nil {
		me.listener.Close()
	}
	for conn := range me.conns {
		conn.Close()
	}
	me.mu.Unlock()
}

func (me *Controller) isClosed() bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.closed
}

func (me *Controller) track(conn net.Conn) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.closed {
		return false
	}
	me.conns[conn] = true
	return true
}

func (me *Controller) untrack(conn net.Conn) {
	me.mu.Lock()
	defer me.mu.Unlock()
	delete(me.conns, conn)
}

// HandleConnection runs the handshake and then the receive loop of one switch.
func (me *Controller) HandleConnection(conn net.Conn) {
	if !me.track(conn) {
		conn.Close()
		return
	}
	defer me.untrack(conn)
	defer conn.Close()

	logger := log.WithFields(log.Fields{
		"session": uuid.New().String(),
		"remote":  conn.RemoteAddr().String(),
	})
	logger.Debugln("New connection")
	stream := util.NewMessageStream(conn, me)

	hello, err := common.NewHello(4)
	if err != nil {
		logger.Warnf("building hello: %v", err)
		return
	}
	stream.Outbound <- hello

	for {
		select {
		case msg := <-stream.Inbound:
			switch m := msg.(type) {
			case *common.Hello:
				if m.Version != openflow13.VERSION {
					logger.Warnf("Received unsupported ofp version %d", m.Version)
					shutdown(stream)
					return
				}
				stream.Version = m.Version
				stream.Outbound <- openflow13.NewFeaturesRequest()
			case *openflow13.SwitchFeatures:
				dpid := lib.DpidFromHardwareAddr(m.DPID)
				sw := &switchConn{
					dpid:   dpid,
					stream: stream,
					logger: logger.WithField("dpid", lib.DpidString(dpid)),
				}
				me.driver.Register(dpid, sw)
				if err := me.handler.SwitchConnected(dpid, nil); err != nil {
					sw.logger.Warnf("closing connection: %v", err)
					me.driver.Unregister(dpid, sw)
					shutdown(stream)
					return
				}
				me.receive(sw)
				return
			case *common.Header:
				answerEcho(stream, m)
			case *openflow13.ErrorMsg:
				logger.Warnf("Received ofp1.3 error during handshake: type %d code %d", m.Type, m.Code)
				shutdown(stream)
				return
			}
		case err := <-stream.Error:
			logger.Debugf("connection closed during handshake: %v", err)
			return
		case <-me.done:
			return
		case <-time.After(handshakeTimeout):
			logger.Warnln("Connection timed out during handshake")
			return
		}
	}
}

// receive feeds the handler until the connection fails or the controller is
// closed. The stream reports nothing on a locally closed socket, so Close is
// watched separately.
//
// util.MessageStream decodes with a pool of goroutines, so two messages that
// arrive back to back may be delivered swapped. The handler sees packet-ins
// of one switch in delivery order, not strictly in wire order.
func (me *Controller) receive(sw *switchConn) {
	defer func() {
		if me.driver.Unregister(sw.dpid, sw) {
			me.handler.SwitchDisconnected(sw.dpid)
		}
	}()

	for {
		select {
		case msg := <-sw.stream.Inbound:
			me.dispatch(sw, msg)
		case err := <-sw.stream.Error:
			sw.logger.Infof("switch disconnected: %v", err)
			return
		case <-me.done:
			sw.logger.Infoln("controller closing, dropping switch")
			shutdown(sw.stream)
			return
		}
	}
}

func (me *Controller) dispatch(sw *switchConn, msg util.Message) {
	switch m := msg.(type) {
	case *packetIn:
		inPort, ok := packetInPort(m.PacketIn)
		if !ok {
			sw.logger.Debugln("packet-in without in_port")
			return
		}
		me.handler.PacketIn(sw.dpid, inPort, m.BufferId, m.frame)
	case *common.Header:
		answerEcho(sw.stream, m)
	case *openflow13.ErrorMsg:
		sw.logger.Warnf("switch reported error type %d code %d", m.Type, m.Code)
	case *openflow13.PortStatus:
		sw.logger.Debugln("port status change ignored")
	default:
		sw.logger.Tracef("unhandled message %T", msg)
	}
}

func packetInPort(m *openflow13.PacketIn) (uint32, bool) {
	for _, field := range m.Match.Fields {
		if field.Field != openflow13.OXM_FIELD_IN_PORT {
			continue
		}
		if port, ok := field.Value.(*openflow13.InPortField); ok {
			return port.InPort, true
		}
	}
	return 0, false
}

func answerEcho(stream *util.MessageStream, h *common.Header) {
	if h.Type != openflow13.Type_EchoRequest {
		return
	}
	reply := openflow13.NewEchoReply()
	reply.Xid = h.Xid
	stream.Outbound <- reply
}

func shutdown(stream *util.MessageStream) {
	select {
	case stream.Shutdown <- true:
	default:
	}
}

// switchConn is the Sender of one established connection.
type switchConn struct {
	dpid   uint64
	stream *util.MessageStream
	logger *log.Entry
}

func (me *switchConn) Send(msg util.Message) error {
	select {
	case me.stream.Outbound <- msg:
		return nil
	case <-time.After(sendTimeout):
		return fmt.Errorf("dpid %s: %w", lib.DpidString(me.dpid), errSendTimeout)
	}
}

var errSendTimeout = errors.New("control channel send timed out")

var _ Sender = (*switchConn)(nil)
