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

package controller

import (
	"sort"
	"sync"

	"ofslice/src/dataplane"
	"ofslice/src/flowtable"
	"ofslice/src/lib"
	"ofslice/src/metrics"

	log "github.com/sirupsen/logrus"
)

const eventQueueSize = 256

type eventType uint8

const (
	evPacketIn eventType = iota
	evInspect
)

type event struct {
	kind    eventType
	pin     PacketIn
	inspect func(*Switch)
	done    chan struct{}
}

// worker serializes everything that happens to one switch.
type worker struct {
	dpid     uint64
	sw       *Switch
	events   chan event
	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}
}

func (me *worker) stop() {
	me.quitOnce.Do(func() { close(me.quit) })
}

// Adapter connects the openflow stack to the Engine. Each connected switch
// gets its own goroutine and FIFO queue; a packet-in is decided, installed
// and forwarded before the next one of that switch is looked at.
type Adapter struct {
	engine *Engine
	dpi    dataplane.DataPlaneInterface

	mu      sync.Mutex
	workers map[uint64]*worker
	closed  bool
	wg      sync.WaitGroup
}

func NewAdapter(engine *Engine, dpi dataplane.DataPlaneInterface) *Adapter {
	return &Adapter{
		engine:  engine,
		dpi:     dpi,
		workers: make(map[uint64]*worker),
	}
}

// SwitchConnected starts a worker for dpid. A second connect for the same
// dpid replaces the running worker and its state; the new worker starts only
// after the old one returned, so nothing stale reaches the new channel.
func (me *Adapter) SwitchConnected(dpid uint64, ports []uint32) error {
	sw, rules, err := me.engine.Connect(dpid, ports)
	if err != nil {
		log.Warnf("rejected switch %s: %v", lib.DpidString(dpid), err)
		return err
	}
	w := &worker{
		dpid:   dpid,
		sw:     sw,
		events: make(chan event, eventQueueSize),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	me.mu.Lock()
	if me.closed {
		me.mu.Unlock()
		return lib.ErrNotConnected
	}
	old := me.workers[dpid]
	me.workers[dpid] = w
	me.wg.Add(1)
	me.mu.Unlock()

	if old != nil {
		log.Infof("switch %s reconnected, dropping old state", lib.DpidString(dpid))
		old.stop()
		<-old.exited
	}
	metrics.SwitchesActive.Inc()
	go me.run(w, rules)
	return nil
}

func (me *Adapter) SwitchDisconnected(dpid uint64) {
	me.mu.Lock()
	w, ok := me.workers[dpid]
	if ok {
		delete(me.workers, dpid)
	}
	me.mu.Unlock()

	if !ok {
		log.Debugf("disconnect of unknown switch %s", lib.DpidString(dpid))
		return
	}
	w.stop()
}

// PacketIn queues a punted frame for the switch worker. Events for switches
// without a worker are dropped.
func (me *Adapter) PacketIn(dpid uint64, inPort uint32, bufferID uint32, data []byte) {
	w := me.lookup(dpid)
	if w == nil {
		log.Debugf("packet-in from unknown switch %s ignored", lib.DpidString(dpid))
		metrics.PacketInTotal.WithLabelValues(OutcomeIgnore.String()).Inc()
		return
	}
	ev := event{
		kind: evPacketIn,
		pin:  PacketIn{InPort: inPort, BufferID: bufferID, Data: data},
	}
	select {
	case w.events <- ev:
	case <-w.quit:
	}
}

// Inspect runs fn on the switch worker after all events queued before it.
// It returns false if the switch has no worker.
func (me *Adapter) Inspect(dpid uint64, fn func(*Switch)) bool {
	w := me.lookup(dpid)
	if w == nil {
		return false
	}
	ev := event{kind: evInspect, inspect: fn, done: make(chan struct{})}
	select {
	case w.events <- ev:
	case <-w.quit:
		return false
	}
	select {
	case <-ev.done:
		return true
	case <-w.quit:
		return false
	}
}

func (me *Adapter) Connected() []uint64 {
	me.mu.Lock()
	defer me.mu.Unlock()
	dpids := make([]uint64, 0, len(me.workers))
	for dpid := range me.workers {
		dpids = append(dpids, dpid)
	}
	sort.Slice(dpids, func(i, j int) bool { return dpids[i] < dpids[j] })
	return dpids
}

// Close stops every worker and waits for them.
func (me *Adapter) Close() {
	log.Infoln("CLOSE Adapter")
	me.mu.Lock()
	me.closed = true
	for dpid, w := range me.workers {
		w.stop()
		delete(me.workers, dpid)
	}
	me.mu.Unlock()
	me.wg.Wait()
}

func (me *Adapter) lookup(dpid uint64) *worker {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.workers[dpid]
}

func (me *Adapter) run(w *worker, rules []flowtable.FlowRule) {
	defer me.wg.Done()
	defer close(w.exited)
	defer metrics.SwitchesActive.Dec()

	for _, rule := range rules {
		select {
		case <-w.quit:
			me.engine.Disconnect(w.sw)
			return
		default:
		}
		me.install(w, rule)
	}

	for {
		select {
		case <-w.quit:
			me.engine.Disconnect(w.sw)
			return
		case ev := <-w.events:
			// queued events of a disconnected switch are discarded
			select {
			case <-w.quit:
				me.engine.Disconnect(w.sw)
				return
			default:
			}
			switch ev.kind {
			case evPacketIn:
				me.handlePacketIn(w, ev.pin)
			case evInspect:
				ev.inspect(w.sw)
				close(ev.done)
			}
		}
	}
}

func (me *Adapter) handlePacketIn(w *worker, pin PacketIn) {
	d := me.engine.Decide(w.sw, pin)
	metrics.PacketInTotal.WithLabelValues(d.Outcome.String()).Inc()

	switch d.Outcome {
	case OutcomeIgnore:
		if d.Err != nil {
			w.sw.logger.Debugf("ignored packet-in on port %d: %v", pin.InPort, d.Err)
		}
		return
	case OutcomeRejected:
		return
	}
	w.sw.logger.Debugln(d)

	if d.Rule != nil {
		me.install(w, *d.Rule)
	}
	if d.ForwardsPacket() {
		out := packetOutFor(d)
		err := me.dpi.SendPacket(w.dpid, out)
		metrics.PacketOutTotal.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			w.sw.logger.Warnf("packet-out failed: %v", err)
		}
	}
}

func (me *Adapter) install(w *worker, rule flowtable.FlowRule) {
	err := me.dpi.InstallRule(w.dpid, rule)
	metrics.FlowInstallsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		w.sw.logger.Warnf("install of %s failed: %v", rule, err)
	}
}

// packetOutFor attaches the frame only when the switch did not buffer it.
func packetOutFor(d Decision) dataplane.PacketOut {
	out := dataplane.PacketOut{
		BufferID: d.BufferID,
		InPort:   d.InPort,
		Actions:  d.Actions,
	}
	if d.BufferID == dataplane.NoBuffer {
		out.Data = d.Data
	}
	return out
}
