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

package dataplane

import (
	"ofslice/src/flowtable"
)

// NoBuffer is OFP_NO_BUFFER: the packet-in carried the whole frame and no
// switch side buffer references it.
const NoBuffer uint32 = 0xffffffff

type PacketOut struct {
	BufferID uint32
	InPort   uint32
	Actions  []flowtable.Action
	Data     []byte // only set when BufferID == NoBuffer
}

type DataPlaneInterface interface {
	InstallRule(dpid uint64, rule flowtable.FlowRule) error
	SendPacket(dpid uint64, out PacketOut) error
}
