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
package learning

import (
	"net"

	log "github.com/sirupsen/logrus"
)

// MacTable maps link-layer addresses to the port they were last seen on.
// Entries never age out.
type MacTable struct {
	knownMACs map[string]uint32
}

func NewMacTable() *MacTable {
	c := MacTable{knownMACs: make(map[string]uint32)}
	return &c
}

// Observe records mac on port, overwriting an earlier port. It returns true
// when the table changed.
func (me *MacTable) Observe(mac net.HardwareAddr, port uint32) bool {
	if len(mac) == 0 {
		return false
	}
	key := mac.String()
	old, known := me.knownMACs[key]
	if known && old == port {
		return false
	}
	me.knownMACs[key] = port
	if known {
		log.Debugf("[mac-table] %s moved from port %d to %d", key, old, port)
	} else {
		log.Debugf("[mac-table] learned %s on port %d", key, port)
	}
	return true
}

func (me *MacTable) Resolve(mac net.HardwareAddr) (uint32, bool) {
	port, ok := me.knownMACs[mac.String()]
	return port, ok
}

func (me *MacTable) Entries() map[string]uint32 {
	entries := make(map[string]uint32, len(me.knownMACs))
	for mac, port := range me.knownMACs {
		entries[mac] = port
	}
	return entries
}

func (me *MacTable) Len() int {
	return len(me.knownMACs)
}

func (me *MacTable) Clear() {
	me.knownMACs = make(map[string]uint32)
}
