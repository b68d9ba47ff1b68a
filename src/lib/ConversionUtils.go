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

package lib

import (
	"encoding/binary"
	"fmt"
	"net"
)

func ParseMac(val string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(val)
	if err != nil {
		return nil, err
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("%s is not an ethernet address", val)
	}
	return mac, nil
}

func ByteToMac(val []byte) string {
	return net.HardwareAddr(val).String()
}

// DpidFromHardwareAddr reads the 8 byte datapath id of a features reply.
// Shorter ids are zero padded at the beginning.
func DpidFromHardwareAddr(val net.HardwareAddr) uint64 {
	b := []byte(val)
	PaddingByteSliceSize(&b, 8)
	return binary.BigEndian.Uint64(b[len(b)-8:])
}

func DpidString(dpid uint64) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, dpid)
	return ByteToMac(b)
}

// fills 0 at beginning (!) of byte slice
func PaddingByteSliceSize(sl *[]byte, size int) {
	for len(*sl) < size {
		*sl = append([]byte{0}, *sl...)
	}
}
