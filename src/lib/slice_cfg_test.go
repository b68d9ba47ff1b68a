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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShippedConfig(t *testing.T) {
	cfg, err := ParseSliceConfig("../../config/ofslice.yaml")
	require.NoError(t, err)

	sc := cfg.SliceConfiguration
	assert.Equal(t, "InfoLevel", sc.LogLevel)
	assert.Equal(t, "0.0.0.0:6653", sc.OpenFlow.Address())
	require.Len(t, sc.Switches, 7)
	require.Len(t, sc.Slices, 2)

	s4 := sc.Switches[3]
	assert.Equal(t, uint64(4), s4.Dpid)
	assert.Equal(t, uint32(3), s4.PortRemap[1])
	assert.Equal(t, uint32(2), s4.PortRemap[4])

	s1 := sc.Switches[0]
	assert.ElementsMatch(t, []string{"boundary", "edge"}, s1.Roles)
	assert.Equal(t, uint32(3), s1.StaticMacs["00:00:00:00:00:01"])

	udp := sc.Slices[1]
	assert.Equal(t, "udp", udp.Protocol)
	assert.Equal(t, uint32(2), udp.Egress[6])
	require.Len(t, udp.Path, 4)
	assert.Equal(t, "00:00:00:00:00:02", udp.Path[1].EthDst)
}

func TestParseMissingConfig(t *testing.T) {
	_, err := ParseSliceConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestUnmarshalRejectsEmptyTopology(t *testing.T) {
	_, err := UnmarshalSliceConfig([]byte("configuration:\n  logLevel: DebugLevel\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = UnmarshalSliceConfig([]byte("configuration: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestListenAddress(t *testing.T) {
	empty := ListenConfig{Ipv4addr: "127.0.0.1"}
	assert.Equal(t, "", empty.Address())

	l := ListenConfig{Port: "9100"}
	assert.Equal(t, ":9100", l.Address())
}

func TestConversions(t *testing.T) {
	assert.Equal(t, uint64(1), DpidFromHardwareAddr([]byte{0, 0, 0, 0, 0, 0, 0, 1}))
	assert.Equal(t, uint64(0x0102), DpidFromHardwareAddr([]byte{1, 2}))
	assert.Equal(t, "00:00:00:00:00:00:00:06", DpidString(6))

	mac, err := ParseMac("00:00:00:00:00:0a")
	require.NoError(t, err)
	assert.Equal(t, "00:00:00:00:00:0a", ByteToMac(mac))

	_, err = ParseMac("00:00:00:00:00:00:00:01")
	assert.Error(t, err)

	assert.True(t, IsGroupMac([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}))
	assert.True(t, IsGroupMac([]byte{0x01, 0x80, 0xc2, 0, 0, 0x0e}))
	assert.False(t, IsGroupMac(mac))
}
