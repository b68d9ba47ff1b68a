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
	"fmt"
	"io/ioutil"
	"net"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Info               Info               `yaml:"info"`
	SliceConfiguration SliceConfiguration `yaml:"configuration"`
}
type Info struct {
	Version string `yaml:"version"`

	Description string `yaml:"description"`
}

type SliceConfiguration struct {
	ControllerName  string         `yaml:"controllerName"`
	LogLevel        string         `yaml:"logLevel"`
	OpenFlow        ListenConfig   `yaml:"openflow"`
	Metrics         ListenConfig   `yaml:"metrics"`
	FlowIdleTimeout uint16         `yaml:"flowIdleTimeout"` // seconds, 0 = permanent
	FlowHardTimeout uint16         `yaml:"flowHardTimeout"` // seconds, 0 = permanent
	Switches        []SwitchConfig `yaml:"switches"`
	Slices          []SliceConfig  `yaml:"slices"`
}

type ListenConfig struct {
	Ipv4addr string `yaml:"addr"`
	Port     string `yaml:"port"`
}

// Address returns host:port, or "" when no port is configured.
func (me *ListenConfig) Address() string {
	if me.Port == "" {
		return ""
	}
	return net.JoinHostPort(me.Ipv4addr, me.Port)
}

type SwitchConfig struct {
	Dpid       uint64            `yaml:"dpid"`
	Name       string            `yaml:"name"`
	Roles      []string          `yaml:"roles"` // boundary, edge; none means interior
	Ports      []uint32          `yaml:"ports"`
	PortRemap  map[uint32]uint32 `yaml:"port_remap"`
	StaticMacs map[string]uint32 `yaml:"static_macs"`
}

type SliceConfig struct {
	Id             uint8             `yaml:"id"`
	Name           string            `yaml:"name"`
	Protocol       string            `yaml:"protocol"` // tcp | udp
	UdpPorts       []uint16          `yaml:"udp_ports"`
	IncludeIcmp    bool              `yaml:"include_icmp"`
	Priority       uint16            `yaml:"priority"`        // 0 selects the protocol default
	MatchAddresses string            `yaml:"match_addresses"` // none | dst | src_dst
	Egress         map[uint64]uint32 `yaml:"egress"`
	Path           []PathHop         `yaml:"path"`
}

type PathHop struct {
	Dpid    uint64 `yaml:"dpid"`
	InPort  uint32 `yaml:"in_port"`
	EthDst  string `yaml:"eth_dst"`
	OutPort uint32 `yaml:"out_port"`
}

func ParseSliceConfig(f string) (*Config, error) {
	content, err := ioutil.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", f, err)
	}
	return UnmarshalSliceConfig(content)
}

func UnmarshalSliceConfig(content []byte) (*Config, error) {
	parsedConfig := &Config{}
	if err := yaml.Unmarshal(content, parsedConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(parsedConfig.SliceConfiguration.Switches) == 0 {
		return nil, fmt.Errorf("%w: no switches configured", ErrInvalidConfig)
	}
	return parsedConfig, nil
}
