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
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ofslice/src/controller"
	"ofslice/src/dataplane/openflow"
	"ofslice/src/lib"
	"ofslice/src/metrics"
	"ofslice/src/slicing"

	log "github.com/sirupsen/logrus"
)

const defaultOpenflowAddr = ":6653"

type MainState struct {
	Adapter    *controller.Adapter
	Controller *openflow.Controller
	Metrics    *http.Server
}

func logLevel(name string) log.Level {
	switch name {
	case "TraceLevel":
		return log.TraceLevel
	case "DebugLevel":
		return log.DebugLevel
	case "InfoLevel":
		return log.InfoLevel
	case "WarnLevel":
		return log.WarnLevel
	case "ErrorLevel":
		return log.ErrorLevel
	case "FatalLevel":
		return log.FatalLevel
	}
	return log.InfoLevel
}

func main() {
	ms := MainState{}
	SetupCloseHandler(&ms)
	argsWithoutProg := os.Args[1:]
	var config_path string
	if len(argsWithoutProg) > 0 {
		config_path = argsWithoutProg[0]
	} else {
		config_path = "config/ofslice.yaml"
	}
	cfg, err := lib.ParseSliceConfig(config_path)
	if err != nil {
		log.Fatal(err)
	}
	sliceCfg := cfg.SliceConfiguration

	log.SetLevel(logLevel(sliceCfg.LogLevel)) //TraceLevel, DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel
	log.Infof("%s %s: %s", sliceCfg.ControllerName, cfg.Info.Version, cfg.Info.Description)

	reg, err := slicing.NewRegistry(&sliceCfg)
	if err != nil {
		log.Fatal(err)
	}
	for _, dpid := range reg.Dpids() {
		info, _ := reg.Switch(dpid)
		log.Infof("switch %s: %s, ports %v", lib.DpidString(dpid), info.Role(), info.Ports)
	}
	for _, slice := range reg.Slices() {
		log.Infoln(slice)
	}

	driver := openflow.NewDriver()
	ms.Adapter = controller.NewAdapter(controller.NewEngine(reg), driver)
	ms.Controller = openflow.NewController(driver, ms.Adapter)
	ms.Metrics = metrics.Serve(sliceCfg.Metrics.Address())

	addr := sliceCfg.OpenFlow.Address()
	if addr == "" {
		addr = defaultOpenflowAddr
	}
	if err := ms.Controller.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

func SetupCloseHandler(ms *MainState) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Infoln("\r- Ctrl+C pressed in Terminal")

		if ms.Controller != nil {
			ms.Controller.Close()
		}

		if ms.Adapter != nil {
			ms.Adapter.Close()
		}

		if ms.Metrics != nil {
			ms.Metrics.Close()
		}

		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()
}
