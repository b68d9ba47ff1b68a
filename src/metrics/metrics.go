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

package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const namespace = "ofslice"

var (
	PacketInTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_in_total",
		Help:      "Packet-in events by decision outcome.",
	}, []string{"outcome"})

	FlowInstallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flow_installs_total",
		Help:      "Flow rules pushed to switches by result.",
	}, []string{"result"})

	PacketOutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_out_total",
		Help:      "Packet-out messages sent to switches by result.",
	}, []string{"result"})

	SwitchesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "switches_active",
		Help:      "Switches with a running worker.",
	})
)

func init() {
	prometheus.MustRegister(PacketInTotal, FlowInstallsTotal, PacketOutTotal, SwitchesActive)
}

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes /metrics on addr in the background. An empty addr disables it
// and returns nil.
func Serve(addr string) *http.Server {
	if addr == "" {
		log.Infoln("metrics endpoint disabled")
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Infof("metrics endpoint listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("metrics endpoint stopped: %v", err)
		}
	}()
	return srv
}
