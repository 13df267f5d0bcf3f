//
// Copyright 2024 The ViperOS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the ambient request counters/gauges every canonical
// service exposes through Server.Serve, labeled by the assign name the
// server registered under. Registered against the default registry so a
// single process-wide /metrics handler (wired in cmd/init) picks up
// every service without each one standing up its own HTTP listener.
var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "viperos",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "Requests handled by a canonical service, by service name and outcome.",
	}, []string{"service", "outcome"})

	pendingRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "viperos",
		Subsystem: "server",
		Name:      "pending_requests",
		Help:      "Requests currently being handled by a canonical service.",
	}, []string{"service"})
)

func init() {
	prometheus.MustRegister(requestsTotal, pendingRequests)
}
