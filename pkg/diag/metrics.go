// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultError   = "error"
	resultTimeout = "timeout"
)

var (
	// Per-node diagnosis metrics
	nodeDiagnosisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gpudoctor_node_diagnosis_duration_seconds",
			Help:    "Time taken to diagnose a single node",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	nodeDiagnosisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpudoctor_node_diagnosis_total",
			Help: "Total number of per-node diagnosis attempts",
		},
		[]string{"result"}, // success, error, or timeout
	)

	fleetDiagnosisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gpudoctor_fleet_diagnosis_duration_seconds",
			Help:    "Time taken to diagnose the whole fleet",
			Buckets: []float64{5, 30, 60, 120, 300, 600},
		},
	)

	fleetNodesExamined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpudoctor_fleet_nodes_examined",
			Help: "Number of nodes examined in the last fleet diagnosis",
		},
	)
)
