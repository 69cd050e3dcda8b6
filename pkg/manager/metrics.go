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

package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opInstall   = "install"
	opUpdate    = "update"
	opUninstall = "uninstall"
	opEnv       = "env"
)

var (
	// Lifecycle operation metrics
	lifecycleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unithost_lifecycle_operations_total",
			Help: "Total number of unit lifecycle operations by result",
		},
		[]string{"operation", "result"},
	)

	lifecycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unithost_lifecycle_duration_seconds",
			Help:    "Duration of unit lifecycle operations in seconds",
			Buckets: []float64{0.1, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	compensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unithost_compensations_total",
			Help: "Total number of compensating actions run after a failed operation",
		},
		[]string{"operation", "action"},
	)

	unitsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unithost_units_registered",
			Help: "Current number of registered units",
		},
	)
)

func observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	lifecycleOperations.WithLabelValues(op, result).Inc()
	lifecycleDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
