/*
 Copyright 2026 DragonStash Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package fuse

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fuseOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fuse_operation_latency_seconds",
			Help:    "The latency of fuse operation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2.5, 15),
		},
		[]string{"operation"},
	)
	unexpectedErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuse_unexpected_errors",
			Help: "This count of fuse operation answered with EIO for an unclassified error",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		fuseOperationLatency,
		unexpectedErrorCounter,
	)
}

func logOperationLatency(operation string, startAt time.Time) {
	fuseOperationLatency.WithLabelValues(operation).Observe(time.Since(startAt).Seconds())
}
