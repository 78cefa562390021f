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

package metastore

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basenana/dragonstash/pkg/types"
)

var (
	cacheOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metastore_operation_latency_seconds",
			Help:    "The latency of cache store operation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"operation"},
	)
	cacheOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metastore_operation_errors",
			Help: "This count of cache store encountering errors",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		cacheOperationLatency,
		cacheOperationErrorCounter,
	)
}

func logOperationLatency(operation string, startAt time.Time) {
	cacheOperationLatency.WithLabelValues(operation).Observe(time.Since(startAt).Seconds())
}

// misses and cancellations are not counted
func logOperationError(operation string, err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, types.ErrNotFound) {
		return
	}
	cacheOperationErrorCounter.WithLabelValues(operation).Inc()
}
