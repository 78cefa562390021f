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

package core

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basenana/dragonstash/pkg/types"
)

var (
	fsOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_operation_latency_seconds",
			Help:    "The latency of fs operation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2.5, 15),
		},
		[]string{"operation"},
	)
	fsOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_operation_errors",
			Help: "This count of fs operation encountering errors",
		},
		[]string{"operation"},
	)
	fsOfflineServedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_offline_served",
			Help: "This count of requests answered from the cache while the backend was unreachable",
		},
		[]string{"operation"},
	)
	dirSyncedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fs_dir_synced",
			Help: "This count of directories reconciled against the backend",
		},
	)
	openDirHandleGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_open_dir_handles",
			Help: "The number of open directory handles",
		},
	)
	backendOnlineGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fs_backend_online",
			Help: "Last connectivity state reported by the backend, 1 means online",
		},
		[]string{"backend_id"},
	)
)

func init() {
	prometheus.MustRegister(
		fsOperationLatency,
		fsOperationErrorCounter,
		fsOfflineServedCounter,
		dirSyncedCounter,
		openDirHandleGauge,
		backendOnlineGauge,
	)
}

func logOperationLatency(operation string, startAt time.Time) {
	fsOperationLatency.WithLabelValues(operation).Observe(time.Since(startAt).Seconds())
}

func logOperationError(operation string, err error) error {
	if err != nil && !errors.Is(err, types.ErrNotFound) && !isCanceled(err) {
		fsOperationErrorCounter.WithLabelValues(operation).Inc()
	}
	return err
}

func logOfflineServed(operation string) {
	fsOfflineServedCounter.WithLabelValues(operation).Inc()
}
