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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
)

var (
	backendOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_operation_latency_seconds",
			Help:    "The latency of backend operation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"backend_id", "operation"},
	)
	backendOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_operation_errors",
			Help: "This count of backend encountering errors",
		},
		[]string{"backend_id", "operation"},
	)
	backendConnectedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_connected",
			Help: "Whether the backend is reachable, 1 means online",
		},
		[]string{"backend_id"},
	)
)

func init() {
	prometheus.MustRegister(
		backendOperationLatency,
		backendOperationErrorCounter,
		backendConnectedGauge,
	)
}

type instrumentalBackend struct {
	b Backend
}

var _ Backend = instrumentalBackend{}

func (i instrumentalBackend) ID() string {
	return i.b.ID()
}

func (i instrumentalBackend) IsConnected(ctx context.Context) bool {
	return i.b.IsConnected(ctx)
}

func (i instrumentalBackend) Stat(ctx context.Context, path string) (*Info, error) {
	const statOperation = "stat"
	defer utils.TraceRegion(ctx, "backend.%s.stat", i.ID())()
	defer logOperationLatency(i.ID(), statOperation, time.Now())
	info, err := i.b.Stat(ctx, path)
	return info, logErr(err, i.ID(), statOperation)
}

func (i instrumentalBackend) ListChildren(ctx context.Context, path string) ([]Info, error) {
	const listOperation = "list_children"
	defer utils.TraceRegion(ctx, "backend.%s.list_children", i.ID())()
	defer logOperationLatency(i.ID(), listOperation, time.Now())
	infos, err := i.b.ListChildren(ctx, path)
	return infos, logErr(err, i.ID(), listOperation)
}

func (i instrumentalBackend) ReadLink(ctx context.Context, path string) (string, error) {
	const readlinkOperation = "readlink"
	defer utils.TraceRegion(ctx, "backend.%s.readlink", i.ID())()
	defer logOperationLatency(i.ID(), readlinkOperation, time.Now())
	target, err := i.b.ReadLink(ctx, path)
	return target, logErr(err, i.ID(), readlinkOperation)
}

// Unwrap exposes the concrete backend, e.g. to toggle a memory backend in tests.
func (i instrumentalBackend) Unwrap() Backend {
	return i.b
}

func logOperationLatency(backendID, operation string, startAt time.Time) {
	backendOperationLatency.WithLabelValues(backendID, operation).Observe(time.Since(startAt).Seconds())
}

func logErr(err error, backendID, operation string) error {
	if err == nil || errors.Is(err, types.ErrNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	backendOperationErrorCounter.WithLabelValues(backendID, operation).Inc()
	return err
}
