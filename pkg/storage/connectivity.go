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
	"sync/atomic"
	"time"

	"github.com/hyponet/eventbus"
	"go.uber.org/zap"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/events"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
)

type probeFunc func(ctx context.Context) error

// connectivity tracks whether a remote backend is reachable. A background
// loop probes it periodically and failed calls mark it offline at once.
type connectivity struct {
	backendID string
	probe     probeFunc
	interval  time.Duration
	timeout   time.Duration
	connected atomic.Bool
	logger    *zap.SugaredLogger
}

func newConnectivity(cfg config.Backend, probe probeFunc, stopCh <-chan struct{}) *connectivity {
	c := &connectivity{
		backendID: cfg.ID,
		probe:     probe,
		interval:  time.Duration(cfg.ProbeInterval) * time.Second,
		timeout:   time.Duration(cfg.ProbeTimeout) * time.Second,
		logger:    logger.NewLogger("connectivity").With(zap.String("backend", cfg.ID)),
	}
	if c.interval <= 0 {
		c.interval = config.DefaultProbeInterval * time.Second
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultProbeTimeout * time.Second
	}

	c.check(context.Background())
	if stopCh != nil {
		utils.SafeGo(func() { c.loop(stopCh) }, func(err error) {
			c.logger.Errorw("connectivity loop crashed", "err", err)
		})
	}
	return c
}

func (c *connectivity) IsConnected() bool {
	return c.connected.Load()
}

func (c *connectivity) loop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			c.logger.Infow("connectivity loop stopped")
			return
		case <-ticker.C:
			c.check(context.Background())
		}
	}
}

func (c *connectivity) check(ctx context.Context) {
	ctx, canF := context.WithTimeout(ctx, c.timeout)
	defer canF()
	if err := c.probe(ctx); err != nil {
		c.setState(false, err.Error())
		return
	}
	c.setState(true, "probe succeed")
}

// observe inspects the result of a remote call and passes err through.
func (c *connectivity) observe(err error) error {
	if err == nil || errors.Is(err, types.ErrNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	c.setState(false, err.Error())
	return err
}

func (c *connectivity) setState(connected bool, reason string) {
	if c.connected.Swap(connected) == connected {
		return
	}
	if connected {
		c.logger.Infow("backend online", "reason", reason)
		backendConnectedGauge.WithLabelValues(c.backendID).Set(1)
	} else {
		c.logger.Warnw("backend offline", "reason", reason)
		backendConnectedGauge.WithLabelValues(c.backendID).Set(0)
	}
	eventbus.Publish(events.ConnectivityTopic(connected), &types.ConnectivityEvent{
		Backend:   c.backendID,
		Connected: connected,
		Reason:    reason,
		Time:      time.Now(),
	})
}

// newManualConnectivity starts in the given state and only changes
// through setState.
func newManualConnectivity(backendID string, connected bool) *connectivity {
	c := &connectivity{
		backendID: backendID,
		logger:    logger.NewLogger("connectivity").With(zap.String("backend", backendID)),
	}
	c.connected.Store(connected)
	if connected {
		backendConnectedGauge.WithLabelValues(backendID).Set(1)
	}
	return c
}
