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
	"time"

	"github.com/hyponet/eventbus"

	"github.com/basenana/dragonstash/pkg/events"
	"github.com/basenana/dragonstash/pkg/types"
)

func (f *FileSystem) subscribeConnectivity() {
	handler := func(evt *types.ConnectivityEvent) {
		if evt == nil || evt.Backend != f.backend.ID() {
			return
		}
		if evt.Connected {
			f.logger.Infow("backend online, serving from backend", "backend", evt.Backend, "reason", evt.Reason)
			backendOnlineGauge.WithLabelValues(evt.Backend).Set(1)
			return
		}
		f.logger.Warnw("backend offline, serving from cache", "backend", evt.Backend, "reason", evt.Reason)
		backendOnlineGauge.WithLabelValues(evt.Backend).Set(0)
	}
	f.listeners = append(f.listeners,
		eventbus.Subscribe(events.TopicBackendOnline, handler),
		eventbus.Subscribe(events.TopicBackendOffline, handler),
	)
}

func (f *FileSystem) unsubscribeAll() {
	for _, lid := range f.listeners {
		eventbus.Unsubscribe(lid)
	}
	f.listeners = nil
}

func publishDirSynced(ino uint64, p string, added, updated, vanished int) {
	eventbus.Publish(events.TopicDirSynced, &types.SyncEvent{
		Ino:      ino,
		Path:     p,
		Added:    added,
		Updated:  updated,
		Vanished: vanished,
		Time:     time.Now(),
	})
}
