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
	"sync"
	"sync/atomic"

	"github.com/basenana/dragonstash/pkg/types"
)

type dirHandle struct {
	id  uint64
	ino uint64

	// where the previous ReadDir stopped, used to resume by key
	lastOffset uint64
	lastIno    uint64
	mux        sync.Mutex
}

func (h *dirHandle) cursorFor(offset uint64) (uint64, uint64) {
	if offset == h.lastOffset && h.lastIno != types.InvalidIno {
		return offset, h.lastIno
	}
	return offset, types.InvalidIno
}

type handleTable struct {
	next    atomic.Uint64
	handles map[uint64]*dirHandle
	mux     sync.RWMutex
}

func (t *handleTable) open(ino uint64) *dirHandle {
	h := &dirHandle{id: t.next.Add(1), ino: ino}
	t.mux.Lock()
	t.handles[h.id] = h
	t.mux.Unlock()
	return h
}

func (t *handleTable) get(id uint64) *dirHandle {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return t.handles[id]
}

func (t *handleTable) release(id uint64) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	if _, ok := t.handles[id]; !ok {
		return false
	}
	delete(t.handles, id)
	return true
}

func (t *handleTable) size() int {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return len(t.handles)
}

func newHandleTable() *handleTable {
	return &handleTable{handles: map[uint64]*dirHandle{}}
}
