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
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/basenana/dragonstash/pkg/types"
)

type memoryNode struct {
	kind   types.Kind
	attr   types.Attr
	target string
}

// MemoryBackend is an in-process tree of files, directories and symlinks.
// While disconnected every call fails like an unreachable remote would.
type MemoryBackend struct {
	id    string
	nodes map[string]*memoryNode
	conn  *connectivity
	mux   sync.RWMutex
}

var _ Backend = &MemoryBackend{}

func NewMemoryBackend(id string) *MemoryBackend {
	if id == "" {
		id = "memory"
	}
	now := time.Now()
	return &MemoryBackend{
		id: id,
		nodes: map[string]*memoryNode{
			"/": {kind: types.GroupKind, attr: types.Attr{Mode: 0755, Nlink: 2, AccessAt: now, ModifiedAt: now, ChangedAt: now}},
		},
		conn: newManualConnectivity(id, true),
	}
}

func (m *MemoryBackend) ID() string {
	return m.id
}

func (m *MemoryBackend) IsConnected(ctx context.Context) bool {
	return m.conn.IsConnected()
}

func (m *MemoryBackend) SetConnected(connected bool) {
	reason := "memory backend plugged"
	if !connected {
		reason = "memory backend unplugged"
	}
	m.conn.setState(connected, reason)
}

func (m *MemoryBackend) Stat(ctx context.Context, p string) (*Info, error) {
	if err := m.reachable(); err != nil {
		return nil, err
	}
	p = CleanPath(p)
	m.mux.RLock()
	defer m.mux.RUnlock()
	node, ok := m.nodes[p]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &Info{Name: path.Base(p), Kind: node.kind, Attr: node.attr}, nil
}

func (m *MemoryBackend) ListChildren(ctx context.Context, p string) ([]Info, error) {
	if err := m.reachable(); err != nil {
		return nil, err
	}
	p = CleanPath(p)
	m.mux.RLock()
	defer m.mux.RUnlock()
	dir, ok := m.nodes[p]
	if !ok {
		return nil, types.ErrNotFound
	}
	if dir.kind != types.GroupKind {
		return nil, types.ErrNoGroup
	}

	result := make([]Info, 0)
	for nodePath, node := range m.nodes {
		if nodePath == "/" || path.Dir(nodePath) != p {
			continue
		}
		result = append(result, Info{Name: path.Base(nodePath), Kind: node.kind, Attr: node.attr})
	}
	return sortInfos(result), nil
}

func (m *MemoryBackend) ReadLink(ctx context.Context, p string) (string, error) {
	if err := m.reachable(); err != nil {
		return "", err
	}
	m.mux.RLock()
	defer m.mux.RUnlock()
	node, ok := m.nodes[CleanPath(p)]
	if !ok {
		return "", types.ErrNotFound
	}
	if node.kind != types.SymLinkKind {
		return "", types.ErrInvalidArgument
	}
	return node.target, nil
}

func (m *MemoryBackend) PutFile(p string, attr types.Attr) error {
	return m.put(p, &memoryNode{kind: types.RawKind, attr: attr})
}

func (m *MemoryBackend) Mkdir(p string, attr types.Attr) error {
	return m.put(p, &memoryNode{kind: types.GroupKind, attr: attr})
}

func (m *MemoryBackend) Symlink(p, target string, attr types.Attr) error {
	attr.Size = int64(len(target))
	return m.put(p, &memoryNode{kind: types.SymLinkKind, attr: attr, target: target})
}

// Remove deletes p and everything below it.
func (m *MemoryBackend) Remove(p string) error {
	p = CleanPath(p)
	if p == "/" {
		return types.ErrInvalidArgument
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.nodes[p]; !ok {
		return types.ErrNotFound
	}
	for nodePath := range m.nodes {
		if nodePath == p || strings.HasPrefix(nodePath, p+"/") {
			delete(m.nodes, nodePath)
		}
	}
	return nil
}

func (m *MemoryBackend) put(p string, node *memoryNode) error {
	p = CleanPath(p)
	if p == "/" {
		return types.ErrIsExist
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	parent, ok := m.nodes[path.Dir(p)]
	if !ok {
		return types.ErrNotFound
	}
	if parent.kind != types.GroupKind {
		return types.ErrNoGroup
	}
	if old, ok := m.nodes[p]; ok && old.kind == types.GroupKind && node.kind != types.GroupKind {
		for nodePath := range m.nodes {
			if strings.HasPrefix(nodePath, p+"/") {
				delete(m.nodes, nodePath)
			}
		}
	}
	node.attr.Mode &= types.PermMask
	if node.attr.Nlink == 0 {
		node.attr.Nlink = 1
		if node.kind == types.GroupKind {
			node.attr.Nlink = 2
		}
	}
	m.nodes[p] = node
	return nil
}

func (m *MemoryBackend) reachable() error {
	if !m.conn.IsConnected() {
		return fmt.Errorf("memory backend %s: %w", m.id, errUnreachable)
	}
	return nil
}
