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
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/types"
)

// Backend is the authoritative source the cache is reconciled against.
// Paths are absolute and slash separated, "/" being the backend root.
// Stat and ReadLink return types.ErrNotFound when the object does not
// exist; any other error is a transport failure.
type Backend interface {
	ID() string
	IsConnected(ctx context.Context) bool
	Stat(ctx context.Context, path string) (*Info, error)
	ListChildren(ctx context.Context, path string) ([]Info, error)
	ReadLink(ctx context.Context, path string) (string, error)
}

// errUnreachable is returned by backends while they are disconnected.
var errUnreachable = errors.New("backend unreachable")

type Info struct {
	Name string
	Kind types.Kind
	Attr types.Attr
}

func NewBackend(cfg config.Backend, fs *config.FS, stopCh <-chan struct{}) (Backend, error) {
	if fs == nil {
		fs = &config.FS{FileMode: 0644, DirMode: 0755}
	}
	var (
		b   Backend
		err error
	)
	switch cfg.Type {
	case config.MemoryBackend:
		b = NewMemoryBackend(cfg.ID)
	case config.LocalBackend:
		b, err = newLocalBackend(cfg.ID, cfg.LocalDir)
	case config.WebdavBackend:
		b, err = newWebdavBackend(cfg, fs, stopCh)
	case config.S3Backend:
		b, err = newS3Backend(cfg, fs, stopCh)
	case config.MinioBackend:
		b, err = newMinioBackend(cfg, fs, stopCh)
	case config.OSSBackend:
		b, err = newOSSBackend(cfg, fs, stopCh)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return instrumentalBackend{b: b}, nil
}

// CleanPath normalises p into an absolute slash path.
func CleanPath(p string) string {
	return path.Clean("/" + p)
}

func sortInfos(infos []Info) []Info {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// objectKey maps a backend path onto an object key below prefix.
// Directories carry a trailing slash.
func objectKey(prefix, p string, dir bool) string {
	key := strings.TrimPrefix(CleanPath(p), "/")
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		if key == "" {
			key = prefix
		} else {
			key = prefix + "/" + key
		}
	}
	if dir && key != "" {
		key += "/"
	}
	return key
}

// childName returns the first path section of key below dirKey, and
// whether it names a directory.
func childName(dirKey, key string) (string, bool) {
	rest := strings.TrimPrefix(key, dirKey)
	if rest == "" {
		return "", false
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx], true
	}
	return rest, false
}

// objectAttr fills the attributes a backend without a permission model
// cannot report.
func objectAttr(kind types.Kind, fs *config.FS, size int64, modAt time.Time) types.Attr {
	attr := types.Attr{
		Mode:       fs.FileMode,
		UID:        uint32(fs.Owner.Uid),
		GID:        uint32(fs.Owner.Gid),
		Size:       size,
		Nlink:      1,
		AccessAt:   modAt,
		ModifiedAt: modAt,
		ChangedAt:  modAt,
	}
	if kind == types.GroupKind {
		attr.Mode = fs.DirMode
		attr.Size = 0
		attr.Nlink = 2
	}
	return attr
}
