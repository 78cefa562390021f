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
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/metastore"
	"github.com/basenana/dragonstash/pkg/storage"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
)

// FileSystem answers namespace requests from the cache, reconciling it
// against the backend whenever the backend is reachable.
type FileSystem struct {
	cache     *metastore.Cache
	backend   storage.Backend
	paths     *pathCache
	handles   *handleTable
	listeners []string
	logger    *zap.SugaredLogger
}

func NewFileSystem(cache *metastore.Cache, backend storage.Backend, cfg config.Bootstrap) (*FileSystem, error) {
	if cache == nil || backend == nil {
		return nil, fmt.Errorf("cache and backend are required")
	}
	f := &FileSystem{
		cache:   cache,
		backend: backend,
		paths:   newPathCache(cfg.Cache.PathCacheSize),
		handles: newHandleTable(),
		logger:  logger.NewLogger("fs").With(zap.String("backend", backend.ID())),
	}
	f.subscribeConnectivity()
	return f, nil
}

// resolved is the cached view of one ino. bound is false once the name it
// was found under binds another object or vanished.
type resolved struct {
	inode *types.Inode
	path  string
	bound bool
}

func (f *FileSystem) resolve(ctx context.Context, ino uint64) (*resolved, error) {
	var r = &resolved{}
	err := f.cache.View(ctx, func(tx metastore.ReadTxn) error {
		var err error
		r.inode, err = tx.GetInode(ino)
		if err != nil {
			return err
		}
		if ino == types.RootIno {
			r.bound = true
		} else {
			den, err := tx.LookupDentry(r.inode.Parent, r.inode.Name)
			if err != nil && err != types.ErrNotFound {
				return err
			}
			r.bound = err == nil && den.Child == ino && !den.Vanished
		}
		if p, ok := f.paths.get(ino); ok {
			r.path = p
			return nil
		}
		r.path, err = tx.Path(ino)
		return err
	})
	if err != nil {
		return nil, err
	}
	f.paths.set(ino, r.path)
	return r, nil
}

func (f *FileSystem) Lookup(ctx context.Context, parent uint64, name string) (entry *types.Entry, err error) {
	const lookupOperation = "lookup"
	defer utils.TraceRegion(ctx, "fs.lookup")()
	defer logOperationLatency(lookupOperation, time.Now())
	defer func() { err = logOperationError(lookupOperation, err) }()

	var (
		dir    *types.Inode
		den    *types.Dentry
		cached *types.Inode
	)
	err = f.cache.View(ctx, func(tx metastore.ReadTxn) error {
		var err error
		dir, err = tx.GetInode(parent)
		if err != nil {
			return err
		}
		if !dir.IsGroup() {
			return types.ErrNoGroup
		}
		switch name {
		case ".":
			cached = dir
			return nil
		case "..":
			upper := dir.Parent
			if upper == types.InvalidIno {
				upper = dir.Ino
			}
			cached, err = tx.GetInode(upper)
			return err
		}
		if err = metastore.ValidName(name); err != nil {
			return err
		}

		den, err = tx.LookupDentry(parent, name)
		if err != nil {
			if err == types.ErrNotFound {
				den = nil
				return nil
			}
			return err
		}
		cached, err = tx.GetInode(den.Child)
		return err
	})
	if err != nil {
		return nil, err
	}
	if name == "." || name == ".." {
		return cached.Entry(), nil
	}

	if !f.backend.IsConnected(ctx) {
		return f.lookupOffline(den, cached)
	}

	dirPath, err := f.pathOf(ctx, dir)
	if err != nil {
		return nil, err
	}
	entryPath := path.Join(dirPath, name)
	info, err := f.backend.Stat(ctx, entryPath)
	if err != nil {
		if isBackendMiss(err) {
			if den != nil && !den.Vanished {
				f.vanish(ctx, parent, name)
			}
			return nil, types.ErrNotFound
		}
		if isCanceled(err) {
			return nil, err
		}
		f.logger.Warnw("stat on backend failed, fallback to cache", "path", entryPath, "err", err)
		return f.lookupOffline(den, cached)
	}

	inode, err := f.link(ctx, parent, name, entryPath, info)
	if err != nil {
		return nil, err
	}
	return inode.Entry(), nil
}

func (f *FileSystem) lookupOffline(den *types.Dentry, cached *types.Inode) (*types.Entry, error) {
	switch {
	case den == nil:
		return nil, types.ErrOffline
	case den.Vanished:
		return nil, types.ErrNotFound
	}
	logOfflineServed("lookup")
	return cached.Entry(), nil
}

// link records one object reported by the backend and returns its inode.
func (f *FileSystem) link(ctx context.Context, parent uint64, name, entryPath string, info *storage.Info) (*types.Inode, error) {
	target := f.fetchTarget(ctx, entryPath, info.Kind)

	var inode *types.Inode
	err := f.cache.Update(ctx, func(tx metastore.Txn) error {
		ino, err := tx.AllocateAndLink(parent, name, info.Kind, info.Attr)
		if err != nil {
			return err
		}
		if target != "" {
			if err = tx.SetSymlink(ino, target); err != nil {
				return err
			}
		}
		inode, err = tx.GetInode(ino)
		return err
	})
	if err != nil {
		f.logger.Errorw("link backend object failed", "path", entryPath, "err", err)
		return nil, err
	}
	f.paths.set(inode.Ino, entryPath)
	return inode, nil
}

// fetchTarget reads a symlink target so that it stays readable offline.
func (f *FileSystem) fetchTarget(ctx context.Context, entryPath string, kind types.Kind) string {
	if kind != types.SymLinkKind {
		return ""
	}
	target, err := f.backend.ReadLink(ctx, entryPath)
	if err != nil {
		f.logger.Debugw("prefetch symlink target failed", "path", entryPath, "err", err)
		return ""
	}
	return target
}

func (f *FileSystem) vanish(ctx context.Context, parent uint64, name string) {
	err := f.cache.Update(ctx, func(tx metastore.Txn) error {
		return tx.Unlink(parent, name)
	})
	if err != nil && err != types.ErrNotFound {
		f.logger.Warnw("mark entry vanished failed", "parent", parent, "name", name, "err", err)
	}
}

func (f *FileSystem) pathOf(ctx context.Context, inode *types.Inode) (string, error) {
	if p, ok := f.paths.get(inode.Ino); ok {
		return p, nil
	}
	r, err := f.resolve(ctx, inode.Ino)
	if err != nil {
		return "", err
	}
	return r.path, nil
}

func (f *FileSystem) GetAttr(ctx context.Context, ino uint64) (entry *types.Entry, err error) {
	const getAttrOperation = "getattr"
	defer utils.TraceRegion(ctx, "fs.getattr")()
	defer logOperationLatency(getAttrOperation, time.Now())
	defer func() { err = logOperationError(getAttrOperation, err) }()

	r, err := f.resolve(ctx, ino)
	if err != nil {
		return nil, err
	}
	if !r.bound || !f.backend.IsConnected(ctx) {
		return r.inode.Entry(), nil
	}

	info, err := f.backend.Stat(ctx, r.path)
	if err != nil {
		if isCanceled(err) {
			return nil, err
		}
		if !isBackendMiss(err) {
			logOfflineServed(getAttrOperation)
		}
		return r.inode.Entry(), nil
	}
	if info.Kind != r.inode.Kind {
		// replaced by another kind of object, the next lookup rebinds the name
		return r.inode.Entry(), nil
	}

	var inode *types.Inode
	err = f.cache.Update(ctx, func(tx metastore.Txn) error {
		if err := tx.SetAttr(ino, info.Attr); err != nil {
			return err
		}
		var err error
		inode, err = tx.GetInode(ino)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inode.Entry(), nil
}

func (f *FileSystem) ReadLink(ctx context.Context, ino uint64) (target string, err error) {
	const readlinkOperation = "readlink"
	defer utils.TraceRegion(ctx, "fs.readlink")()
	defer logOperationLatency(readlinkOperation, time.Now())
	defer func() { err = logOperationError(readlinkOperation, err) }()

	r, err := f.resolve(ctx, ino)
	if err != nil {
		return "", err
	}
	if r.inode.Kind != types.SymLinkKind {
		return "", types.ErrInvalidArgument
	}

	if r.bound && f.backend.IsConnected(ctx) {
		target, err = f.backend.ReadLink(ctx, r.path)
		switch {
		case err == nil:
			if target != r.inode.Symlink {
				if err = f.cache.Update(ctx, func(tx metastore.Txn) error {
					return tx.SetSymlink(ino, target)
				}); err != nil {
					f.logger.Warnw("store symlink target failed", "ino", ino, "err", err)
				}
			}
			return target, nil
		case isCanceled(err):
			return "", err
		case isBackendMiss(err) && r.inode.Symlink == "":
			return "", types.ErrNotFound
		default:
			f.logger.Warnw("readlink on backend failed, fallback to cache", "path", r.path, "err", err)
		}
	}

	if r.inode.Symlink == "" {
		return "", types.ErrOffline
	}
	logOfflineServed(readlinkOperation)
	return r.inode.Symlink, nil
}

func (f *FileSystem) FsInfo(ctx context.Context) (*types.CacheInfo, error) {
	defer utils.TraceRegion(ctx, "fs.fsinfo")()
	return f.cache.Info(ctx)
}

func (f *FileSystem) BackendID() string {
	return f.backend.ID()
}

func (f *FileSystem) Close() error {
	f.unsubscribeAll()
	return nil
}

// CachedEntry returns what the cache holds for ino without asking the backend.
func (f *FileSystem) CachedEntry(ctx context.Context, ino uint64) (*types.Entry, error) {
	inode, err := f.cache.GetInode(ctx, ino)
	if err != nil {
		return nil, err
	}
	return inode.Entry(), nil
}
