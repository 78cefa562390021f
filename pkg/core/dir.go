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
	"path"
	"time"

	"github.com/basenana/dragonstash/pkg/metastore"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
)

func (f *FileSystem) OpenDir(ctx context.Context, ino uint64) (handle uint64, err error) {
	const openDirOperation = "opendir"
	defer utils.TraceRegion(ctx, "fs.opendir")()
	defer logOperationLatency(openDirOperation, time.Now())
	defer func() { err = logOperationError(openDirOperation, err) }()

	r, err := f.resolve(ctx, ino)
	if err != nil {
		return 0, err
	}
	if !r.inode.IsGroup() {
		return 0, types.ErrNoGroup
	}

	if r.bound && f.backend.IsConnected(ctx) {
		if err = f.syncDir(ctx, r); err != nil {
			if isCanceled(err) || isBackendMiss(err) {
				return 0, err
			}
			f.logger.Warnw("sync dir failed, open from cache", "ino", ino, "path", r.path, "err", err)
		}
	}

	h := f.handles.open(ino)
	openDirHandleGauge.Set(float64(f.handles.size()))
	return h.id, nil
}

// syncDir reconciles the children of a directory with the backend listing
// in one transaction, then flags the directory synced.
func (f *FileSystem) syncDir(ctx context.Context, dir *resolved) error {
	ctx, endTask := utils.TraceTask(ctx, "fs.syncdir")
	defer endTask()
	infos, err := f.backend.ListChildren(ctx, dir.path)
	if err != nil {
		if isBackendMiss(err) && dir.inode.Ino != types.RootIno {
			f.vanish(ctx, dir.inode.Parent, dir.inode.Name)
		}
		return err
	}

	targets := make(map[string]string)
	for _, info := range infos {
		if target := f.fetchTarget(ctx, path.Join(dir.path, info.Name), info.Kind); target != "" {
			targets[info.Name] = target
		}
	}

	var added, updated, vanished int
	err = f.cache.Update(ctx, func(tx metastore.Txn) error {
		dentries, err := tx.ListDentries(dir.inode.Ino)
		if err != nil {
			return err
		}
		known := make(map[string]types.Dentry, len(dentries))
		for _, den := range dentries {
			known[den.Name] = den
		}

		live := make(map[string]struct{}, len(infos))
		for _, info := range infos {
			if metastore.ValidName(info.Name) != nil {
				f.logger.Warnw("skip backend object with invalid name", "dir", dir.path, "name", info.Name)
				continue
			}
			live[info.Name] = struct{}{}

			ino, err := tx.AllocateAndLink(dir.inode.Ino, info.Name, info.Kind, info.Attr)
			if err != nil {
				return err
			}
			if target, ok := targets[info.Name]; ok {
				if err = tx.SetSymlink(ino, target); err != nil {
					return err
				}
			}
			if den, ok := known[info.Name]; ok && !den.Vanished && den.Child == ino {
				updated++
			} else {
				added++
			}
		}

		for _, den := range dentries {
			if _, ok := live[den.Name]; ok || den.Vanished {
				continue
			}
			if err = tx.Unlink(dir.inode.Ino, den.Name); err != nil {
				return err
			}
			vanished++
		}
		return tx.SetFlag(dir.inode.Ino, types.FlagSynced)
	})
	if err != nil {
		f.logger.Errorw("reconcile dir failed", "ino", dir.inode.Ino, "path", dir.path, "err", err)
		return err
	}

	dirSyncedCounter.Inc()
	f.logger.Debugw("dir synced", "ino", dir.inode.Ino, "path", dir.path,
		"added", added, "updated", updated, "vanished", vanished)
	publishDirSynced(dir.inode.Ino, dir.path, added, updated, vanished)
	return nil
}

// ReadDir returns the entries of an open directory starting after offset,
// as many as fit in sizeBudget bytes of FUSE dirents; a budget <= 0 means
// no limit. next is the offset to continue from.
func (f *FileSystem) ReadDir(ctx context.Context, ino, handle, offset uint64, sizeBudget int) (entries []types.DirEntry, next uint64, err error) {
	const readDirOperation = "readdir"
	defer utils.TraceRegion(ctx, "fs.readdir")()
	defer logOperationLatency(readDirOperation, time.Now())
	defer func() { err = logOperationError(readDirOperation, err) }()

	h := f.handles.get(handle)
	if h == nil || h.ino != ino {
		return nil, offset, types.ErrInvalidArgument
	}
	h.mux.Lock()
	defer h.mux.Unlock()

	synced, err := f.ensureSynced(ctx, ino)
	if err != nil {
		return nil, offset, err
	}

	var (
		remain = sizeBudget
		cursor = metastore.Cursor{}
		offErr error
	)
	cursor.Offset, cursor.LastIno = h.cursorFor(offset)
	h.lastIno = cursor.LastIno
	next = offset

	err = f.cache.View(ctx, func(tx metastore.ReadTxn) error {
		it, err := tx.ListEntries(ino, cursor)
		if err != nil {
			return err
		}
		for pos := offset; ; pos++ {
			// children of a never synced dir are not trusted offline
			if pos >= 2 && !synced {
				offErr = types.ErrOffline
				return nil
			}
			if !it.HasNext() {
				return nil
			}
			en, err := it.Next()
			if err != nil {
				return err
			}
			if sizeBudget > 0 {
				size := direntSize(en.Name)
				if size > remain {
					return nil
				}
				remain -= size
			}
			entries = append(entries, *en)
			next = en.Offset
			if en.Name != "." && en.Name != ".." {
				h.lastIno = en.Ino
			}
		}
	})
	if err != nil {
		return nil, offset, err
	}
	h.lastOffset = next
	if next <= 2 {
		h.lastIno = types.InvalidIno
	}

	// entries already produced are handed out, the next call fails
	if offErr != nil && len(entries) == 0 {
		return nil, offset, offErr
	}
	return entries, next, nil
}

// ensureSynced reports whether the directory listing can be trusted,
// syncing it first when it never was and the backend is reachable.
func (f *FileSystem) ensureSynced(ctx context.Context, ino uint64) (bool, error) {
	synced, err := f.cache.TestFlag(ctx, ino, types.FlagSynced)
	if err != nil || synced {
		return synced, err
	}
	if !f.backend.IsConnected(ctx) {
		return false, nil
	}

	r, err := f.resolve(ctx, ino)
	if err != nil {
		return false, err
	}
	if !r.bound {
		// the backend already reported it gone or replaced
		return false, types.ErrNotFound
	}
	if err = f.syncDir(ctx, r); err != nil {
		if isCanceled(err) || isBackendMiss(err) {
			return false, err
		}
		f.logger.Warnw("implicit sync failed", "ino", ino, "err", err)
		return false, nil
	}
	return true, nil
}

func (f *FileSystem) ReleaseDir(ctx context.Context, handle uint64) error {
	if !f.handles.release(handle) {
		return types.ErrInvalidArgument
	}
	openDirHandleGauge.Set(float64(f.handles.size()))
	return nil
}
