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

package fuse

import (
	"context"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
)

// FileSystem is the namespace the kernel requests are served from.
type FileSystem interface {
	Lookup(ctx context.Context, parent uint64, name string) (*types.Entry, error)
	GetAttr(ctx context.Context, ino uint64) (*types.Entry, error)
	CachedEntry(ctx context.Context, ino uint64) (*types.Entry, error)
	ReadLink(ctx context.Context, ino uint64) (string, error)
	OpenDir(ctx context.Context, ino uint64) (uint64, error)
	ReadDir(ctx context.Context, ino, handle, offset uint64, sizeBudget int) ([]types.DirEntry, uint64, error)
	ReleaseDir(ctx context.Context, handle uint64) error
	FsInfo(ctx context.Context) (*types.CacheInfo, error)
}

// rawFS binds kernel inode numbers directly to cache inos, which never
// change and are never reused, so Forget has nothing to release.
type rawFS struct {
	fuse.RawFileSystem

	fs           FileSystem
	entryTimeout time.Duration
	attrTimeout  time.Duration
	logger       *zap.SugaredLogger
}

func (r *rawFS) String() string {
	return fsName
}

func (r *rawFS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	const operation = "lookup"
	ctx := newContext(cancel, header)
	defer utils.TraceRegion(ctx, "fuse.lookup")()
	defer logOperationLatency(operation, time.Now())

	entry, err := r.fs.Lookup(ctx, header.NodeId, name)
	if err != nil {
		if err != types.ErrNotFound {
			r.logger.Debugw("lookup failed", "parent", header.NodeId, "name", name, "err", err)
		}
		return Error2FuseStatus(operation, err)
	}
	fillEntryOut(entry, out, r.entryTimeout, r.attrTimeout)
	return fuse.OK
}

func (r *rawFS) Forget(nodeID, nlookup uint64) {}

func (r *rawFS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	const operation = "getattr"
	ctx := newContext(cancel, &input.InHeader)
	defer utils.TraceRegion(ctx, "fuse.getattr")()
	defer logOperationLatency(operation, time.Now())

	entry, err := r.fs.GetAttr(ctx, input.NodeId)
	if err != nil {
		return Error2FuseStatus(operation, err)
	}
	out.SetTimeout(r.attrTimeout)
	entryToAttr(entry, &out.Attr)
	return fuse.OK
}

func (r *rawFS) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	const operation = "readlink"
	ctx := newContext(cancel, header)
	defer utils.TraceRegion(ctx, "fuse.readlink")()
	defer logOperationLatency(operation, time.Now())

	target, err := r.fs.ReadLink(ctx, header.NodeId)
	if err != nil {
		return nil, Error2FuseStatus(operation, err)
	}
	return []byte(target), fuse.OK
}

func (r *rawFS) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	const operation = "access"
	ctx := newContext(cancel, &input.InHeader)
	defer logOperationLatency(operation, time.Now())

	entry, err := r.fs.CachedEntry(ctx, input.NodeId)
	if err != nil {
		return Error2FuseStatus(operation, err)
	}
	return checkAccess(entry, input.Uid, input.Gid, input.Mask)
}

func (r *rawFS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	const operation = "opendir"
	ctx := newContext(cancel, &input.InHeader)
	defer utils.TraceRegion(ctx, "fuse.opendir")()
	defer logOperationLatency(operation, time.Now())

	handle, err := r.fs.OpenDir(ctx, input.NodeId)
	if err != nil {
		return Error2FuseStatus(operation, err)
	}
	out.Fh = handle
	return fuse.OK
}

func (r *rawFS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	const operation = "readdir"
	ctx := newContext(cancel, &input.InHeader)
	defer utils.TraceRegion(ctx, "fuse.readdir")()
	defer logOperationLatency(operation, time.Now())

	entries, _, err := r.fs.ReadDir(ctx, input.NodeId, input.Fh, input.Offset, int(input.Size))
	if err != nil {
		return Error2FuseStatus(operation, err)
	}
	for _, en := range entries {
		if !out.AddDirEntry(fuse.DirEntry{Name: en.Name, Ino: en.Ino, Mode: types.FileMode(en.Kind)}) {
			break
		}
	}
	return fuse.OK
}

func (r *rawFS) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	const operation = "readdirplus"
	ctx := newContext(cancel, &input.InHeader)
	defer utils.TraceRegion(ctx, "fuse.readdirplus")()
	defer logOperationLatency(operation, time.Now())

	entries, _, err := r.fs.ReadDir(ctx, input.NodeId, input.Fh, input.Offset, int(input.Size))
	if err != nil {
		return Error2FuseStatus(operation, err)
	}
	for _, en := range entries {
		entryOut := out.AddDirLookupEntry(fuse.DirEntry{Name: en.Name, Ino: en.Ino, Mode: types.FileMode(en.Kind)})
		if entryOut == nil {
			break
		}
		if en.Name == "." || en.Name == ".." {
			// the kernel takes no lookup reference for dot entries
			continue
		}
		cached, err := r.fs.CachedEntry(ctx, en.Ino)
		if err != nil {
			r.logger.Warnw("load cached entry for readdirplus failed", "ino", en.Ino, "err", err)
			continue
		}
		fillEntryOut(cached, entryOut, r.entryTimeout, r.attrTimeout)
	}
	return fuse.OK
}

func (r *rawFS) ReleaseDir(input *fuse.ReleaseIn) {
	if err := r.fs.ReleaseDir(context.Background(), input.Fh); err != nil {
		r.logger.Warnw("release dir handle failed", "ino", input.NodeId, "fh", input.Fh, "err", err)
	}
}

func (r *rawFS) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	const operation = "statfs"
	ctx := newContext(cancel, header)
	defer logOperationLatency(operation, time.Now())

	info, err := r.fs.FsInfo(ctx)
	if err != nil {
		return Error2FuseStatus(operation, err)
	}
	used := uint64(info.TotalSize+fileBlockSize-1) / fileBlockSize
	out.Bsize = fileBlockSize
	out.Frsize = fileBlockSize
	out.NameLen = maxNameLength
	out.Blocks = used
	out.Bfree = 0
	out.Bavail = 0
	out.Files = uint64(info.InodeCount)
	out.Ffree = 0
	return fuse.OK
}

const (
	accessRead  = 4
	accessWrite = 2
	accessExec  = 1
)

func checkAccess(entry *types.Entry, uid, gid, mask uint32) fuse.Status {
	if mask&accessWrite != 0 {
		return EROFS
	}
	if uid == 0 {
		if mask&accessExec != 0 && entry.Kind != types.GroupKind && entry.Attr.Mode&0111 == 0 {
			return fuse.EACCES
		}
		return fuse.OK
	}

	perm := entry.Attr.Mode & 07
	switch {
	case uid == entry.Attr.UID:
		perm = (entry.Attr.Mode >> 6) & 07
	case gid == entry.Attr.GID:
		perm = (entry.Attr.Mode >> 3) & 07
	}
	if mask&perm != mask&07 {
		return fuse.EACCES
	}
	return fuse.OK
}
