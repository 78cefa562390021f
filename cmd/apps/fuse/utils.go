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
	"errors"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/basenana/dragonstash/pkg/types"
)

const (
	fileBlockSize = 4096
	maxNameLength = 255

	defaultEntryTimeout = time.Second
	defaultAttrTimeout  = time.Second
)

var (
	// EROFS answers every write attempt, the mount mirrors the backend read-only
	EROFS   = fuse.Status(unix.EROFS)
	ENOTDIR = fuse.Status(unix.ENOTDIR)
)

func fsMountOptions(displayName string, ops []string) []string {
	options := []string{"ro"}
	if displayName != "" {
		options = append(options, "subtype="+displayName)
	}
	if ops != nil {
		options = append(options, ops...)
	}
	return options
}

// Error2FuseStatus maps orchestrator errors onto errno replies.
func Error2FuseStatus(operation string, err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	switch {
	case errors.Is(err, types.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, types.ErrOffline):
		return fuse.EIO
	case errors.Is(err, types.ErrNoGroup):
		return ENOTDIR
	case errors.Is(err, types.ErrInvalidArgument), errors.Is(err, types.ErrNoLink):
		return fuse.EINVAL
	case errors.Is(err, types.ErrIsGroup):
		return fuse.Status(unix.EISDIR)
	case errors.Is(err, types.ErrUnsupported):
		return fuse.ENOSYS
	case errors.Is(err, context.Canceled):
		return fuse.EINTR
	}
	unexpectedErrorCounter.WithLabelValues(operation).Inc()
	return fuse.EIO
}

func entryToAttr(entry *types.Entry, out *fuse.Attr) {
	out.Ino = entry.Ino
	out.Size = uint64(entry.Attr.Size)
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = fileBlockSize
	out.Mode = types.FileMode(entry.Kind) | (entry.Attr.Mode & types.PermMask)
	out.Nlink = entry.Attr.Nlink
	out.Owner = fuse.Owner{Uid: entry.Attr.UID, Gid: entry.Attr.GID}
	accessAt, modifiedAt, changedAt := entry.Attr.AccessAt, entry.Attr.ModifiedAt, entry.Attr.ChangedAt
	out.SetTimes(&accessAt, &modifiedAt, &changedAt)
}

func fillEntryOut(entry *types.Entry, out *fuse.EntryOut, entryTimeout, attrTimeout time.Duration) {
	out.NodeId = entry.Ino
	out.Generation = 1
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
	entryToAttr(entry, &out.Attr)
}

func newContext(cancel <-chan struct{}, header *fuse.InHeader) *fuse.Context {
	return &fuse.Context{Caller: header.Caller, Cancel: cancel}
}

func durationOrDefault(sec *int, def time.Duration) time.Duration {
	if sec == nil {
		return def
	}
	return time.Duration(*sec) * time.Second
}
