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

package types

import (
	"time"
)

const (
	// InvalidIno never names a real object.
	InvalidIno uint64 = 0
	// RootIno is the identifier of the mount root.
	RootIno uint64 = 1

	PermMask uint32 = 07777
)

type InodeFlag uint32

const (
	// FlagSynced marks a directory whose children were reconciled against
	// the backend at least once.
	FlagSynced InodeFlag = 1 << iota
)

type Attr struct {
	Mode       uint32    `json:"mode"`
	UID        uint32    `json:"uid"`
	GID        uint32    `json:"gid"`
	Size       int64     `json:"size"`
	Nlink      uint32    `json:"nlink"`
	AccessAt   time.Time `json:"access_at"`
	ModifiedAt time.Time `json:"modified_at"`
	ChangedAt  time.Time `json:"changed_at"`
}

// Inode is the cached record of one backend object.
type Inode struct {
	Ino      uint64    `json:"ino"`
	Parent   uint64    `json:"parent"`
	Name     string    `json:"name"`
	Kind     Kind      `json:"kind"`
	Attr     Attr      `json:"attr"`
	Flags    InodeFlag `json:"flags"`
	Symlink  string    `json:"symlink,omitempty"`
	CachedAt time.Time `json:"cached_at"`
	SyncedAt time.Time `json:"synced_at,omitempty"`
}

func (i *Inode) IsGroup() bool {
	return i.Kind == GroupKind
}

func (i *Inode) HasFlag(f InodeFlag) bool {
	return i.Flags&f == f
}

// Equal compares identity, not attributes.
func (i *Inode) Equal(o *Inode) bool {
	if i == nil || o == nil {
		return i == o
	}
	return i.Ino == o.Ino
}

func (i *Inode) Entry() *Entry {
	return &Entry{Ino: i.Ino, Kind: i.Kind, Attr: i.Attr}
}

// Entry is what lookup hands back to the kernel side.
type Entry struct {
	Ino  uint64 `json:"ino"`
	Kind Kind   `json:"kind"`
	Attr Attr   `json:"attr"`
}

// Dentry binds a name inside a directory to an inode.
type Dentry struct {
	Parent   uint64 `json:"parent"`
	Name     string `json:"name"`
	Child    uint64 `json:"child"`
	Vanished bool   `json:"vanished,omitempty"`
}

// DirEntry is one item of a directory stream. Offset is the position a
// reader passes back to continue right after this entry.
type DirEntry struct {
	Name   string `json:"name"`
	Ino    uint64 `json:"ino"`
	Kind   Kind   `json:"kind"`
	Offset uint64 `json:"offset"`
}

type CacheInfo struct {
	CacheID    string `json:"cache_id"`
	InodeCount int64  `json:"inode_count"`
	NextIno    uint64 `json:"next_ino"`
	TotalSize  int64  `json:"total_size"`
}
