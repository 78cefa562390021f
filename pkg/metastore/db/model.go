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

package db

import (
	"time"

	"github.com/basenana/dragonstash/pkg/types"
)

type SystemInfo struct {
	CacheID   string `gorm:"column:cache_id;primaryKey"`
	NextIno   int64  `gorm:"column:next_ino"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (i SystemInfo) TableName() string {
	return "system_info"
}

type Inode struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	ParentID   int64  `gorm:"column:parent_id;index:inode_parent"`
	Name       string `gorm:"column:name"`
	Kind       string `gorm:"column:kind"`
	Mode       int64  `gorm:"column:mode"`
	UID        int64  `gorm:"column:uid"`
	GID        int64  `gorm:"column:gid"`
	Size       int64  `gorm:"column:size"`
	Nlink      int64  `gorm:"column:nlink"`
	AccessAt   int64  `gorm:"column:access_at"`
	ModifiedAt int64  `gorm:"column:modified_at"`
	ChangedAt  int64  `gorm:"column:changed_at"`
	Flags      int64  `gorm:"column:flags"`
	Symlink    string `gorm:"column:symlink"`
	CachedAt   int64  `gorm:"column:cached_at"`
	SyncedAt   int64  `gorm:"column:synced_at"`
}

func (i *Inode) TableName() string {
	return "inode"
}

func (i *Inode) Update(inode *types.Inode) {
	i.ID = int64(inode.Ino)
	i.ParentID = int64(inode.Parent)
	i.Name = inode.Name
	i.Kind = string(inode.Kind)
	i.Flags = int64(inode.Flags)
	i.Symlink = inode.Symlink
	i.CachedAt = unixNano(inode.CachedAt)
	i.SyncedAt = unixNano(inode.SyncedAt)
	i.UpdateAttr(inode.Attr)
}

func (i *Inode) UpdateAttr(attr types.Attr) {
	i.Mode = int64(attr.Mode & types.PermMask)
	i.UID = int64(attr.UID)
	i.GID = int64(attr.GID)
	i.Size = attr.Size
	i.Nlink = int64(attr.Nlink)
	i.AccessAt = unixNano(attr.AccessAt)
	i.ModifiedAt = unixNano(attr.ModifiedAt)
	i.ChangedAt = unixNano(attr.ChangedAt)
}

func (i *Inode) Attr() types.Attr {
	return types.Attr{
		Mode:       uint32(i.Mode),
		UID:        uint32(i.UID),
		GID:        uint32(i.GID),
		Size:       i.Size,
		Nlink:      uint32(i.Nlink),
		AccessAt:   time.Unix(0, i.AccessAt),
		ModifiedAt: time.Unix(0, i.ModifiedAt),
		ChangedAt:  time.Unix(0, i.ChangedAt),
	}
}

func (i *Inode) ToInode() *types.Inode {
	result := &types.Inode{
		Ino:      uint64(i.ID),
		Parent:   uint64(i.ParentID),
		Name:     i.Name,
		Kind:     types.Kind(i.Kind),
		Attr:     i.Attr(),
		Flags:    types.InodeFlag(i.Flags),
		Symlink:  i.Symlink,
		CachedAt: time.Unix(0, i.CachedAt),
	}
	if i.SyncedAt > 0 {
		result.SyncedAt = time.Unix(0, i.SyncedAt)
	}
	return result
}

// AttrColumns is the column set written by an attribute refresh.
func (i *Inode) AttrColumns() map[string]interface{} {
	return map[string]interface{}{
		"mode":        i.Mode,
		"uid":         i.UID,
		"gid":         i.GID,
		"size":        i.Size,
		"nlink":       i.Nlink,
		"access_at":   i.AccessAt,
		"modified_at": i.ModifiedAt,
		"changed_at":  i.ChangedAt,
		"cached_at":   time.Now().UnixNano(),
	}
}

type Dentry struct {
	ParentID int64  `gorm:"column:parent_id;primaryKey;autoIncrement:false;index:dentry_parent_child,priority:1"`
	Name     string `gorm:"column:name;primaryKey"`
	ChildID  int64  `gorm:"column:child_id;index:dentry_parent_child,priority:2"`
	Vanished bool   `gorm:"column:vanished"`
}

func (d *Dentry) TableName() string {
	return "dentry"
}

func (d *Dentry) ToDentry() *types.Dentry {
	return &types.Dentry{
		Parent:   uint64(d.ParentID),
		Name:     d.Name,
		Child:    uint64(d.ChildID),
		Vanished: d.Vanished,
	}
}

// DirChild is one row of a directory listing query.
type DirChild struct {
	Name    string `gorm:"column:name"`
	ChildID int64  `gorm:"column:child_id"`
	Kind    string `gorm:"column:kind"`
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
