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

package metastore

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/basenana/dragonstash/pkg/metastore/db"
	"github.com/basenana/dragonstash/pkg/types"
)

const (
	entryFetchPageSize = 100

	// "." and ".." occupy the first two positions of every stream
	dotEntries = 2
)

// Cursor resumes a directory stream. Offset counts entries already
// consumed. When LastIno is set, children resume strictly after that ino,
// which stays correct even if entries vanished in between.
type Cursor struct {
	Offset  uint64
	LastIno uint64
}

// EntryIterator is bound to the transaction that created it.
type EntryIterator interface {
	HasNext() bool
	Next() (*types.DirEntry, error)
}

type dirEntryIterator struct {
	tx  *gorm.DB
	dir *db.Inode

	offset    uint64
	lastIno   int64
	skip      int
	page      []db.DirChild
	exhausted bool
	err       error
	mux       sync.Mutex
}

func newDirEntryIterator(tx *gorm.DB, dir *db.Inode, cursor Cursor) EntryIterator {
	it := &dirEntryIterator{tx: tx, dir: dir, offset: cursor.Offset}
	if cursor.Offset > dotEntries {
		if cursor.LastIno != types.InvalidIno {
			it.lastIno = int64(cursor.LastIno)
		} else {
			it.skip = int(cursor.Offset - dotEntries)
		}
	}
	return it
}

func (i *dirEntryIterator) HasNext() bool {
	i.mux.Lock()
	defer i.mux.Unlock()
	if i.offset < dotEntries || i.err != nil {
		return true
	}
	if len(i.page) == 0 && !i.exhausted {
		i.err = i.fetchPage()
	}
	return len(i.page) > 0 || i.err != nil
}

func (i *dirEntryIterator) Next() (*types.DirEntry, error) {
	i.mux.Lock()
	defer i.mux.Unlock()

	switch i.offset {
	case 0:
		i.offset++
		return &types.DirEntry{Name: ".", Ino: uint64(i.dir.ID), Kind: types.GroupKind, Offset: i.offset}, nil
	case 1:
		parent := uint64(i.dir.ParentID)
		if parent == types.InvalidIno {
			parent = uint64(i.dir.ID)
		}
		i.offset++
		return &types.DirEntry{Name: "..", Ino: parent, Kind: types.GroupKind, Offset: i.offset}, nil
	}

	if i.err != nil {
		err := i.err
		i.err = nil
		return nil, err
	}
	if len(i.page) == 0 && !i.exhausted {
		if err := i.fetchPage(); err != nil {
			return nil, err
		}
	}
	if len(i.page) == 0 {
		return nil, fmt.Errorf("has no next entry")
	}

	one := i.page[0]
	i.page = i.page[1:]
	i.offset++
	i.lastIno = one.ChildID
	return &types.DirEntry{Name: one.Name, Ino: uint64(one.ChildID), Kind: types.Kind(one.Kind), Offset: i.offset}, nil
}

func (i *dirEntryIterator) fetchPage() error {
	defer logOperationLatency("dirEntryIterator.query_one_page", time.Now())
	var rows []db.DirChild
	q := i.tx.Table("dentry").
		Select("dentry.name AS name, dentry.child_id AS child_id, inode.kind AS kind").
		Joins("JOIN inode ON inode.id = dentry.child_id").
		Where("dentry.parent_id = ? AND dentry.vanished = ?", i.dir.ID, false)
	if i.lastIno > 0 {
		q = q.Where("dentry.child_id > ?", i.lastIno)
	}
	q = q.Order("dentry.child_id ASC").Limit(entryFetchPageSize)
	if i.skip > 0 {
		q = q.Offset(i.skip)
		i.skip = 0
	}
	if res := q.Scan(&rows); res.Error != nil {
		logOperationError("dirEntryIterator.query_one_page", res.Error)
		return db.SqlError2Error(res.Error)
	}
	if len(rows) < entryFetchPageSize {
		i.exhausted = true
	}
	i.page = rows
	return nil
}
