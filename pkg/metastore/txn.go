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
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/basenana/dragonstash/pkg/metastore/db"
	"github.com/basenana/dragonstash/pkg/types"
)

const maxPathDepth = 4096

var ErrReadOnly = errors.New("write in read-only transaction")

// ReadTxn is a consistent snapshot of the cache.
type ReadTxn interface {
	Lookup(parent uint64, name string) (uint64, error)
	LookupDentry(parent uint64, name string) (*types.Dentry, error)
	ListDentries(parent uint64) ([]types.Dentry, error)
	GetInode(ino uint64) (*types.Inode, error)
	GetAttr(ino uint64) (types.Attr, error)
	TestFlag(ino uint64, flag types.InodeFlag) (bool, error)
	ListEntries(ino uint64, cursor Cursor) (EntryIterator, error)
	Path(ino uint64) (string, error)
	Info() (*types.CacheInfo, error)
}

// Txn is a read-write transaction. Its effects become visible on commit.
type Txn interface {
	ReadTxn

	SetAttr(ino uint64, attr types.Attr) error
	SetFlag(ino uint64, flag types.InodeFlag) error
	ClearFlag(ino uint64, flag types.InodeFlag) error
	SetSymlink(ino uint64, target string) error
	AllocateAndLink(parent uint64, name string, kind types.Kind, attr types.Attr) (uint64, error)
	Unlink(parent uint64, name string) error
}

type sqlTxn struct {
	tx       *gorm.DB
	readOnly bool
	lockRows bool
}

var _ Txn = &sqlTxn{}

func (t *sqlTxn) Lookup(parent uint64, name string) (uint64, error) {
	den, err := t.LookupDentry(parent, name)
	if err != nil {
		return types.InvalidIno, err
	}
	if den.Vanished {
		return types.InvalidIno, types.ErrNotFound
	}
	return den.Child, nil
}

func (t *sqlTxn) LookupDentry(parent uint64, name string) (*types.Dentry, error) {
	den := &db.Dentry{}
	res := t.tx.Where("parent_id = ? AND name = ?", int64(parent), name).First(den)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	return den.ToDentry(), nil
}

func (t *sqlTxn) ListDentries(parent uint64) ([]types.Dentry, error) {
	var dens []db.Dentry
	res := t.tx.Where("parent_id = ?", int64(parent)).Order("child_id ASC").Find(&dens)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	result := make([]types.Dentry, 0, len(dens))
	for i := range dens {
		result = append(result, *dens[i].ToDentry())
	}
	return result, nil
}

func (t *sqlTxn) GetInode(ino uint64) (*types.Inode, error) {
	if ino == types.InvalidIno {
		return nil, types.ErrNotFound
	}
	mod, err := t.getInode(ino)
	if err != nil {
		return nil, err
	}
	return mod.ToInode(), nil
}

func (t *sqlTxn) getInode(ino uint64) (*db.Inode, error) {
	mod := &db.Inode{}
	res := t.tx.Where("id = ?", int64(ino)).First(mod)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	return mod, nil
}

func (t *sqlTxn) GetAttr(ino uint64) (types.Attr, error) {
	inode, err := t.GetInode(ino)
	if err != nil {
		return types.Attr{}, err
	}
	return inode.Attr, nil
}

func (t *sqlTxn) TestFlag(ino uint64, flag types.InodeFlag) (bool, error) {
	inode, err := t.GetInode(ino)
	if err != nil {
		return false, err
	}
	return inode.HasFlag(flag), nil
}

func (t *sqlTxn) ListEntries(ino uint64, cursor Cursor) (EntryIterator, error) {
	dir, err := t.getInode(ino)
	if err != nil {
		return nil, err
	}
	if dir.Kind != types.GroupKind {
		return nil, types.ErrNoGroup
	}
	return newDirEntryIterator(t.tx, dir, cursor), nil
}

func (t *sqlTxn) Path(ino uint64) (string, error) {
	var (
		parts []string
		crt   = ino
	)
	for depth := 0; crt != types.RootIno; depth++ {
		if depth > maxPathDepth {
			return "", fmt.Errorf("inode %d: path too deep", ino)
		}
		mod, err := t.getInode(crt)
		if err != nil {
			return "", err
		}
		parts = append(parts, mod.Name)
		crt = uint64(mod.ParentID)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/"), nil
}

func (t *sqlTxn) Info() (*types.CacheInfo, error) {
	info := &db.SystemInfo{}
	res := t.tx.First(info)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	result := &types.CacheInfo{CacheID: info.CacheID, NextIno: uint64(info.NextIno)}
	res = t.tx.Model(&db.Inode{}).Count(&result.InodeCount)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	res = t.tx.Model(&db.Inode{}).Select("COALESCE(SUM(size), 0)").Where("kind = ?", types.RawKind).Scan(&result.TotalSize)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	return result, nil
}

func (t *sqlTxn) SetAttr(ino uint64, attr types.Attr) error {
	if t.readOnly {
		return ErrReadOnly
	}
	mod := &db.Inode{}
	mod.UpdateAttr(attr)
	res := t.tx.Model(&db.Inode{}).Where("id = ?", int64(ino)).Updates(mod.AttrColumns())
	if res.Error != nil {
		return db.SqlError2Error(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (t *sqlTxn) SetFlag(ino uint64, flag types.InodeFlag) error {
	if t.readOnly {
		return ErrReadOnly
	}
	columns := map[string]interface{}{"flags": gorm.Expr("flags | ?", int64(flag))}
	if flag&types.FlagSynced != 0 {
		columns["synced_at"] = time.Now().UnixNano()
	}
	return t.updateInodeColumns(ino, columns)
}

func (t *sqlTxn) ClearFlag(ino uint64, flag types.InodeFlag) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.updateInodeColumns(ino, map[string]interface{}{"flags": gorm.Expr("flags & ?", ^int64(flag))})
}

func (t *sqlTxn) SetSymlink(ino uint64, target string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.updateInodeColumns(ino, map[string]interface{}{"symlink": target, "size": int64(len(target))})
}

func (t *sqlTxn) updateInodeColumns(ino uint64, columns map[string]interface{}) error {
	res := t.tx.Model(&db.Inode{}).Where("id = ?", int64(ino)).Updates(columns)
	if res.Error != nil {
		return db.SqlError2Error(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

// AllocateAndLink binds (parent, name) to an inode of the given kind and
// returns its identifier. An existing binding of the same kind keeps its
// identifier and gets the new attributes; anything else gets a fresh one.
func (t *sqlTxn) AllocateAndLink(parent uint64, name string, kind types.Kind, attr types.Attr) (uint64, error) {
	if t.readOnly {
		return types.InvalidIno, ErrReadOnly
	}
	if err := ValidName(name); err != nil {
		return types.InvalidIno, err
	}
	parentMod, err := t.getInode(parent)
	if err != nil {
		return types.InvalidIno, err
	}
	if parentMod.Kind != types.GroupKind {
		return types.InvalidIno, types.ErrNoGroup
	}
	attr = normalizeAttr(kind, attr)

	den, err := t.LookupDentry(parent, name)
	switch {
	case err == nil:
		return t.relink(den, kind, attr)
	case err != types.ErrNotFound:
		return types.InvalidIno, err
	}

	ino, err := t.allocIno()
	if err != nil {
		return types.InvalidIno, err
	}
	res := t.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.Dentry{ParentID: int64(parent), Name: name, ChildID: int64(ino)})
	if res.Error != nil {
		return types.InvalidIno, db.SqlError2Error(res.Error)
	}
	if res.RowsAffected == 0 {
		// bound concurrently by another writer, ino stays burnt
		den, err = t.LookupDentry(parent, name)
		if err != nil {
			return types.InvalidIno, err
		}
		return t.relink(den, kind, attr)
	}
	if err = t.createInode(ino, parent, name, kind, attr); err != nil {
		return types.InvalidIno, err
	}
	return ino, nil
}

func (t *sqlTxn) relink(den *types.Dentry, kind types.Kind, attr types.Attr) (uint64, error) {
	child, err := t.getInode(den.Child)
	if err != nil && err != types.ErrNotFound {
		return types.InvalidIno, err
	}

	if err == nil && types.Kind(child.Kind) == kind {
		if err = t.SetAttr(den.Child, attr); err != nil {
			return types.InvalidIno, err
		}
		if den.Vanished {
			if err = t.setVanished(den.Parent, den.Name, false); err != nil {
				return types.InvalidIno, err
			}
		}
		return den.Child, nil
	}

	// same name, different object: the old record stays reachable by ino
	ino, err := t.allocIno()
	if err != nil {
		return types.InvalidIno, err
	}
	if err = t.createInode(ino, den.Parent, den.Name, kind, attr); err != nil {
		return types.InvalidIno, err
	}
	res := t.tx.Model(&db.Dentry{}).
		Where("parent_id = ? AND name = ?", int64(den.Parent), den.Name).
		Updates(map[string]interface{}{"child_id": int64(ino), "vanished": false})
	if res.Error != nil {
		return types.InvalidIno, db.SqlError2Error(res.Error)
	}
	return ino, nil
}

func (t *sqlTxn) createInode(ino, parent uint64, name string, kind types.Kind, attr types.Attr) error {
	mod := &db.Inode{}
	mod.Update(&types.Inode{
		Ino:      ino,
		Parent:   parent,
		Name:     name,
		Kind:     kind,
		Attr:     attr,
		CachedAt: time.Now(),
	})
	res := t.tx.Create(mod)
	return db.SqlError2Error(res.Error)
}

func (t *sqlTxn) allocIno() (uint64, error) {
	info := &db.SystemInfo{}
	q := t.tx
	if t.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if res := q.First(info); res.Error != nil {
		return types.InvalidIno, db.SqlError2Error(res.Error)
	}

	next := info.NextIno
	if next <= int64(types.RootIno) {
		next = int64(types.RootIno) + 1
	}
	res := t.tx.Model(&db.SystemInfo{}).
		Where("cache_id = ? AND next_ino = ?", info.CacheID, info.NextIno).
		Update("next_ino", next+1)
	if res.Error != nil {
		return types.InvalidIno, db.SqlError2Error(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.InvalidIno, errors.Errorf("allocate inode conflict at %d", next)
	}
	return uint64(next), nil
}

func (t *sqlTxn) Unlink(parent uint64, name string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.setVanished(parent, name, true)
}

func (t *sqlTxn) setVanished(parent uint64, name string, vanished bool) error {
	res := t.tx.Model(&db.Dentry{}).
		Where("parent_id = ? AND name = ?", int64(parent), name).
		Update("vanished", vanished)
	if res.Error != nil {
		return db.SqlError2Error(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

// ValidName rejects names that cannot be bound inside a directory.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") || strings.IndexByte(name, 0) >= 0 {
		return types.ErrInvalidArgument
	}
	return nil
}

func normalizeAttr(kind types.Kind, attr types.Attr) types.Attr {
	attr.Mode &= types.PermMask
	if attr.Nlink == 0 {
		attr.Nlink = 1
		if kind == types.GroupKind {
			attr.Nlink = 2
		}
	}
	return attr
}
