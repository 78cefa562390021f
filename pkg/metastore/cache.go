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
	"context"
	"fmt"
	"os"
	"path"
	"runtime/trace"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/metastore/db"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils/logger"
)

const (
	MemoryCache   = config.MemoryCache
	SqliteCache   = config.SqliteCache
	PostgresCache = config.PostgresCache

	cacheDBFile       = "dragonstash.db"
	sqliteBusyTimeout = 5000
)

// Cache is the durable metadata store. All reads and writes go through
// View and Update; a transaction handle must not escape its callback.
type Cache struct {
	db *gorm.DB

	// serialises read-write transactions inside this process
	wmux     sync.Mutex
	lockRows bool
	owner    config.FSOwner
	dirMode  uint32
	logger   *zap.SugaredLogger
}

func NewMetaCache(cfg config.Cache, fs *config.FS) (*Cache, error) {
	var (
		dbEntity *gorm.DB
		err      error
		gormCfg  = &gorm.Config{Logger: db.NewDbLogger()}
	)
	switch cfg.Type {
	case MemoryCache:
		dbEntity, err = gorm.Open(sqlite.Open(":memory:"), gormCfg)
	case SqliteCache:
		if err = os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("prepare cache dir %s failed: %w", cfg.Dir, err)
		}
		dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path.Join(cfg.Dir, cacheDBFile), sqliteBusyTimeout)
		dbEntity, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	case PostgresCache:
		dbEntity, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	dbConn, err := dbEntity.DB()
	if err != nil {
		return nil, err
	}
	if err = dbConn.Ping(); err != nil {
		return nil, err
	}
	if cfg.Type == MemoryCache {
		// every new connection to :memory: opens an empty database
		dbConn.SetMaxOpenConns(1)
		dbConn.SetMaxIdleConns(1)
	}

	c := &Cache{
		db:       dbEntity,
		lockRows: cfg.Type == PostgresCache,
		dirMode:  0755,
		logger:   logger.NewLogger("metastore"),
	}
	if fs != nil {
		c.owner = fs.Owner
		if fs.DirMode != 0 {
			c.dirMode = fs.DirMode
		}
	}

	if err = c.init(context.Background()); err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init(ctx context.Context) error {
	if err := db.Migrate(c.db); err != nil {
		return db.SqlError2Error(err)
	}

	return c.Update(ctx, func(tx Txn) error {
		t := tx.(*sqlTxn)
		info := &db.SystemInfo{}
		res := t.tx.First(info)
		if res.Error != nil {
			if db.SqlError2Error(res.Error) != types.ErrNotFound {
				return db.SqlError2Error(res.Error)
			}
			info = &db.SystemInfo{CacheID: uuid.New().String(), NextIno: int64(types.RootIno) + 1, CreatedAt: time.Now().UnixNano()}
			if res = t.tx.Create(info); res.Error != nil {
				return db.SqlError2Error(res.Error)
			}
			c.logger.Infow("init new cache", "cache", info.CacheID)
		}

		_, err := t.GetInode(types.RootIno)
		if err == nil {
			return nil
		}
		if err != types.ErrNotFound {
			return err
		}
		now := time.Now()
		root := &db.Inode{}
		root.Update(&types.Inode{
			Ino:  types.RootIno,
			Kind: types.GroupKind,
			Attr: types.Attr{
				Mode:       c.dirMode,
				UID:        uint32(c.owner.Uid),
				GID:        uint32(c.owner.Gid),
				Nlink:      2,
				AccessAt:   now,
				ModifiedAt: now,
				ChangedAt:  now,
			},
			CachedAt: now,
		})
		if res = t.tx.Create(root); res.Error != nil {
			return db.SqlError2Error(res.Error)
		}
		return nil
	})
}

// View runs fn inside a read-only transaction.
func (c *Cache) View(ctx context.Context, fn func(tx ReadTxn) error) (err error) {
	defer trace.StartRegion(ctx, "metastore.cache.View").End()
	defer logOperationLatency("view", time.Now())
	defer func() { logOperationError("view", err) }()
	return c.transaction(ctx, true, func(t *sqlTxn) error { return fn(t) })
}

// Update runs fn inside a read-write transaction. Any error returned by fn,
// or a panic, rolls back everything fn did.
func (c *Cache) Update(ctx context.Context, fn func(tx Txn) error) (err error) {
	defer trace.StartRegion(ctx, "metastore.cache.Update").End()
	defer logOperationLatency("update", time.Now())
	defer func() { logOperationError("update", err) }()

	c.wmux.Lock()
	defer c.wmux.Unlock()
	return c.transaction(ctx, false, func(t *sqlTxn) error { return fn(t) })
}

func (c *Cache) transaction(ctx context.Context, readOnly bool, fn func(t *sqlTxn) error) error {
	var fnErr error
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&sqlTxn{tx: tx, readOnly: readOnly, lockRows: c.lockRows})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	c.logger.Errorw("cache transaction failed", "readonly", readOnly, "err", err)
	return errors.Wrap(db.SqlError2Error(err), "cache transaction failed")
}

func (c *Cache) Lookup(ctx context.Context, parent uint64, name string) (ino uint64, err error) {
	err = c.View(ctx, func(tx ReadTxn) error {
		ino, err = tx.Lookup(parent, name)
		return err
	})
	return
}

func (c *Cache) GetInode(ctx context.Context, ino uint64) (inode *types.Inode, err error) {
	err = c.View(ctx, func(tx ReadTxn) error {
		inode, err = tx.GetInode(ino)
		return err
	})
	return
}

func (c *Cache) TestFlag(ctx context.Context, ino uint64, flag types.InodeFlag) (ok bool, err error) {
	err = c.View(ctx, func(tx ReadTxn) error {
		ok, err = tx.TestFlag(ino, flag)
		return err
	})
	return
}

func (c *Cache) Info(ctx context.Context) (info *types.CacheInfo, err error) {
	err = c.View(ctx, func(tx ReadTxn) error {
		info, err = tx.Info()
		return err
	})
	return
}

func (c *Cache) Close() error {
	dbConn, err := c.db.DB()
	if err != nil {
		return err
	}
	return dbConn.Close()
}
