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
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
)

// local serves a directory of the host, typically a removable or network
// mount that may go away at any time.
type local struct {
	id     string
	dir    string
	conn   *connectivity
	logger *zap.SugaredLogger
}

var _ Backend = &local{}

func newLocalBackend(id, dir string) (Backend, error) {
	if dir == "" {
		return nil, fmt.Errorf("local backend dir is empty")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	l := &local{id: id, dir: dir, logger: logger.NewLogger("local").With(zap.String("backend", id))}
	l.conn = newManualConnectivity(id, l.rootReachable() == nil)
	return l, nil
}

func (l *local) ID() string {
	return l.id
}

func (l *local) IsConnected(ctx context.Context) bool {
	if err := l.rootReachable(); err != nil {
		l.conn.setState(false, err.Error())
		return false
	}
	l.conn.setState(true, "root dir reachable")
	return true
}

func (l *local) Stat(ctx context.Context, p string) (*Info, error) {
	defer utils.TraceRegion(ctx, "local.stat")()
	info, err := l.lstat(l.localPath(p))
	if err != nil {
		return nil, l.wrapErr(err)
	}
	info.Name = filepath.Base(CleanPath(p))
	return info, nil
}

func (l *local) ListChildren(ctx context.Context, p string) ([]Info, error) {
	defer utils.TraceRegion(ctx, "local.list")()
	dirPath := l.localPath(p)
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if errors.Is(err, unix.ENOTDIR) {
			return nil, types.ErrNoGroup
		}
		return nil, l.wrapErr(err)
	}

	result := make([]Info, 0, len(entries))
	for _, en := range entries {
		info, err := l.lstat(filepath.Join(dirPath, en.Name()))
		if err != nil {
			if errors.Is(err, unix.ENOENT) {
				continue
			}
			return nil, l.wrapErr(err)
		}
		info.Name = en.Name()
		result = append(result, *info)
	}
	return sortInfos(result), nil
}

func (l *local) ReadLink(ctx context.Context, p string) (string, error) {
	defer utils.TraceRegion(ctx, "local.readlink")()
	target, err := os.Readlink(l.localPath(p))
	if err != nil {
		if errors.Is(err, unix.EINVAL) {
			return "", types.ErrInvalidArgument
		}
		return "", l.wrapErr(err)
	}
	return target, nil
}

func (l *local) localPath(p string) string {
	return filepath.Join(l.dir, filepath.FromSlash(CleanPath(p)))
}

func (l *local) rootReachable() error {
	st := &unix.Stat_t{}
	if err := unix.Stat(l.dir, st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return fmt.Errorf("%s is not a directory", l.dir)
	}
	return nil
}

func (l *local) lstat(p string) (*Info, error) {
	st := &unix.Stat_t{}
	if err := unix.Lstat(p, st); err != nil {
		return nil, &os.PathError{Op: "lstat", Path: p, Err: err}
	}
	kind := types.KindFromFileMode(st.Mode)
	return &Info{
		Kind: kind,
		Attr: types.Attr{
			Mode:       st.Mode & types.PermMask,
			UID:        st.Uid,
			GID:        st.Gid,
			Size:       st.Size,
			Nlink:      uint32(st.Nlink),
			AccessAt:   time.Unix(st.Atim.Unix()),
			ModifiedAt: time.Unix(st.Mtim.Unix()),
			ChangedAt:  time.Unix(st.Ctim.Unix()),
		},
	}, nil
}

// wrapErr tells a vanished object apart from an unplugged root.
func (l *local) wrapErr(err error) error {
	if rErr := l.rootReachable(); rErr != nil {
		l.conn.setState(false, rErr.Error())
		return fmt.Errorf("local dir %s: %w", l.dir, errUnreachable)
	}
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
		return types.ErrNotFound
	}
	l.logger.Warnw("local backend call failed", "err", err)
	return err
}
