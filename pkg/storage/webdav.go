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
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/studio-b12/gowebdav"
	"go.uber.org/zap"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
)

type webdavBackend struct {
	id      string
	cli     *gowebdav.Client
	fs      *config.FS
	conn    *connectivity
	limiter *utils.ParallelLimiter
	logger  *zap.SugaredLogger
}

var _ Backend = &webdavBackend{}

func (w *webdavBackend) ID() string {
	return w.id
}

func (w *webdavBackend) IsConnected(ctx context.Context) bool {
	return w.conn.IsConnected()
}

func (w *webdavBackend) Stat(ctx context.Context, p string) (*Info, error) {
	defer utils.TraceRegion(ctx, "webdav.stat")()
	if err := w.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer w.limiter.Release()

	p = CleanPath(p)
	fi, err := w.cli.Stat(p)
	if err != nil {
		return nil, w.conn.observe(webdavErr(err))
	}
	info := w.fileInfo(fi)
	info.Name = path.Base(p)
	return &info, nil
}

func (w *webdavBackend) ListChildren(ctx context.Context, p string) ([]Info, error) {
	defer utils.TraceRegion(ctx, "webdav.list")()
	if err := w.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer w.limiter.Release()

	files, err := w.cli.ReadDir(CleanPath(p))
	if err != nil {
		w.logger.Warnw("read dir from server failed", "path", p, "err", err)
		return nil, w.conn.observe(webdavErr(err))
	}
	result := make([]Info, 0, len(files))
	for _, fi := range files {
		if fi.Name() == "" {
			continue
		}
		result = append(result, w.fileInfo(fi))
	}
	return sortInfos(result), nil
}

// ReadLink always fails, webdav has no symlinks.
func (w *webdavBackend) ReadLink(ctx context.Context, p string) (string, error) {
	return "", types.ErrInvalidArgument
}

func (w *webdavBackend) fileInfo(fi os.FileInfo) Info {
	kind := types.Kind(types.RawKind)
	if fi.IsDir() {
		kind = types.GroupKind
	}
	return Info{Name: fi.Name(), Kind: kind, Attr: objectAttr(kind, w.fs, fi.Size(), fi.ModTime())}
}

func webdavErr(err error) error {
	var statusErr gowebdav.StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return types.ErrNotFound
	}
	return err
}

func newWebdavBackend(cfg config.Backend, fs *config.FS, stopCh <-chan struct{}) (Backend, error) {
	wCfg := cfg.Webdav
	if wCfg == nil {
		return nil, fmt.Errorf("webdav is nil")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("backend id is empty")
	}
	if wCfg.ServerURL == "" {
		return nil, fmt.Errorf("webdav config server_url is empty")
	}

	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   60 * time.Second,
		ExpectContinueTimeout: 10 * time.Second,
	}
	if wCfg.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	cli := gowebdav.NewClient(wCfg.ServerURL, wCfg.Username, wCfg.Password)
	cli.SetTransport(t)
	cli.SetTimeout(time.Minute)

	w := &webdavBackend{
		id:      cfg.ID,
		cli:     cli,
		fs:      fs,
		limiter: utils.NewParallelLimiter(cfg.MaxInflight),
		logger:  logger.NewLogger("webdav").With(zap.String("backend", cfg.ID)),
	}
	w.conn = newConnectivity(cfg, func(ctx context.Context) error {
		return cli.Connect()
	}, stopCh)
	return w, nil
}
