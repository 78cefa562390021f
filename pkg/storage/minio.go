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
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
)

type minioBackend struct {
	id      string
	bucket  string
	cli     *minio.Client
	cfg     *config.MinIOConfig
	fs      *config.FS
	conn    *connectivity
	limiter *utils.ParallelLimiter
	logger  *zap.SugaredLogger
}

var _ Backend = &minioBackend{}

func (m *minioBackend) ID() string {
	return m.id
}

func (m *minioBackend) IsConnected(ctx context.Context) bool {
	return m.conn.IsConnected()
}

func (m *minioBackend) Stat(ctx context.Context, p string) (*Info, error) {
	defer utils.TraceRegion(ctx, "minio.stat")()
	if err := m.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer m.limiter.Release()

	p = CleanPath(p)
	if p == "/" {
		return &Info{Name: "/", Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, m.fs, 0, time.Time{})}, nil
	}

	obj, err := m.cli.StatObject(ctx, m.bucket, objectKey(m.cfg.Prefix, p, false), minio.StatObjectOptions{})
	if err == nil {
		return &Info{Name: path.Base(p), Kind: types.RawKind, Attr: objectAttr(types.RawKind, m.fs, obj.Size, obj.LastModified)}, nil
	}
	if err = minioErr(err); err != types.ErrNotFound {
		m.logger.Warnw("stat object failed", "path", p, "err", err)
		return nil, m.conn.observe(err)
	}

	ctx, canF := context.WithCancel(ctx)
	defer canF()
	for obj = range m.cli.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: objectKey(m.cfg.Prefix, p, true), MaxKeys: 1}) {
		if obj.Err != nil {
			return nil, m.conn.observe(minioErr(obj.Err))
		}
		return &Info{Name: path.Base(p), Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, m.fs, 0, time.Time{})}, nil
	}
	return nil, types.ErrNotFound
}

func (m *minioBackend) ListChildren(ctx context.Context, p string) ([]Info, error) {
	defer utils.TraceRegion(ctx, "minio.list")()
	if err := m.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer m.limiter.Release()

	ctx, canF := context.WithCancel(ctx)
	defer canF()

	var (
		dirKey = objectKey(m.cfg.Prefix, p, true)
		result = make([]Info, 0)
		seen   = map[string]struct{}{}
		marker bool
	)
	for obj := range m.cli.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: dirKey, Recursive: false}) {
		if obj.Err != nil {
			m.logger.Warnw("list objects failed", "prefix", dirKey, "err", obj.Err)
			return nil, m.conn.observe(minioErr(obj.Err))
		}
		if obj.Key == dirKey {
			marker = true
			continue
		}
		name, isDir := childName(dirKey, obj.Key)
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		if isDir {
			result = append(result, Info{Name: name, Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, m.fs, 0, time.Time{})})
			continue
		}
		result = append(result, Info{Name: name, Kind: types.RawKind, Attr: objectAttr(types.RawKind, m.fs, obj.Size, obj.LastModified)})
	}
	if len(result) == 0 && !marker && CleanPath(p) != "/" {
		return nil, types.ErrNotFound
	}
	return sortInfos(result), nil
}

// ReadLink always fails, object stores have no symlinks.
func (m *minioBackend) ReadLink(ctx context.Context, p string) (string, error) {
	return "", types.ErrInvalidArgument
}

func (m *minioBackend) probe(ctx context.Context) error {
	exists, err := m.cli.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s not found", m.bucket)
	}
	return nil
}

func minioErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return types.ErrNotFound
	}
	return err
}

func newMinioBackend(cfg config.Backend, fs *config.FS, stopCh <-chan struct{}) (Backend, error) {
	mCfg := cfg.MinIO
	if mCfg == nil {
		return nil, fmt.Errorf("minio is nil")
	}
	if mCfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config endpoint is empty")
	}
	if mCfg.AccessKeyID == "" {
		return nil, fmt.Errorf("minio config access_key_id is empty")
	}
	if mCfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("minio config secret_access_key is empty")
	}
	if mCfg.BucketName == "" {
		return nil, fmt.Errorf("minio config bucket_name is empty")
	}

	minioClient, err := minio.New(mCfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(mCfg.AccessKeyID, mCfg.SecretAccessKey, mCfg.Token),
		Secure:    mCfg.UseSSL,
		Region:    mCfg.Location,
		Transport: http.DefaultTransport,
	})
	if err != nil {
		return nil, err
	}
	m := &minioBackend{
		id:      cfg.ID,
		bucket:  mCfg.BucketName,
		cli:     minioClient,
		cfg:     mCfg,
		fs:      fs,
		limiter: utils.NewParallelLimiter(cfg.MaxInflight),
		logger:  logger.NewLogger("minio").With(zap.String("backend", cfg.ID)),
	}
	m.conn = newConnectivity(cfg, m.probe, stopCh)
	return m, nil
}
