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
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
)

type aliyunOSSBackend struct {
	id      string
	cli     *oss.Client
	bucket  *oss.Bucket
	cfg     *config.OSSConfig
	fs      *config.FS
	conn    *connectivity
	limiter *utils.ParallelLimiter
	logger  *zap.SugaredLogger
}

var _ Backend = &aliyunOSSBackend{}

func (a *aliyunOSSBackend) ID() string {
	return a.id
}

func (a *aliyunOSSBackend) IsConnected(ctx context.Context) bool {
	return a.conn.IsConnected()
}

func (a *aliyunOSSBackend) Stat(ctx context.Context, p string) (*Info, error) {
	defer utils.TraceRegion(ctx, "oss.stat")()
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer a.limiter.Release()

	p = CleanPath(p)
	if p == "/" {
		return &Info{Name: "/", Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, a.fs, 0, time.Time{})}, nil
	}

	header, err := a.bucket.GetObjectMeta(objectKey(a.cfg.Prefix, p, false), oss.WithContext(ctx))
	if err == nil {
		size, _ := strconv.ParseInt(header.Get("Content-Length"), 10, 64)
		modAt, _ := http.ParseTime(header.Get("Last-Modified"))
		return &Info{Name: path.Base(p), Kind: types.RawKind, Attr: objectAttr(types.RawKind, a.fs, size, modAt)}, nil
	}
	if err = ossErr(err); err != types.ErrNotFound {
		a.logger.Warnw("head oss object failed", "path", p, "err", err)
		return nil, a.conn.observe(err)
	}

	lor, err := a.bucket.ListObjects(oss.Prefix(objectKey(a.cfg.Prefix, p, true)), oss.MaxKeys(1), oss.WithContext(ctx))
	if err != nil {
		return nil, a.conn.observe(ossErr(err))
	}
	if len(lor.Objects) == 0 && len(lor.CommonPrefixes) == 0 {
		return nil, types.ErrNotFound
	}
	return &Info{Name: path.Base(p), Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, a.fs, 0, time.Time{})}, nil
}

func (a *aliyunOSSBackend) ListChildren(ctx context.Context, p string) ([]Info, error) {
	defer utils.TraceRegion(ctx, "oss.list")()
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer a.limiter.Release()

	var (
		dirKey = objectKey(a.cfg.Prefix, p, true)
		marker = oss.Marker("")
		prefix = oss.Prefix(dirKey)
		result = make([]Info, 0)
		seen   = map[string]struct{}{}
		found  bool
	)
	for {
		lor, err := a.bucket.ListObjects(marker, prefix, oss.Delimiter("/"), oss.WithContext(ctx))
		if err != nil {
			a.logger.Warnw("list oss objects failed", "prefix", dirKey, "err", err)
			return nil, a.conn.observe(ossErr(err))
		}
		for _, cp := range lor.CommonPrefixes {
			found = true
			name, _ := childName(dirKey, cp)
			if _, ok := seen[name]; ok || name == "" {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, Info{Name: name, Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, a.fs, 0, time.Time{})})
		}
		for _, obj := range lor.Objects {
			found = true
			name, isDir := childName(dirKey, obj.Key)
			if _, ok := seen[name]; ok || name == "" || isDir {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, Info{Name: name, Kind: types.RawKind, Attr: objectAttr(types.RawKind, a.fs, obj.Size, obj.LastModified)})
		}
		if !lor.IsTruncated {
			break
		}
		marker = oss.Marker(lor.NextMarker)
	}
	if !found && CleanPath(p) != "/" {
		return nil, types.ErrNotFound
	}
	return sortInfos(result), nil
}

// ReadLink always fails, object stores have no symlinks.
func (a *aliyunOSSBackend) ReadLink(ctx context.Context, p string) (string, error) {
	return "", types.ErrInvalidArgument
}

func (a *aliyunOSSBackend) probe(ctx context.Context) error {
	isExist, err := a.cli.IsBucketExist(a.cfg.BucketName)
	if err != nil {
		return err
	}
	if !isExist {
		return fmt.Errorf("bucket %s not found", a.cfg.BucketName)
	}
	return nil
}

func ossErr(err error) error {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) && (svcErr.StatusCode == http.StatusNotFound || svcErr.Code == "NoSuchKey") {
		return types.ErrNotFound
	}
	return err
}

func newOSSBackend(cfg config.Backend, fs *config.FS, stopCh <-chan struct{}) (Backend, error) {
	oCfg := cfg.OSS
	if oCfg == nil {
		return nil, fmt.Errorf("OSS config is nil")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("backend id is empty")
	}
	if oCfg.Endpoint == "" {
		return nil, fmt.Errorf("OSS endpoint is empty")
	}
	if oCfg.AccessKeyID == "" {
		return nil, fmt.Errorf("OSS access_key_id is empty")
	}
	if oCfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("OSS access_key_secret is empty")
	}
	if oCfg.BucketName == "" {
		return nil, fmt.Errorf("OSS bucket_name is empty")
	}
	cli, err := oss.New(oCfg.Endpoint, oCfg.AccessKeyID, oCfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	cli.Config.RetryTimes = 2
	cli.Config.Timeout = 60
	cli.Config.HTTPTimeout = oss.HTTPTimeout{
		ConnectTimeout:   10 * time.Second,
		ReadWriteTimeout: time.Minute,
		HeaderTimeout:    10 * time.Second,
		LongTimeout:      time.Minute,
		IdleConnTimeout:  time.Minute,
	}
	cli.Config.HTTPMaxConns = oss.HTTPMaxConns{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 64,
		MaxConnsPerHost:     64,
	}

	bucket, err := cli.Bucket(oCfg.BucketName)
	if err != nil {
		return nil, err
	}

	a := &aliyunOSSBackend{
		id:      cfg.ID,
		cli:     cli,
		bucket:  bucket,
		cfg:     oCfg,
		fs:      fs,
		limiter: utils.NewParallelLimiter(cfg.MaxInflight),
		logger:  logger.NewLogger("OSS").With(zap.String("backend", cfg.ID)),
	}
	a.logger.Infof("OSS SDK Version: %s", oss.Version)
	a.conn = newConnectivity(cfg, a.probe, stopCh)
	return a, nil
}
