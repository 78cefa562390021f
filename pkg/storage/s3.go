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
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/logging"
	"go.uber.org/zap"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/types"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
)

type s3Backend struct {
	id       string
	s3Client *s3.Client
	cfg      *config.S3Config
	fs       *config.FS
	conn     *connectivity
	limiter  *utils.ParallelLimiter
	logger   *zap.SugaredLogger
}

var _ Backend = &s3Backend{}

func (s *s3Backend) ID() string {
	return s.id
}

func (s *s3Backend) IsConnected(ctx context.Context) bool {
	return s.conn.IsConnected()
}

func (s *s3Backend) Stat(ctx context.Context, p string) (*Info, error) {
	defer utils.TraceRegion(ctx, "s3.stat")()
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	p = CleanPath(p)
	if p == "/" {
		return &Info{Name: "/", Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, s.fs, 0, time.Time{})}, nil
	}

	output, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(objectKey(s.cfg.Prefix, p, false)),
	})
	if err == nil {
		return &Info{Name: path.Base(p), Kind: types.RawKind, Attr: objectAttr(types.RawKind, s.fs, output.ContentLength, aws.ToTime(output.LastModified))}, nil
	}
	if err = s3Err(err); !errors.Is(err, types.ErrNotFound) {
		s.logger.Warnw("head s3 object failed", "path", p, "err", err)
		return nil, s.conn.observe(err)
	}

	// no object, a directory exists while something lives below its prefix
	listOutput, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.BucketName),
		Prefix:    aws.String(objectKey(s.cfg.Prefix, p, true)),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, s.conn.observe(s3Err(err))
	}
	if len(listOutput.Contents) == 0 && len(listOutput.CommonPrefixes) == 0 {
		return nil, types.ErrNotFound
	}
	return &Info{Name: path.Base(p), Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, s.fs, 0, time.Time{})}, nil
}

func (s *s3Backend) ListChildren(ctx context.Context, p string) ([]Info, error) {
	defer utils.TraceRegion(ctx, "s3.list")()
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	dirKey := objectKey(s.cfg.Prefix, p, true)
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.BucketName),
		Prefix:    aws.String(dirKey),
		Delimiter: aws.String("/"),
	})

	var (
		result = make([]Info, 0)
		seen   = map[string]struct{}{}
	)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Warnw("list s3 objects failed", "prefix", dirKey, "err", err)
			return nil, s.conn.observe(s3Err(err))
		}
		for _, cp := range page.CommonPrefixes {
			name, _ := childName(dirKey, aws.ToString(cp.Prefix))
			if _, ok := seen[name]; ok || name == "" {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, Info{Name: name, Kind: types.GroupKind, Attr: objectAttr(types.GroupKind, s.fs, 0, time.Time{})})
		}
		for _, obj := range page.Contents {
			name, isDir := childName(dirKey, aws.ToString(obj.Key))
			if _, ok := seen[name]; ok || name == "" || isDir {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, Info{Name: name, Kind: types.RawKind, Attr: objectAttr(types.RawKind, s.fs, obj.Size, aws.ToTime(obj.LastModified))})
		}
	}
	if len(result) == 0 && CleanPath(p) != "/" {
		if err := s.statDirMarker(ctx, p); err != nil {
			return nil, err
		}
	}
	return sortInfos(result), nil
}

// statDirMarker tells an empty directory marker apart from a missing path.
func (s *s3Backend) statDirMarker(ctx context.Context, p string) error {
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(objectKey(s.cfg.Prefix, p, true)),
	})
	if err != nil {
		return s.conn.observe(s3Err(err))
	}
	return nil
}

// ReadLink always fails, object stores have no symlinks.
func (s *s3Backend) ReadLink(ctx context.Context, p string) (string, error) {
	return "", types.ErrInvalidArgument
}

func (s *s3Backend) probe(ctx context.Context) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.BucketName)})
	return err
}

func s3Err(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return types.ErrNotFound
		}
	}
	return err
}

func newS3Backend(cfg config.Backend, fs *config.FS, stopCh <-chan struct{}) (Backend, error) {
	sCfg := cfg.S3
	if sCfg == nil {
		return nil, fmt.Errorf("s3 config is nil")
	}
	if sCfg.Region == "" {
		return nil, fmt.Errorf("region is empty")
	}
	if sCfg.AccessKeyID == "" || sCfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("access_key_id or secret_access_key is empty")
	}
	if sCfg.BucketName == "" {
		return nil, fmt.Errorf("bucket_name is empty")
	}

	log := logger.NewLogger("s3").With(zap.String("backend", cfg.ID))
	awsConfig, err := awscfg.LoadDefaultConfig(
		context.TODO(),
		awscfg.WithRegion(sCfg.Region),
		awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(sCfg.AccessKeyID, sCfg.SecretAccessKey, "")),
		awscfg.WithDefaultsMode(aws.DefaultsModeStandard),
		awscfg.WithLogger(s3LoggerWrapper{SugaredLogger: log}),
		awscfg.WithClientLogMode(aws.LogRetries),
	)
	if err != nil {
		return nil, err
	}
	s := &s3Backend{
		id:       cfg.ID,
		s3Client: s3.NewFromConfig(awsConfig, s3CustomConfig(sCfg)),
		cfg:      sCfg,
		fs:       fs,
		limiter:  utils.NewParallelLimiter(cfg.MaxInflight),
		logger:   log,
	}
	s.conn = newConnectivity(cfg, s.probe, stopCh)
	return s, nil
}

type s3LoggerWrapper struct {
	*zap.SugaredLogger
}

func (log s3LoggerWrapper) Logf(classification logging.Classification, format string, v ...interface{}) {
	if classification == logging.Warn {
		log.Warnf(format, v...)
		return
	}
	log.Debugf(format, v...)
}

func s3CustomConfig(cfg *config.S3Config) func(opt *s3.Options) {
	return func(opt *s3.Options) {
		// fail fast while disconnected
		opt.RetryMode = aws.RetryModeStandard
		opt.RetryMaxAttempts = 2
		opt.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			opt.EndpointResolver = s3.EndpointResolverFromURL(cfg.Endpoint)
		}
	}
}
