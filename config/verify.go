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

package config

import (
	"fmt"
	"os"
	"regexp"
)

var (
	backendIDPattern = "^[a-zA-Z][a-zA-Z0-9-_.]{1,31}$"
	backendIDRegexp  = regexp.MustCompile(backendIDPattern)
)

type verifier func(config *Bootstrap) error

var verifiers = []verifier{
	setDefaultValue,
	checkFuseConfig,
	checkCacheConfig,
	checkBackendConfig,
	checkMetricConfig,
}

func setDefaultValue(config *Bootstrap) error {
	if config.FS == nil {
		config.FS = defaultFsConfig()
	}
	if config.FS.FileMode == 0 {
		config.FS.FileMode = 0644
	}
	if config.FS.DirMode == 0 {
		config.FS.DirMode = 0755
	}
	if config.Backend.ProbeInterval <= 0 {
		config.Backend.ProbeInterval = DefaultProbeInterval
	}
	if config.Backend.ProbeTimeout <= 0 {
		config.Backend.ProbeTimeout = DefaultProbeTimeout
	}
	if config.Backend.MaxInflight <= 0 {
		config.Backend.MaxInflight = DefaultMaxInflight
	}
	return nil
}

func checkFuseConfig(config *Bootstrap) error {
	fCfg := config.FUSE
	if !fCfg.Enable {
		return nil
	}
	info, err := os.Stat(fCfg.RootPath)
	if err != nil {
		return fmt.Errorf("check fuse.root_path error: %s", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("fuse.root_path %s is not a directory", fCfg.RootPath)
	}
	return nil
}

func checkCacheConfig(config *Bootstrap) error {
	c := config.Cache
	switch c.Type {
	case MemoryCache:
		return nil
	case SqliteCache:
		if c.Dir == "" {
			return fmt.Errorf("cache.dir is empty")
		}
		return nil
	case PostgresCache:
		if c.DSN == "" {
			return fmt.Errorf("cache.dsn is empty")
		}
		return nil
	default:
		return fmt.Errorf("unknown cache type %s", c.Type)
	}
}

func checkBackendConfig(config *Bootstrap) error {
	b := config.Backend
	if b.ID == "" {
		return fmt.Errorf("backend.id is empty")
	}
	if !backendIDRegexp.MatchString(b.ID) {
		return fmt.Errorf("backend.id must match %s", backendIDPattern)
	}
	switch b.Type {
	case MemoryBackend:
	case LocalBackend:
		if b.LocalDir == "" {
			return fmt.Errorf("backend.local_dir is empty")
		}
	case S3Backend:
		cfg := b.S3
		if cfg == nil {
			return fmt.Errorf("backend.s3 is nil")
		}
		if cfg.Region == "" {
			return fmt.Errorf("s3 config region is empty")
		}
		if cfg.AccessKeyID == "" {
			return fmt.Errorf("s3 config access_key_id is empty")
		}
		if cfg.SecretAccessKey == "" {
			return fmt.Errorf("s3 config secret_access_key is empty")
		}
		if cfg.BucketName == "" {
			return fmt.Errorf("s3 config bucket_name is empty")
		}
	case MinioBackend:
		cfg := b.MinIO
		if cfg == nil {
			return fmt.Errorf("backend.minio is nil")
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("minio config endpoint is empty")
		}
		if cfg.AccessKeyID == "" {
			return fmt.Errorf("minio config access_key_id is empty")
		}
		if cfg.SecretAccessKey == "" {
			return fmt.Errorf("minio config secret_access_key is empty")
		}
		if cfg.BucketName == "" {
			return fmt.Errorf("minio config bucket_name is empty")
		}
	case OSSBackend:
		cfg := b.OSS
		if cfg == nil {
			return fmt.Errorf("backend.oss is nil")
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("OSS endpoint is empty")
		}
		if cfg.AccessKeyID == "" {
			return fmt.Errorf("OSS access_key_id is empty")
		}
		if cfg.AccessKeySecret == "" {
			return fmt.Errorf("OSS access_key_secret is empty")
		}
		if cfg.BucketName == "" {
			return fmt.Errorf("OSS config bucket_name is empty")
		}
	case WebdavBackend:
		cfg := b.Webdav
		if cfg == nil {
			return fmt.Errorf("backend.webdav is nil")
		}
		if cfg.ServerURL == "" {
			return fmt.Errorf("webdav config server_url is empty")
		}
	default:
		return fmt.Errorf("unknown backend type: %s", b.Type)
	}
	return nil
}

func checkMetricConfig(config *Bootstrap) error {
	m := config.Metric
	if m == nil || !m.Enable {
		return nil
	}
	if m.Port == 0 {
		return fmt.Errorf("metric.port not config")
	}
	return nil
}

func Verify(cfg *Bootstrap) error {
	for _, f := range verifiers {
		if err := f(cfg); err != nil {
			return err
		}
	}
	return nil
}
