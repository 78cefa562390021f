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
	"os/user"
	"strconv"
)

const (
	MemoryCache   = "memory"
	SqliteCache   = "sqlite"
	PostgresCache = "postgres"

	MemoryBackend = "memory"
	LocalBackend  = "local"
	WebdavBackend = "webdav"
	S3Backend     = "s3"
	MinioBackend  = "minio"
	OSSBackend    = "oss"

	DefaultProbeInterval = 10
	DefaultProbeTimeout  = 5
	DefaultMaxInflight   = 16
)

type FS struct {
	Owner FSOwner `json:"owner,omitempty"`

	// modes applied to objects whose backend has no permission model
	FileMode uint32 `json:"file_mode,omitempty"`
	DirMode  uint32 `json:"dir_mode,omitempty"`
}

type FSOwner struct {
	Uid int64 `json:"uid"`
	Gid int64 `json:"gid"`
}

type Backend struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	LocalDir string               `json:"local_dir,omitempty"`
	S3       *S3Config            `json:"s3,omitempty"`
	MinIO    *MinIOConfig         `json:"minio,omitempty"`
	OSS      *OSSConfig           `json:"oss,omitempty"`
	Webdav   *WebdavBackendConfig `json:"webdav,omitempty"`

	// seconds
	ProbeInterval int `json:"probe_interval,omitempty"`
	ProbeTimeout  int `json:"probe_timeout,omitempty"`
	MaxInflight   int `json:"max_inflight,omitempty"`
}

type S3Config struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	BucketName      string `json:"bucket_name"`
	Prefix          string `json:"prefix,omitempty"`
	UsePathStyle    bool   `json:"use_path_style"`
}

type MinIOConfig struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	BucketName      string `json:"bucket_name"`
	Prefix          string `json:"prefix,omitempty"`
	Location        string `json:"location"`
	Token           string `json:"token"`
	UseSSL          bool   `json:"use_ssl"`
}

type OSSConfig struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
	BucketName      string `json:"bucket_name"`
	Prefix          string `json:"prefix,omitempty"`
}

type WebdavBackendConfig struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Insecure  bool   `json:"insecure,omitempty"`
}

func defaultFsConfig() *FS {
	fs := &FS{FileMode: 0644, DirMode: 0755}
	u, err := user.Current()
	if err != nil {
		return fs
	}
	fs.Owner.Uid, _ = strconv.ParseInt(u.Uid, 10, 64)
	fs.Owner.Gid, _ = strconv.ParseInt(u.Gid, 10, 64)
	return fs
}
