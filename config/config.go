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

type Bootstrap struct {
	FUSE    FUSE    `json:"fuse"`
	Cache   Cache   `json:"cache"`
	Backend Backend `json:"backend"`
	FS      *FS     `json:"fs,omitempty"`
	Metric  *Metric `json:"metric,omitempty"`

	Debug bool `json:"debug,omitempty"`
}

type FUSE struct {
	Enable       bool     `json:"enable"`
	RootPath     string   `json:"root_path"`
	MountOptions []string `json:"mount_options,omitempty"`
	DisplayName  string   `json:"display_name,omitempty"`
	AllowOther   bool     `json:"allow_other,omitempty"`
	VerboseLog   bool     `json:"verbose_log,omitempty"`

	EntryTimeout *int `json:"entry_timeout,omitempty"`
	AttrTimeout  *int `json:"attr_timeout,omitempty"`
}

// Cache configures the metadata store that survives restarts.
type Cache struct {
	Type string `json:"type"`
	Dir  string `json:"dir,omitempty"`
	DSN  string `json:"dsn,omitempty"`

	// PathCacheSize bounds the in-memory ino to path table.
	PathCacheSize int `json:"path_cache_size,omitempty"`
}

type Metric struct {
	Enable bool   `json:"enable"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}
