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
	"path"
)

// DefaultConfig mirrors a local directory into a sqlite cache under workdir.
func DefaultConfig(workdir, localDir string) Bootstrap {
	return Bootstrap{
		FUSE: FUSE{
			Enable:   true,
			RootPath: path.Join(workdir, "mnt"),
		},
		Cache: Cache{
			Type: SqliteCache,
			Dir:  path.Join(workdir, "cache"),
		},
		Backend: Backend{
			ID:            "local",
			Type:          LocalBackend,
			LocalDir:      localDir,
			ProbeInterval: DefaultProbeInterval,
			ProbeTimeout:  DefaultProbeTimeout,
			MaxInflight:   DefaultMaxInflight,
		},
		FS:    defaultFsConfig(),
		Debug: false,
	}
}
