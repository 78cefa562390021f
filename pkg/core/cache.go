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

package core

import (
	"github.com/bluele/gcache"

	"github.com/basenana/dragonstash/pkg/types"
)

// pathCache remembers where an ino lives on the backend. A binding never
// moves, so entries are only dropped by size pressure.
type pathCache struct {
	paths gcache.Cache
}

func (c *pathCache) get(ino uint64) (string, bool) {
	if ino == types.RootIno {
		return "/", true
	}
	cached, err := c.paths.Get(ino)
	if err != nil || cached == nil {
		return "", false
	}
	return cached.(string), true
}

func (c *pathCache) set(ino uint64, p string) {
	_ = c.paths.Set(ino, p)
}

func newPathCache(size int) *pathCache {
	if size <= 0 {
		size = defaultPathCacheSize
	}
	return &pathCache{paths: gcache.New(size).LRU().Build()}
}
