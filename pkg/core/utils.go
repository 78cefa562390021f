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
	"context"
	"errors"

	"github.com/basenana/dragonstash/pkg/types"
)

const (
	defaultPathCacheSize = 1 << 15

	// fuse_dirent header: ino, off, namelen and type
	direntHeaderSize = 24
)

// direntSize is the space one entry takes in a FUSE readdir buffer.
func direntSize(name string) int {
	return (direntHeaderSize + len(name) + 7) &^ 7
}

// isBackendMiss reports an authoritative "does not exist" answer.
func isBackendMiss(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
