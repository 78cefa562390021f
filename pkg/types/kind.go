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

package types

import "syscall"

type Kind string

const (
	/*
		directory
	*/
	GroupKind = "group"

	/*
		ungrouped files
	*/
	RawKind     = "raw"
	SymLinkKind = "symlink"
)

func IsGroup(k Kind) bool {
	return k == GroupKind
}

// FileMode returns the S_IFMT bits of kind.
func FileMode(k Kind) uint32 {
	switch k {
	case GroupKind:
		return syscall.S_IFDIR
	case SymLinkKind:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// KindFromFileMode maps the type bits of a stat mode back to a kind.
// Anything that is neither a directory nor a link is served as a regular file.
func KindFromFileMode(mode uint32) Kind {
	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		return GroupKind
	case syscall.S_IFLNK:
		return SymLinkKind
	default:
		return RawKind
	}
}
