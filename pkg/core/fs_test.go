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

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/dragonstash/pkg/types"
)

var _ = Describe("TestLookup", func() {
	var (
		env *testEnv
		ctx = context.TODO()
	)
	BeforeEach(func() { env = newTestEnv().withDefaultContents() })
	AfterEach(func() { env.close() })

	Context("look up an existing file", func() {
		It("should reply a regular file entry with a distinct ino", func() {
			en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(en.Ino).ShouldNot(Equal(types.RootIno))
			Expect(en.Ino).ShouldNot(Equal(types.InvalidIno))
			Expect(en.Kind).Should(BeEquivalentTo(types.RawKind))
		})

		It("should carry the backend attributes", func() {
			en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(en.Attr.UID).Should(Equal(defaultAttr(0).UID))
			Expect(en.Attr.GID).Should(Equal(defaultAttr(0).GID))
			Expect(en.Attr.Mode).Should(Equal(uint32(0640)))
			Expect(en.Attr.ModifiedAt.Unix()).Should(Equal(defaultTimestamp.Unix()))
			Expect(en.Attr.ModifiedAt.Nanosecond()).Should(Equal(defaultTimestamp.Nanosecond()))
		})

		It("should keep the ino when looked up again", func() {
			en1, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			en2, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(en2.Ino).Should(Equal(en1.Ino))
		})
	})

	Context("look up a nonexistent file", func() {
		It("should be not found", func() {
			_, err := env.fs.Lookup(ctx, types.RootIno, "random name")
			Expect(err).Should(Equal(types.ErrNotFound))
		})
	})

	Context("look up a directory", func() {
		It("should reply a directory entry", func() {
			en, err := env.fs.Lookup(ctx, types.RootIno, "books")
			Expect(err).Should(BeNil())
			Expect(en.Ino).ShouldNot(Equal(types.RootIno))
			Expect(en.Kind).Should(BeEquivalentTo(types.GroupKind))
			Expect(en.Attr.Mode).Should(Equal(uint32(0750)))
			Expect(en.Attr.ModifiedAt.Equal(defaultTimestamp)).Should(BeTrue())
		})

		It("should differ from the file ino", func() {
			dir, err := env.fs.Lookup(ctx, types.RootIno, "books")
			Expect(err).Should(BeNil())
			file, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(dir.Ino).ShouldNot(Equal(file.Ino))
		})

		It("should resolve dot entries locally", func() {
			dir, err := env.fs.Lookup(ctx, types.RootIno, "books")
			Expect(err).Should(BeNil())
			env.backend.SetConnected(false)

			self, err := env.fs.Lookup(ctx, dir.Ino, ".")
			Expect(err).Should(BeNil())
			Expect(self.Ino).Should(Equal(dir.Ino))
			upper, err := env.fs.Lookup(ctx, dir.Ino, "..")
			Expect(err).Should(BeNil())
			Expect(upper.Ino).Should(Equal(types.RootIno))
		})

		It("should refuse a non directory parent", func() {
			file, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			_, err = env.fs.Lookup(ctx, file.Ino, "any")
			Expect(err).Should(Equal(types.ErrNoGroup))

			_, err = env.fs.Lookup(ctx, 4096, "any")
			Expect(err).Should(Equal(types.ErrNotFound))
		})
	})

	Context("backend disconnected", func() {
		var cached *types.Entry
		BeforeEach(func() {
			var err error
			cached, err = env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			env.backend.SetConnected(false)
		})

		It("should fail uncached entries with offline", func() {
			_, err := env.fs.Lookup(ctx, types.RootIno, "books")
			Expect(err).Should(Equal(types.ErrOffline))
		})

		It("should serve cached entries", func() {
			en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(en.Ino).Should(Equal(cached.Ino))
			Expect(en.Kind).Should(BeEquivalentTo(types.RawKind))
			Expect(en.Attr.Mode).Should(Equal(uint32(0640)))
			Expect(en.Attr.UID).Should(Equal(defaultAttr(0).UID))
			Expect(en.Attr.GID).Should(Equal(defaultAttr(0).GID))
		})
	})

	Context("backend changes", func() {
		It("should forget objects removed from the backend", func() {
			en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(env.backend.Remove("/README.md")).Should(BeNil())

			_, err = env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(Equal(types.ErrNotFound))

			env.backend.SetConnected(false)
			_, err = env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(Equal(types.ErrNotFound))

			// the record itself stays resolvable by ino
			attr, err := env.fs.GetAttr(ctx, en.Ino)
			Expect(err).Should(BeNil())
			Expect(attr.Ino).Should(Equal(en.Ino))
		})

		It("should revive a reappearing object with the same ino", func() {
			en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(env.backend.Remove("/README.md")).Should(BeNil())
			_, err = env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(Equal(types.ErrNotFound))

			Expect(env.backend.PutFile("/README.md", defaultAttr(0600))).Should(BeNil())
			revived, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(revived.Ino).Should(Equal(en.Ino))
			Expect(revived.Attr.Mode).Should(Equal(uint32(0600)))
		})

		It("should bind a new ino when the kind changes", func() {
			en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(env.backend.Remove("/README.md")).Should(BeNil())
			Expect(env.backend.Mkdir("/README.md", defaultAttr(0755))).Should(BeNil())

			dir, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
			Expect(err).Should(BeNil())
			Expect(dir.Kind).Should(BeEquivalentTo(types.GroupKind))
			Expect(dir.Ino).ShouldNot(Equal(en.Ino))

			old, err := env.fs.GetAttr(ctx, en.Ino)
			Expect(err).Should(BeNil())
			Expect(old.Kind).Should(BeEquivalentTo(types.RawKind))
		})
	})
})

var _ = Describe("TestGetAttr", func() {
	var (
		env *testEnv
		ctx = context.TODO()
	)
	BeforeEach(func() { env = newTestEnv().withDefaultContents() })
	AfterEach(func() { env.close() })

	It("should refresh attributes from the backend", func() {
		en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
		Expect(err).Should(BeNil())

		changed := defaultAttr(0600)
		changed.Size = 42
		Expect(env.backend.PutFile("/README.md", changed)).Should(BeNil())

		got, err := env.fs.GetAttr(ctx, en.Ino)
		Expect(err).Should(BeNil())
		Expect(got.Ino).Should(Equal(en.Ino))
		Expect(got.Attr.Mode).Should(Equal(uint32(0600)))
		Expect(got.Attr.Size).Should(Equal(int64(42)))
	})

	It("should serve cached attributes while disconnected", func() {
		en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
		Expect(err).Should(BeNil())
		env.backend.SetConnected(false)

		got, err := env.fs.GetAttr(ctx, en.Ino)
		Expect(err).Should(BeNil())
		Expect(got.Attr.Mode).Should(Equal(uint32(0640)))
	})

	It("should serve the root", func() {
		env.backend.SetConnected(false)
		got, err := env.fs.GetAttr(ctx, types.RootIno)
		Expect(err).Should(BeNil())
		Expect(got.Kind).Should(BeEquivalentTo(types.GroupKind))
	})

	It("should fail unknown inos", func() {
		_, err := env.fs.GetAttr(ctx, 4096)
		Expect(err).Should(Equal(types.ErrNotFound))
	})
})

var _ = Describe("TestReadLink", func() {
	var (
		env  *testEnv
		ctx  = context.TODO()
		link *types.Entry
	)
	BeforeEach(func() {
		env = newTestEnv().withDefaultContents()
		books, err := env.fs.Lookup(ctx, types.RootIno, "books")
		Expect(err).Should(BeNil())
		link, err = env.fs.Lookup(ctx, books.Ino, "best.epub")
		Expect(err).Should(BeNil())
		Expect(link.Kind).Should(BeEquivalentTo(types.SymLinkKind))
	})
	AfterEach(func() { env.close() })

	It("should read the target", func() {
		target, err := env.fs.ReadLink(ctx, link.Ino)
		Expect(err).Should(BeNil())
		Expect(target).Should(Equal(guideBook))
	})

	It("should serve the target offline", func() {
		env.backend.SetConnected(false)
		target, err := env.fs.ReadLink(ctx, link.Ino)
		Expect(err).Should(BeNil())
		Expect(target).Should(Equal(guideBook))
	})

	It("should refuse non symlinks", func() {
		_, err := env.fs.ReadLink(ctx, types.RootIno)
		Expect(err).Should(Equal(types.ErrInvalidArgument))
	})
})

var _ = Describe("TestFsInfo", func() {
	var (
		env *testEnv
		ctx = context.TODO()
	)
	BeforeEach(func() { env = newTestEnv().withDefaultContents() })
	AfterEach(func() { env.close() })

	It("should count cached inodes", func() {
		info, err := env.fs.FsInfo(ctx)
		Expect(err).Should(BeNil())
		Expect(info.InodeCount).Should(Equal(int64(1)))

		_, err = env.fs.Lookup(ctx, types.RootIno, "README.md")
		Expect(err).Should(BeNil())
		info, err = env.fs.FsInfo(ctx)
		Expect(err).Should(BeNil())
		Expect(info.InodeCount).Should(Equal(int64(2)))
		Expect(info.NextIno).Should(Equal(uint64(3)))
	})
})
