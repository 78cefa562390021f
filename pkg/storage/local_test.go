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
	"os"
	"path"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/dragonstash/pkg/types"
)

var _ = Describe("TestLocalBackend", func() {
	var (
		b       Backend
		rootDir string
		ctx     = context.TODO()
		at      = time.Unix(1536390000, 20180908)
	)

	BeforeEach(func() {
		var err error
		rootDir, err = os.MkdirTemp(workdir, "local-")
		Expect(err).Should(BeNil())
		Expect(os.WriteFile(path.Join(rootDir, "README.md"), []byte("hello stash\n"), 0640)).Should(BeNil())
		Expect(os.Chmod(path.Join(rootDir, "README.md"), 0640)).Should(BeNil())
		Expect(os.Chtimes(path.Join(rootDir, "README.md"), at, at)).Should(BeNil())
		Expect(os.Mkdir(path.Join(rootDir, "books"), 0750)).Should(BeNil())
		Expect(os.WriteFile(path.Join(rootDir, "books", "a.epub"), []byte("a"), 0644)).Should(BeNil())
		Expect(os.Symlink("a.epub", path.Join(rootDir, "books", "best.epub"))).Should(BeNil())

		b, err = newLocalBackend("local-test", rootDir)
		Expect(err).Should(BeNil())
	})

	It("should stat files with their host attributes", func() {
		info, err := b.Stat(ctx, "/README.md")
		Expect(err).Should(BeNil())
		Expect(info.Name).Should(Equal("README.md"))
		Expect(info.Kind).Should(BeEquivalentTo(types.RawKind))
		Expect(info.Attr.Mode).Should(Equal(uint32(0640)))
		Expect(info.Attr.Size).Should(Equal(int64(12)))
		Expect(info.Attr.UID).Should(Equal(uint32(os.Getuid())))
		Expect(info.Attr.ModifiedAt.Equal(at)).Should(BeTrue())

		info, err = b.Stat(ctx, "/books/best.epub")
		Expect(err).Should(BeNil())
		Expect(info.Kind).Should(BeEquivalentTo(types.SymLinkKind))
	})

	It("should report missing objects as not found", func() {
		_, err := b.Stat(ctx, "/nothing")
		Expect(err).Should(Equal(types.ErrNotFound))
		_, err = b.Stat(ctx, "/README.md/child")
		Expect(err).Should(Equal(types.ErrNotFound))
	})

	It("should list children by name", func() {
		infos, err := b.ListChildren(ctx, "/")
		Expect(err).Should(BeNil())
		Expect(infos).Should(HaveLen(2))
		Expect(infos[0].Name).Should(Equal("README.md"))
		Expect(infos[1].Name).Should(Equal("books"))
		Expect(infos[1].Kind).Should(BeEquivalentTo(types.GroupKind))
		Expect(infos[1].Attr.Mode).Should(Equal(uint32(0750)))

		_, err = b.ListChildren(ctx, "/README.md")
		Expect(err).Should(Equal(types.ErrNoGroup))
	})

	It("should read links", func() {
		target, err := b.ReadLink(ctx, "/books/best.epub")
		Expect(err).Should(BeNil())
		Expect(target).Should(Equal("a.epub"))

		_, err = b.ReadLink(ctx, "/README.md")
		Expect(err).Should(Equal(types.ErrInvalidArgument))
	})

	It("should go offline when the root is unplugged", func() {
		Expect(b.IsConnected(ctx)).Should(BeTrue())

		moved := rootDir + ".unplugged"
		Expect(os.Rename(rootDir, moved)).Should(BeNil())
		Expect(b.IsConnected(ctx)).Should(BeFalse())

		_, err := b.Stat(ctx, "/README.md")
		Expect(err).ShouldNot(BeNil())
		Expect(err).ShouldNot(Equal(types.ErrNotFound))

		Expect(os.Rename(moved, rootDir)).Should(BeNil())
		Expect(b.IsConnected(ctx)).Should(BeTrue())
	})
})
