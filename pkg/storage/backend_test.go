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
	"time"

	"github.com/hyponet/eventbus"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/events"
	"github.com/basenana/dragonstash/pkg/types"
)

var _ = Describe("TestObjectKey", func() {
	It("should map paths below a prefix", func() {
		Expect(objectKey("", "/", true)).Should(Equal(""))
		Expect(objectKey("", "/books/a.epub", false)).Should(Equal("books/a.epub"))
		Expect(objectKey("", "books", true)).Should(Equal("books/"))
		Expect(objectKey("/stash/", "/", true)).Should(Equal("stash/"))
		Expect(objectKey("stash", "/books/../README.md", false)).Should(Equal("stash/README.md"))
	})

	It("should split child names", func() {
		name, isDir := childName("books/", "books/a.epub")
		Expect(name).Should(Equal("a.epub"))
		Expect(isDir).Should(BeFalse())

		name, isDir = childName("books/", "books/novel/b.epub")
		Expect(name).Should(Equal("novel"))
		Expect(isDir).Should(BeTrue())

		name, _ = childName("books/", "books/")
		Expect(name).Should(Equal(""))
	})
})

var _ = Describe("TestNewBackend", func() {
	It("should wrap the memory backend", func() {
		b, err := NewBackend(config.Backend{ID: "mem-0", Type: config.MemoryBackend}, nil, nil)
		Expect(err).Should(BeNil())
		Expect(b.ID()).Should(Equal("mem-0"))
		Expect(b.IsConnected(context.TODO())).Should(BeTrue())

		inner, ok := b.(instrumentalBackend)
		Expect(ok).Should(BeTrue())
		_, ok = inner.Unwrap().(*MemoryBackend)
		Expect(ok).Should(BeTrue())
	})

	It("should reject unknown types", func() {
		_, err := NewBackend(config.Backend{ID: "x", Type: "ftp"}, nil, nil)
		Expect(err).ShouldNot(BeNil())
	})

	It("should reject incomplete remote configs", func() {
		for _, t := range []string{config.WebdavBackend, config.S3Backend, config.MinioBackend, config.OSSBackend} {
			_, err := NewBackend(config.Backend{ID: "remote", Type: t}, nil, nil)
			Expect(err).ShouldNot(BeNil(), t)
		}
		_, err := NewBackend(config.Backend{ID: "local", Type: config.LocalBackend}, nil, nil)
		Expect(err).ShouldNot(BeNil())
	})
})

var _ = Describe("TestMemoryBackend", func() {
	var (
		b   *MemoryBackend
		ctx = context.TODO()
		at  = time.Unix(1536390000, 20180908)
	)

	BeforeEach(func() {
		b = NewMemoryBackend("mem-test")
		Expect(b.PutFile("/README.md", types.Attr{Mode: 0640, Size: 13, ModifiedAt: at})).Should(BeNil())
		Expect(b.Mkdir("/books", types.Attr{Mode: 0750})).Should(BeNil())
		Expect(b.PutFile("/books/b.epub", types.Attr{Mode: 0644})).Should(BeNil())
		Expect(b.PutFile("/books/a.epub", types.Attr{Mode: 0644})).Should(BeNil())
		Expect(b.Symlink("/books/best.epub", "a.epub", types.Attr{Mode: 0777})).Should(BeNil())
	})

	It("should stat objects", func() {
		info, err := b.Stat(ctx, "README.md")
		Expect(err).Should(BeNil())
		Expect(info.Name).Should(Equal("README.md"))
		Expect(info.Kind).Should(BeEquivalentTo(types.RawKind))
		Expect(info.Attr.Mode).Should(Equal(uint32(0640)))
		Expect(info.Attr.Nlink).Should(Equal(uint32(1)))
		Expect(info.Attr.ModifiedAt.Equal(at)).Should(BeTrue())

		info, err = b.Stat(ctx, "/books")
		Expect(err).Should(BeNil())
		Expect(info.Kind).Should(BeEquivalentTo(types.GroupKind))

		_, err = b.Stat(ctx, "/nothing")
		Expect(err).Should(Equal(types.ErrNotFound))
	})

	It("should list children by name", func() {
		infos, err := b.ListChildren(ctx, "/books")
		Expect(err).Should(BeNil())
		Expect(infos).Should(HaveLen(3))
		Expect(infos[0].Name).Should(Equal("a.epub"))
		Expect(infos[1].Name).Should(Equal("b.epub"))
		Expect(infos[2].Name).Should(Equal("best.epub"))
		Expect(infos[2].Kind).Should(BeEquivalentTo(types.SymLinkKind))

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

	It("should refuse orphans", func() {
		Expect(b.PutFile("/none/c.epub", types.Attr{})).Should(Equal(types.ErrNotFound))
		Expect(b.PutFile("/README.md/c.epub", types.Attr{})).Should(Equal(types.ErrNoGroup))
	})

	It("should remove subtrees", func() {
		Expect(b.Remove("/books")).Should(BeNil())
		_, err := b.Stat(ctx, "/books/a.epub")
		Expect(err).Should(Equal(types.ErrNotFound))
		infos, err := b.ListChildren(ctx, "/")
		Expect(err).Should(BeNil())
		Expect(infos).Should(HaveLen(1))
	})

	It("should fail every call while disconnected", func() {
		b.SetConnected(false)
		Expect(b.IsConnected(ctx)).Should(BeFalse())

		_, err := b.Stat(ctx, "/README.md")
		Expect(err).ShouldNot(BeNil())
		Expect(err).ShouldNot(Equal(types.ErrNotFound))
		_, err = b.ListChildren(ctx, "/")
		Expect(err).ShouldNot(BeNil())
		_, err = b.ReadLink(ctx, "/books/best.epub")
		Expect(err).ShouldNot(BeNil())

		b.SetConnected(true)
		_, err = b.Stat(ctx, "/README.md")
		Expect(err).Should(BeNil())
	})

	It("should publish connectivity transitions", func() {
		got := make(chan *types.ConnectivityEvent, 4)
		lid := eventbus.Subscribe(events.TopicBackendOffline, func(evt *types.ConnectivityEvent) {
			if evt.Backend == "mem-test" {
				got <- evt
			}
		})
		defer eventbus.Unsubscribe(lid)

		b.SetConnected(false)
		b.SetConnected(false)

		var evt *types.ConnectivityEvent
		Eventually(got, time.Second).Should(Receive(&evt))
		Expect(evt.Connected).Should(BeFalse())
		Consistently(got, time.Millisecond*200).ShouldNot(Receive())
	})
})
