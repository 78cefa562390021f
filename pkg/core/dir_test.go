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
	"fmt"
	"time"

	"github.com/hyponet/eventbus"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/dragonstash/pkg/events"
	"github.com/basenana/dragonstash/pkg/types"
)

const readDirBudget = 4096

var _ = Describe("TestOpenDir", func() {
	var (
		env *testEnv
		ctx = context.TODO()
	)
	BeforeEach(func() { env = newTestEnv().withDefaultContents() })
	AfterEach(func() { env.close() })

	It("should start with an unsynced root", func() {
		Expect(env.synced(types.RootIno)).Should(BeFalse())
	})

	Context("open the root online", func() {
		var handle uint64
		BeforeEach(func() {
			var err error
			handle, err = env.fs.OpenDir(ctx, types.RootIno)
			Expect(err).Should(BeNil())
		})

		It("should mark the root synced", func() {
			Expect(env.synced(types.RootIno)).Should(BeTrue())
		})

		It("should not mark child directories synced", func() {
			books := env.cachedIno(types.RootIno, "books")
			Expect(env.synced(books)).Should(BeFalse())
		})

		It("should cache every child", func() {
			entries, _, err := env.fs.ReadDir(ctx, types.RootIno, handle, 0, readDirBudget)
			Expect(err).Should(BeNil())
			Expect(entryNames(entries)).Should(Equal([]string{".", "..", "README.md", "books"}))
			Expect(entries[1].Ino).Should(Equal(types.RootIno))
		})

		It("should keep inos when opened again", func() {
			readme := env.cachedIno(types.RootIno, "README.md")
			books := env.cachedIno(types.RootIno, "books")

			h2, err := env.fs.OpenDir(ctx, types.RootIno)
			Expect(err).Should(BeNil())
			Expect(h2).ShouldNot(Equal(handle))

			Expect(env.cachedIno(types.RootIno, "README.md")).Should(Equal(readme))
			Expect(env.cachedIno(types.RootIno, "books")).Should(Equal(books))
		})

		Context("then disconnect the backend", func() {
			BeforeEach(func() { env.backend.SetConnected(false) })

			It("should look up cached entries", func() {
				en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
				Expect(err).Should(BeNil())
				Expect(en.Kind).Should(BeEquivalentTo(types.RawKind))
				Expect(en.Attr.Mode).Should(Equal(uint32(0640)))
			})

			It("should open and iterate the root from cache", func() {
				h, err := env.fs.OpenDir(ctx, types.RootIno)
				Expect(err).Should(BeNil())

				entries, next, err := env.fs.ReadDir(ctx, types.RootIno, h, 2, readDirBudget)
				Expect(err).Should(BeNil())
				Expect(entryNames(entries)).Should(Equal([]string{"README.md", "books"}))
				Expect(next).Should(Equal(uint64(4)))
			})

			It("should open an unsynced directory but fail to iterate it", func() {
				books, err := env.fs.Lookup(ctx, types.RootIno, "books")
				Expect(err).Should(BeNil())

				h, err := env.fs.OpenDir(ctx, books.Ino)
				Expect(err).Should(BeNil())

				_, _, err = env.fs.ReadDir(ctx, books.Ino, h, 2, readDirBudget)
				Expect(err).Should(Equal(types.ErrOffline))
			})

			It("should hand out dot entries before failing", func() {
				books, err := env.fs.Lookup(ctx, types.RootIno, "books")
				Expect(err).Should(BeNil())
				h, err := env.fs.OpenDir(ctx, books.Ino)
				Expect(err).Should(BeNil())

				entries, next, err := env.fs.ReadDir(ctx, books.Ino, h, 0, readDirBudget)
				Expect(err).Should(BeNil())
				Expect(entryNames(entries)).Should(Equal([]string{".", ".."}))
				Expect(entries[1].Ino).Should(Equal(types.RootIno))

				_, _, err = env.fs.ReadDir(ctx, books.Ino, h, next, readDirBudget)
				Expect(err).Should(Equal(types.ErrOffline))
			})
		})
	})

	It("should refuse non directories", func() {
		en, err := env.fs.Lookup(ctx, types.RootIno, "README.md")
		Expect(err).Should(BeNil())
		_, err = env.fs.OpenDir(ctx, en.Ino)
		Expect(err).Should(Equal(types.ErrNoGroup))

		_, err = env.fs.OpenDir(ctx, 4096)
		Expect(err).Should(Equal(types.ErrNotFound))
	})

	It("should mark entries gone from the backend vanished", func() {
		_, err := env.fs.OpenDir(ctx, types.RootIno)
		Expect(err).Should(BeNil())
		readme := env.cachedIno(types.RootIno, "README.md")

		Expect(env.backend.Remove("/README.md")).Should(BeNil())
		h, err := env.fs.OpenDir(ctx, types.RootIno)
		Expect(err).Should(BeNil())

		_, err = env.cache.Lookup(ctx, types.RootIno, "README.md")
		Expect(err).Should(Equal(types.ErrNotFound))
		entries, _, err := env.fs.ReadDir(ctx, types.RootIno, h, 0, readDirBudget)
		Expect(err).Should(BeNil())
		Expect(entryNames(entries)).Should(Equal([]string{".", "..", "books"}))

		_, err = env.fs.GetAttr(ctx, readme)
		Expect(err).Should(BeNil())
	})

	It("should publish a synced event", func() {
		got := make(chan *types.SyncEvent, 4)
		lid := eventbus.Subscribe(events.TopicDirSynced, func(evt *types.SyncEvent) {
			if evt.Path == "/books" {
				got <- evt
			}
		})
		defer eventbus.Unsubscribe(lid)

		books, err := env.fs.Lookup(ctx, types.RootIno, "books")
		Expect(err).Should(BeNil())
		_, err = env.fs.OpenDir(ctx, books.Ino)
		Expect(err).Should(BeNil())

		var evt *types.SyncEvent
		Eventually(got, time.Second).Should(Receive(&evt))
		Expect(evt.Ino).Should(Equal(books.Ino))
		Expect(evt.Added).Should(Equal(3))
	})
})

var _ = Describe("TestReadDir", func() {
	var (
		env *testEnv
		ctx = context.TODO()
	)
	BeforeEach(func() { env = newTestEnv().withDefaultContents() })
	AfterEach(func() { env.close() })

	It("should sync implicitly when the directory was never synced", func() {
		books, err := env.fs.Lookup(ctx, types.RootIno, "books")
		Expect(err).Should(BeNil())

		env.backend.SetConnected(false)
		h, err := env.fs.OpenDir(ctx, books.Ino)
		Expect(err).Should(BeNil())
		Expect(env.synced(books.Ino)).Should(BeFalse())

		env.backend.SetConnected(true)
		entries, _, err := env.fs.ReadDir(ctx, books.Ino, h, 0, readDirBudget)
		Expect(err).Should(BeNil())
		Expect(entryNames(entries)).Should(ConsistOf(".", "..", guideBook, styleBook, "best.epub"))
		Expect(env.synced(books.Ino)).Should(BeTrue())
	})

	It("should prefetch symlink targets while syncing", func() {
		books, err := env.fs.Lookup(ctx, types.RootIno, "books")
		Expect(err).Should(BeNil())
		_, err = env.fs.OpenDir(ctx, books.Ino)
		Expect(err).Should(BeNil())

		env.backend.SetConnected(false)
		link, err := env.fs.Lookup(ctx, books.Ino, "best.epub")
		Expect(err).Should(BeNil())
		target, err := env.fs.ReadLink(ctx, link.Ino)
		Expect(err).Should(BeNil())
		Expect(target).Should(Equal(guideBook))
	})

	It("should refuse unknown handles", func() {
		_, _, err := env.fs.ReadDir(ctx, types.RootIno, 4096, 0, readDirBudget)
		Expect(err).Should(Equal(types.ErrInvalidArgument))

		books, err := env.fs.Lookup(ctx, types.RootIno, "books")
		Expect(err).Should(BeNil())
		h, err := env.fs.OpenDir(ctx, types.RootIno)
		Expect(err).Should(BeNil())
		_, _, err = env.fs.ReadDir(ctx, books.Ino, h, 0, readDirBudget)
		Expect(err).Should(Equal(types.ErrInvalidArgument))

		Expect(env.fs.ReleaseDir(ctx, h)).Should(BeNil())
		Expect(env.fs.ReleaseDir(ctx, h)).Should(Equal(types.ErrInvalidArgument))
		_, _, err = env.fs.ReadDir(ctx, types.RootIno, h, 0, readDirBudget)
		Expect(err).Should(Equal(types.ErrInvalidArgument))
	})

	It("should report a vanished and never synced directory as gone", func() {
		books, err := env.fs.Lookup(ctx, types.RootIno, "books")
		Expect(err).Should(BeNil())
		Expect(env.synced(books.Ino)).Should(BeFalse())

		Expect(env.backend.Remove("/books")).Should(BeNil())
		_, err = env.fs.Lookup(ctx, types.RootIno, "books")
		Expect(err).Should(Equal(types.ErrNotFound))

		h, err := env.fs.OpenDir(ctx, books.Ino)
		Expect(err).Should(BeNil())
		_, _, err = env.fs.ReadDir(ctx, books.Ino, h, 0, readDirBudget)
		Expect(err).Should(Equal(types.ErrNotFound))
		Expect(env.fs.ReleaseDir(ctx, h)).Should(BeNil())
	})

	Context("a large directory", func() {
		const total = 120
		var dirIno, handle uint64

		BeforeEach(func() {
			Expect(env.backend.Mkdir("/large", defaultAttr(0755))).Should(BeNil())
			for i := 0; i < total; i++ {
				Expect(env.backend.PutFile(fmt.Sprintf("/large/file-%03d", i), defaultAttr(0644))).Should(BeNil())
			}
			en, err := env.fs.Lookup(ctx, types.RootIno, "large")
			Expect(err).Should(BeNil())
			dirIno = en.Ino
			handle, err = env.fs.OpenDir(ctx, dirIno)
			Expect(err).Should(BeNil())
		})

		It("should split entries by the dirent budget", func() {
			// "file-000" takes 32 bytes, dots take 32 bytes each
			var (
				offset uint64
				names  []string
				calls  int
			)
			for {
				entries, next, err := env.fs.ReadDir(ctx, dirIno, handle, offset, 320)
				Expect(err).Should(BeNil())
				if len(entries) == 0 {
					break
				}
				Expect(len(entries)).Should(BeNumerically("<=", 10))
				names = append(names, entryNames(entries)...)
				offset = next
				calls++
			}
			Expect(names).Should(HaveLen(total + 2))
			Expect(calls).Should(Equal((total + 2 + 9) / 10))

			seen := map[string]struct{}{}
			for _, n := range names {
				seen[n] = struct{}{}
			}
			Expect(seen).Should(HaveLen(total + 2))
		})

		It("should resume from a random offset", func() {
			all, _, err := env.fs.ReadDir(ctx, dirIno, handle, 0, 0)
			Expect(err).Should(BeNil())
			Expect(all).Should(HaveLen(total + 2))

			h2, err := env.fs.OpenDir(ctx, dirIno)
			Expect(err).Should(BeNil())
			part, _, err := env.fs.ReadDir(ctx, dirIno, h2, 50, 0)
			Expect(err).Should(BeNil())
			Expect(part).Should(Equal(all[50:]))
		})

		It("should not skip entries when some vanish between calls", func() {
			first, next, err := env.fs.ReadDir(ctx, dirIno, handle, 0, 320)
			Expect(err).Should(BeNil())
			Expect(first).Should(HaveLen(10))

			// drop entries already handed out
			Expect(env.backend.Remove("/large/" + first[2].Name)).Should(BeNil())
			Expect(env.backend.Remove("/large/" + first[3].Name)).Should(BeNil())
			_, err = env.fs.OpenDir(ctx, dirIno)
			Expect(err).Should(BeNil())

			rest, _, err := env.fs.ReadDir(ctx, dirIno, handle, next, 0)
			Expect(err).Should(BeNil())
			Expect(rest).Should(HaveLen(total - 8))
			Expect(rest[0].Ino).Should(BeNumerically(">", first[9].Ino))
		})
	})
})
