package collection

import (
	"context"
	"testing"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCollection(t *testing.T) {
	RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Collection")
}

type item struct {
	Name  string
	Count int
}

var _ = ginkgo.Describe("Store", func() {
	var s *Store[item]
	var deltas []Delta[item]

	ginkgo.BeforeEach(func() {
		s = NewStore[item]("items")
		deltas = nil
		s.OnDelta(func(d Delta[item]) { deltas = append(deltas, d) })
	})

	ginkgo.Describe("mutations", func() {
		ginkgo.It("should emit Added for a new key", func() {
			s.Upsert(1, item{Name: "a"})
			Expect(deltas).To(HaveLen(1))
			Expect(deltas[0].Type).To(Equal(Added))
			Expect(deltas[0].Key).To(Equal(int64(1)))
			Expect(deltas[0].Value).To(Equal(item{Name: "a"}))
		})

		ginkgo.It("should emit Updated for an existing key", func() {
			s.Upsert(1, item{Name: "a"})
			s.Upsert(1, item{Name: "b"})
			Expect(deltas).To(HaveLen(2))
			Expect(deltas[1].Type).To(Equal(Updated))
			Expect(deltas[1].Value).To(Equal(item{Name: "b"}))
		})

		ginkgo.It("should suppress no-op updates", func() {
			s.Upsert(1, item{Name: "a", Count: 3})
			s.Upsert(1, item{Name: "a", Count: 3})
			Expect(deltas).To(HaveLen(1))
		})

		ginkgo.It("should emit Deleted and drop the entry", func() {
			s.Upsert(1, item{Name: "a"})
			s.Delete(1)
			Expect(deltas).To(HaveLen(2))
			Expect(deltas[1].Type).To(Equal(Deleted))
			_, ok := s.Get(1)
			Expect(ok).To(BeFalse())
		})

		ginkgo.It("should ignore deletes of absent keys", func() {
			s.Delete(42)
			Expect(deltas).To(BeEmpty())
			Expect(s.Len()).To(Equal(0))
		})
	})

	ginkgo.Describe("listing", func() {
		ginkgo.It("should list entries in ascending key order", func() {
			s.Upsert(3, item{Name: "c"})
			s.Upsert(1, item{Name: "a"})
			s.Upsert(2, item{Name: "b"})

			entries := s.List()
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].Key).To(Equal(int64(1)))
			Expect(entries[1].Key).To(Equal(int64(2)))
			Expect(entries[2].Key).To(Equal(int64(3)))
		})
	})

	ginkgo.Describe("reset", func() {
		ginkgo.It("should emit the difference between old and new content", func() {
			s.Upsert(1, item{Name: "a"})
			s.Upsert(2, item{Name: "b"})
			s.Upsert(3, item{Name: "c"})
			deltas = nil

			s.Reset([]Entry[item]{
				{Key: 2, Value: item{Name: "b"}},
				{Key: 3, Value: item{Name: "c2"}},
				{Key: 4, Value: item{Name: "d"}},
			})

			Expect(deltas).To(HaveLen(3))
			Expect(deltas[0]).To(Equal(Delta[item]{Type: Deleted, Key: 1}))
			Expect(deltas[1]).To(Equal(Delta[item]{Type: Updated, Key: 3, Value: item{Name: "c2"}}))
			Expect(deltas[2]).To(Equal(Delta[item]{Type: Added, Key: 4, Value: item{Name: "d"}}))
		})

		ginkgo.It("should keep untouched keys silent", func() {
			s.Upsert(1, item{Name: "a"})
			deltas = nil

			s.Reset([]Entry[item]{{Key: 1, Value: item{Name: "a"}}})
			Expect(deltas).To(BeEmpty())
		})
	})

	ginkgo.Describe("watching", func() {
		ginkgo.It("should replay current content as Added deltas", func() {
			s.Upsert(2, item{Name: "b"})
			s.Upsert(1, item{Name: "a"})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ch := s.Watch(ctx)

			var d Delta[item]
			Eventually(ch).Should(Receive(&d))
			Expect(d.Type).To(Equal(Added))
			Expect(d.Key).To(Equal(int64(1)))
			Eventually(ch).Should(Receive(&d))
			Expect(d.Key).To(Equal(int64(2)))
		})

		ginkgo.It("should stream subsequent changes", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ch := s.Watch(ctx)

			s.Upsert(1, item{Name: "a"})
			s.Delete(1)

			var d Delta[item]
			Eventually(ch).Should(Receive(&d))
			Expect(d.Type).To(Equal(Added))
			Eventually(ch).Should(Receive(&d))
			Expect(d.Type).To(Equal(Deleted))
		})

		ginkgo.It("should close the channel when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			ch := s.Watch(ctx)
			cancel()
			Eventually(ch).Should(BeClosed())
		})
	})
})
