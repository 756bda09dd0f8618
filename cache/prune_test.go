package cache

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("prune", func() {
	var (
		c   *MemoryCache
		now time.Time
	)
	BeforeEach(func() {
		c = newTestCache(DefaultConfig())
		now = time.Unix(1000, 0)
		c.now = func() time.Time { return now }
	})
	AfterEach(func() {
		c.ExpectInvariantsOk()
	})

	Context("live", func() {
		var r1, r2 *Resource
		BeforeEach(func() {
			r1, r2 = sizedResource(1000), sizedResource(1000)
			for _, r := range []*Resource{r1, r2} {
				r.AddClient(&testClient{})
				c.Add(r)
				r.SetDecodedSize(1000)
			}
			r1.DidAccessDecodedData(now)
			r2.DidAccessDecodedData(now.Add(10 * time.Second))
			now = now.Add(10500 * time.Millisecond)
		})

		It("keeps recently accessed decoded data", func() {
			c.PruneLiveResourcesToSize(0, false)
			Expect(r1.DecodedSize()).To(BeZero())
			Expect(r2.DecodedSize()).To(BeEquivalentTo(1000))
			Expect(c.liveDecoded.resources()).To(Equal([]*Resource{r2}))
		})

		It("forced ignores access time", func() {
			c.PruneLiveResourcesToSize(0, true)
			Expect(r1.DecodedSize()).To(BeZero())
			Expect(r2.DecodedSize()).To(BeZero())
			Expect(c.liveDecoded.empty()).To(BeTrue())
		})

		It("stops when target is met", func() {
			c.PruneLiveResourcesToSize(3500, true)
			Expect(r1.DecodedSize()).To(BeZero())
			Expect(r2.DecodedSize()).To(BeEquivalentTo(1000))
		})

		It("skips purgeable", func() {
			r1.SetDecodedDataPurgeable(true)
			c.PruneLiveResourcesToSize(0, true)
			Expect(r1.DecodedSize()).To(BeEquivalentTo(1000))
			Expect(r2.DecodedSize()).To(BeZero())
		})

		It("skips loading", func() {
			r1.SetLoading(true)
			c.PruneLiveResourcesToSize(0, true)
			Expect(r1.DecodedSize()).To(BeEquivalentTo(1000))
			r1.SetLoading(false)
		})

		It("respects configured min delay", func() {
			c.SetMinDelayBeforeLiveDecodedPrune(time.Minute)
			c.PruneLiveResourcesToSize(0, false)
			Expect(r1.DecodedSize()).To(BeEquivalentTo(1000))
		})

		It("by capacity", func() {
			c.SetCapacities(0, 1000, 4000)
			// Live 4000 of 4000 capacity. Dead capacity is 0.
			Expect(c.LiveCapacity()).To(BeEquivalentTo(4000))
			r3 := sizedResource(400)
			r3.AddClient(&testClient{})
			c.Add(r3)
			c.Prune()
			Expect(r1.DecodedSize()).To(BeZero())
			Expect(r2.DecodedSize()).To(BeEquivalentTo(1000))
		})
	})

	Context("dead", func() {
		It("visits largest size per access first", func() {
			small := sizedResource(1000) // Bucket 9.
			large := sizedResource(5000) // Bucket 12.
			c.Add(small)
			c.Add(large)
			Expect(c.buckets).To(HaveLen(13))
			c.PruneDeadResourcesToSize(1500)
			Expect(large.InCache()).To(BeFalse())
			Expect(small.InCache()).To(BeTrue())
			Expect(c.buckets).To(HaveLen(10), "trailing empty buckets trimmed")
		})

		It("visits bucket from least recently used", func() {
			first, second := sizedResource(1000), sizedResource(1000)
			c.Add(first)
			c.Add(second)
			c.PruneDeadResourcesToSize(1500)
			Expect(first.InCache()).To(BeFalse())
			Expect(second.InCache()).To(BeTrue())
		})

		It("frequently accessed resource is pruned later", func() {
			frequent, rare := sizedResource(1000), sizedResource(1000)
			c.Add(frequent)
			c.Add(rare)
			for i := 0; i < 10; i++ {
				c.ResourceAccessed(frequent)
			}
			c.PruneDeadResourcesToSize(1500)
			Expect(rare.InCache()).To(BeFalse())
			Expect(frequent.InCache()).To(BeTrue())
		})

		It("destroys decoded data before removal", func() {
			r := sizedResource(1000)
			c.Add(r)
			r.SetDecodedSize(3000)
			other := sizedResource(1000)
			c.Add(other)
			destroyed := 0
			r.SetDecodedDataDestroyer(func(*Resource) { destroyed++ })
			c.PruneDeadResourcesToSize(2500)
			Expect(destroyed).To(Equal(1))
			Expect(r.InCache()).To(BeTrue())
			Expect(other.InCache()).To(BeTrue())
			Expect(c.DeadSize()).To(BeEquivalentTo(2000))
		})

		It("keeps live, preloaded and validators", func() {
			live := sizedResource(1000)
			live.AddClient(&testClient{})
			preloaded := sizedResource(1000)
			preloaded.IncreasePreloadCount()
			revalidated := sizedResource(1000)
			removable := sizedResource(1000)
			for _, r := range []*Resource{live, preloaded, revalidated, removable} {
				c.Add(r)
			}
			validator := revalidated.NewValidator()
			c.BeginRevalidation(revalidated, validator)

			c.PruneDeadResourcesToSize(0)
			Expect(removable.InCache()).To(BeFalse())
			Expect(live.InCache()).To(BeTrue())
			Expect(preloaded.InCache()).To(BeTrue())
			Expect(validator.InCache()).To(BeTrue())
			Expect(c.DeadSize()).To(Equal(preloaded.Size() + validator.Size()))
		})

		It("is not reentrant", func() {
			r := sizedResource(1000)
			c.Add(r)
			r.SetDecodedSize(1000)
			r.SetDecodedDataDestroyer(func(*Resource) { c.PruneDeadResourcesToSize(0) })
			c.Add(sizedResource(1000))
			c.PruneDeadResourcesToSize(0)
			Expect(c.Len()).To(BeZero())
		})

		It("by dead capacity", func() {
			c.SetCapacities(0, 1000, 4000)
			removed := sizedResource(700)
			kept := sizedResource(700)
			c.Add(removed)
			c.Add(kept)
			Expect(c.NeedsPruning()).To(BeTrue())
			c.Prune()
			Expect(removed.InCache()).To(BeFalse())
			Expect(kept.InCache()).To(BeTrue())
			Expect(c.DeadSize()).To(BeNumerically("<=", 950))
		})
	})
})
