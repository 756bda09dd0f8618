package cache

import (
	"net/http"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Resource", func() {
	var (
		c *MemoryCache
		r *Resource
	)
	BeforeEach(func() {
		c = newTestCache(DefaultConfig())
		r = sizedResource(1000)
	})
	AfterEach(func() {
		c.ExpectInvariantsOk()
	})

	Context("client", func() {
		var client *MockClient
		BeforeEach(func() {
			client = &MockClient{}
			c.Add(r)
		})
		AfterEach(func() {
			client.AssertExpectations(GinkgoT())
		})

		It("makes resource live", func() {
			client.On("NotifyFinished", r).Once()
			r.AddClient(client)
			Expect(c.LiveSize()).To(BeEquivalentTo(1000))
			Expect(c.DeadSize()).To(BeZero())

			r.RemoveClient(client)
			Expect(c.LiveSize()).To(BeZero())
			Expect(c.DeadSize()).To(BeEquivalentTo(1000))
			Expect(r.InCache()).To(BeTrue())
		})

		It("is counted", func() {
			client.On("NotifyFinished", r).Twice()
			r.AddClient(client)
			r.AddClient(client)
			r.RemoveClient(client)
			Expect(r.HasClients()).To(BeTrue())
			r.RemoveClient(client)
			Expect(r.HasClients()).To(BeFalse())
		})

		It("panics on unknown client remove", func() {
			Expect(func() { r.RemoveClient(client) }).To(Panic())
		})

		It("notified when loading finished", func() {
			loading := NewResource(testRequest(), Script, DefaultSessionID)
			loading.SetLoading(true)
			c.Add(loading)
			loading.AddClient(client)
			client.AssertExpectations(GinkgoT())

			client.On("NotifyFinished", loading).Once()
			loading.FinishLoading()
			Expect(loading.IsLoaded()).To(BeTrue())
			loading.RemoveClient(client)
		})

		It("moves decoded resource to live decoded list", func() {
			r.SetDecodedSize(100)
			Expect(r.inLiveDecoded).To(BeFalse())
			client.On("NotifyFinished", r).Once()
			r.AddClient(client)
			Expect(r.inLiveDecoded).To(BeTrue())
			r.RemoveClient(client)
			Expect(r.inLiveDecoded).To(BeFalse())
		})

		It("removes secure no-store resource with last client", func() {
			secure := NewResource(NewRequest("https://example.com/secret", ""), MainResource, DefaultSessionID)
			secure.SetResponse(Response{StatusCode: 200, Header: http.Header{"Cache-Control": {"private, no-store"}}})
			c.Add(secure)
			client.On("NotifyFinished", secure).Once()
			secure.AddClient(client)
			secure.RemoveClient(client)
			Expect(secure.InCache()).To(BeFalse())
			Expect(secure.Deleted()).To(BeTrue())
		})
	})

	Context("decoded data", func() {
		BeforeEach(func() {
			r.AddClient(&testClient{})
			c.Add(r)
		})

		It("size change is accounted", func() {
			r.SetDecodedSize(500)
			Expect(c.LiveSize()).To(Equal(r.Size()))
			Expect(r.inLiveDecoded).To(BeTrue())
			r.SetDecodedSize(0)
			Expect(r.inLiveDecoded).To(BeFalse())
			Expect(c.LiveSize()).To(BeEquivalentTo(1000))
		})

		It("destroy calls destroyer", func() {
			var destroyed []*Resource
			r.SetDecodedDataDestroyer(func(r *Resource) { destroyed = append(destroyed, r) })
			r.SetDecodedSize(500)
			r.DestroyDecodedData()
			Expect(destroyed).To(ConsistOf(r))
			Expect(r.DecodedSize()).To(BeZero())
			Expect(c.Metrics().Get("cache.decoded.destroyed")).To(WithTransform(count, BeEquivalentTo(1)))
			By("nothing to destroy")
			r.DestroyDecodedData()
			Expect(destroyed).To(HaveLen(1))
		})

		It("access moves resource to end of live decoded list", func() {
			other := sizedResource(1000)
			other.AddClient(&testClient{})
			c.Add(other)
			r.SetDecodedSize(100)
			other.SetDecodedSize(100)
			Expect(c.liveDecoded.resources()).To(Equal([]*Resource{r, other}))
			r.DidAccessDecodedData(c.now())
			Expect(c.liveDecoded.resources()).To(Equal([]*Resource{other, r}))
		})
	})

	Context("deletion", func() {
		var deleted int
		BeforeEach(func() {
			deleted = 0
			r.OnDelete(func(*Resource) { deleted++ })
			c.Add(r)
		})

		It("deleted on remove", func() {
			c.Remove(r)
			Expect(deleted).To(Equal(1))
		})

		It("deferred while handle is held", func() {
			h := r.NewHandle()
			c.Remove(r)
			Expect(deleted).To(BeZero())
			Expect(h.Resource()).To(BeIdenticalTo(r))
			h.Release()
			h.Release()
			Expect(h.Resource()).To(BeNil())
			Expect(deleted).To(Equal(1))
		})

		It("deferred while preloaded", func() {
			r.IncreasePreloadCount()
			c.Remove(r)
			Expect(deleted).To(BeZero())
			r.DecreasePreloadCount()
			Expect(deleted).To(Equal(1))
			Expect(func() { r.DecreasePreloadCount() }).To(Panic())
		})

		It("deferred while has clients", func() {
			client := &testClient{}
			r.AddClient(client)
			c.Remove(r)
			Expect(deleted).To(BeZero())
			Expect(c.Size()).To(BeZero())
			r.RemoveClient(client)
			Expect(deleted).To(Equal(1))
		})
	})
})

var _ = Describe("Request", func() {
	It("strips fragment of http urls only", func() {
		Expect(NewRequest("http://example.com/a#b", "").URL).To(Equal("http://example.com/a"))
		Expect(NewRequest("HTTPS://example.com/a#b", "").URL).To(Equal("HTTPS://example.com/a"))
		Expect(NewRequest("data:text/plain,a#b", "").URL).To(Equal("data:text/plain,a#b"))
		Expect(NewRequest("http://example.com/a", "").URL).To(Equal("http://example.com/a"))
	})

	It("partition is registrable domain", func() {
		Expect(NewRequest("http://cdn.net/a", "www.example.co.uk").Partition).To(Equal("example.co.uk"))
		Expect(NewRequest("http://cdn.net/a", "Sub.Example.COM.").Partition).To(Equal("example.com"))
		Expect(NewRequest("http://cdn.net/a", "localhost").Partition).To(BeEmpty())
		Expect(NewRequest("http://cdn.net/a", "co.uk").Partition).To(BeEmpty())
		Expect(NewRequest("http://cdn.net/a", "").Partition).To(BeEmpty())
	})

	It("partitioned requests are different keys", func() {
		c := newTestCache(DefaultConfig())
		r := NewResource(NewRequest("http://cdn.net/a", "a.com"), Script, DefaultSessionID)
		c.Add(r)
		Expect(c.ResourceForRequest(NewRequest("http://cdn.net/a", "b.com"), DefaultSessionID)).To(BeNil())
		Expect(c.ResourceForRequest(NewRequest("http://cdn.net/a", "www.a.com"), DefaultSessionID)).To(BeIdenticalTo(r))
	})
})
