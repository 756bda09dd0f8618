//go:build debug

// Gomega should not be dependency in non-debug build.

package cache

import (
	"errors"
	"log"

	"github.com/facebookgo/stackerr"
	. "github.com/onsi/gomega"
)

var invariants = NewGomega(func(message string, callerSkip ...int) {
	skip := 1
	if len(callerSkip) > 0 {
		skip += callerSkip[0]
	}
	log.Fatal("FATAL: invariants are broken:", stackerr.WrapSkip(errors.New(message), skip))
})

func (l *list) checkInvariants(member func(*Resource) bool) {
	g := invariants
	g.Expect(l.links(l.fakeHead).prev).To(BeNil())
	g.Expect(l.links(l.fakeTail).next).To(BeNil())
	var n int
	for r := l.head(); !l.end(r); r = l.next(r) {
		n++
		g.Expect(l.links(l.links(r).prev).next).To(BeIdenticalTo(r))
		g.Expect(member(r)).To(BeTrue(), "%s is linked, but not member", r)
	}
	g.Expect(l.tail()).To(Equal(l.links(l.fakeTail).prev))
	g.Expect(n).To(Equal(l.len))
}

func (c *MemoryCache) checkInvariants() {
	g := invariants
	var size int64
	var inLists int
	for i := range c.buckets {
		l := &c.buckets[i]
		l.checkInvariants(func(r *Resource) bool { return r.lruIndex == i && r.inCache })
		inLists += l.len
	}
	c.liveDecoded.checkInvariants(func(r *Resource) bool {
		return r.inLiveDecoded && r.inCache && r.HasClients() && r.decodedSize != 0
	})
	var cached int
	for session, resources := range c.sessions {
		g.Expect(resources).NotTo(BeEmpty(), "empty session %s map", session)
		for k, r := range resources {
			cached++
			g.Expect(r.inCache).To(BeTrue())
			g.Expect(r.key()).To(Equal(k))
			g.Expect(r.session).To(Equal(session))
			g.Expect(r.lruIndex).To(Equal(bucketIndex(r)), "%s in wrong bucket", r)
			size += r.Size()
		}
	}
	g.Expect(inLists).To(Equal(cached), "resources in LRU and in maps differ")
	g.Expect(c.liveSize+c.deadSize).To(Equal(size), "live + dead != sum of resource sizes")
}
