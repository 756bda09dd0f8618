package cache

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rcrowley/go-metrics"
)

type cacheMetrics struct {
	registry         metrics.Registry
	hits             metrics.Counter
	misses           metrics.Counter
	evictions        metrics.Counter
	decodedDestroyed metrics.Counter
	prune            metrics.Timer
}

func newCacheMetrics(c *MemoryCache, r metrics.Registry) cacheMetrics {
	metrics.NewRegisteredFunctionalGauge("cache.size.live", r, func() int64 { return c.liveSize })
	metrics.NewRegisteredFunctionalGauge("cache.size.dead", r, func() int64 { return c.deadSize })
	return cacheMetrics{
		registry:         r,
		hits:             metrics.NewRegisteredCounter("cache.hits", r),
		misses:           metrics.NewRegisteredCounter("cache.misses", r),
		evictions:        metrics.NewRegisteredCounter("cache.evictions", r),
		decodedDestroyed: metrics.NewRegisteredCounter("cache.decoded.destroyed", r),
		prune:            metrics.NewRegisteredTimer("cache.prune", r),
	}
}

type TypeStatistic struct {
	Count       int
	Size        int64
	LiveSize    int64
	DecodedSize int64
}

func (s *TypeStatistic) add(r *Resource) {
	s.Count++
	s.Size += r.Size()
	if r.HasClients() {
		s.LiveSize += r.Size()
	}
	s.DecodedSize += r.decodedSize
}

type Statistics struct {
	Images         TypeStatistic
	CSSStyleSheets TypeStatistic
	Scripts        TypeStatistic
	XSLStyleSheets TypeStatistic
	Fonts          TypeStatistic
}

// Statistics counts cached resources by type. Resources of other types are not counted.
func (c *MemoryCache) Statistics() Statistics {
	var s Statistics
	for _, resources := range c.sessions {
		for _, r := range resources {
			switch r.typ {
			case ImageResource:
				s.Images.add(r)
			case CSSStyleSheet:
				s.CSSStyleSheets.add(r)
			case Script:
				s.Scripts.add(r)
			case XSLStyleSheet:
				s.XSLStyleSheets.add(r)
			case FontResource:
				s.Fonts.add(r)
			}
		}
	}
	return s
}

func (s Statistics) String() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%-15s %8s %10s %10s %10s\n", "", "Count", "Size", "LiveSize", "Decoded")
	row := func(name string, ts TypeStatistic) {
		fmt.Fprintf(b, "%-15s %8d %10s %10s %10s\n", name, ts.Count,
			humanize.IBytes(uint64(ts.Size)), humanize.IBytes(uint64(ts.LiveSize)), humanize.IBytes(uint64(ts.DecodedSize)))
	}
	row("Images", s.Images)
	row("CSS", s.CSSStyleSheets)
	row("JavaScript", s.Scripts)
	row("XSL", s.XSLStyleSheets)
	row("Fonts", s.Fonts)
	return b.String()
}

func (c *MemoryCache) DumpStats() {
	c.log.Infof("Memory cache: live %s, dead %s, capacity %s.\n%s",
		humanize.IBytes(uint64(c.liveSize)), humanize.IBytes(uint64(c.deadSize)),
		humanize.IBytes(uint64(c.capacity)), c.Statistics())
}

// DumpLRULists logs buckets from most to least recently used. Live resources are skipped, if !includeLive.
func (c *MemoryCache) DumpLRULists(includeLive bool) {
	b := &strings.Builder{}
	for i := len(c.buckets) - 1; i >= 0; i-- {
		fmt.Fprintf(b, "List %d:", i)
		l := &c.buckets[i]
		for r := l.tail(); r != l.fakeHead; r = r.lruLinks.prev {
			if includeLive || !r.HasClients() {
				fmt.Fprintf(b, " (%.1fK, %.1fK, %d accesses, %v clients)",
					float64(r.decodedSize)/1024, float64(r.encodedSize)/1024, r.accessCount, len(r.clients))
			}
		}
		b.WriteByte('\n')
	}
	c.log.Info("LRU lists:\n", b.String())
}
