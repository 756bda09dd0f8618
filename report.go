package rescache

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/skipor/rescache/cache"
)

// Report is simulation result. Document side counters reflect real cache state on fetch,
// worker side counters reflect state seen by workers lookups, which could be outdated.
type Report struct {
	Duration      time.Duration
	Requests      int
	Hits          int
	Loads         int
	Revalidations int
	Errors        int
	WorkerHits    int
	WorkerMisses  int

	// Cache state after simulation.
	Resources  int
	Size       int64
	LiveSize   int64
	DeadSize   int64
	Capacity   int64
	Statistics cache.Statistics
}

func (r *Report) HitRatio() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Requests)
}

func (r *Report) String() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Duration: %v\n", r.Duration)
	fmt.Fprintf(b, "Requests: %s, hits: %s, loads: %s, revalidations: %s, errors: %v\n",
		humanize.Comma(int64(r.Requests)), humanize.Comma(int64(r.Hits)),
		humanize.Comma(int64(r.Loads)), humanize.Comma(int64(r.Revalidations)), r.Errors)
	fmt.Fprintf(b, "Hit ratio: %.2f%%\n", 100*r.HitRatio())
	fmt.Fprintf(b, "Cached %v resources: %s of %s (live %s, dead %s)\n", r.Resources,
		humanize.IBytes(uint64(r.Size)), humanize.IBytes(uint64(r.Capacity)),
		humanize.IBytes(uint64(r.LiveSize)), humanize.IBytes(uint64(r.DeadSize)))
	b.WriteString(r.Statistics.String())
	return b.String()
}
