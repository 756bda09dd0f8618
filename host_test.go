package rescache

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/testutil"
)

var _ = Describe("Host", func() {
	var h *Host
	BeforeEach(func() {
		h = &Host{Log: testutil.NewLogger()}
		h.Cache = cache.DefaultConfig()
		h.Cache.Capacity = 64 << 10
		h.Cache.MaxDeadCapacity = 32 << 10
		h.Load = LoadConfig{
			Workers:           3,
			Sessions:          2,
			Requests:          200,
			Resources:         50,
			MaxResourceSize:   4 << 10,
			DecodedSizeFactor: 2,
			LiveResources:     4,
			RevalidateEvery:   3,
			Seed:              testutil.Rand.Int63(),
		}
	})

	simulate := func() *Report {
		report, err := h.Simulate(context.Background())
		Expect(err).NotTo(HaveOccurred())
		return report
	}

	It("every request is hit or load", func() {
		r := simulate()
		Expect(r.Requests).To(Equal(600))
		Expect(r.Hits + r.Loads).To(Equal(r.Requests))
		Expect(r.WorkerHits + r.WorkerMisses).To(Equal(r.Requests))
		Expect(r.Hits).To(BeNumerically(">", 0))
		Expect(r.Revalidations).To(BeNumerically("<=", r.Hits))
		Expect(r.Errors).To(BeZero())
	})

	It("cache fits capacity after pages finished", func() {
		r := simulate()
		Expect(r.LiveSize).To(BeZero())
		Expect(r.Size).To(Equal(r.DeadSize))
		Expect(r.DeadSize).To(BeNumerically("<=", h.Cache.MaxDeadCapacity))
		Expect(r.Capacity).To(BeEquivalentTo(64 << 10))
		st := r.Statistics
		Expect(st.Images.Count + st.CSSStyleSheets.Count + st.Scripts.Count +
			st.XSLStyleSheets.Count + st.Fonts.Count).To(Equal(r.Resources))
	})

	It("disabled cache loads every request", func() {
		h.Cache.Disabled = true
		r := simulate()
		Expect(r.Hits).To(BeZero())
		Expect(r.Loads).To(Equal(r.Requests))
		Expect(r.Resources).To(BeZero())
	})

	It("removed requests are not hit", func() {
		h.Load.Workers = 1
		h.Load.Sessions = 1
		h.Load.RemoveEvery = 1
		r := simulate()
		Expect(r.Requests).To(Equal(200))
		Expect(r.Hits).To(BeZero())
		Expect(r.WorkerHits).To(BeZero())
		Expect(r.Resources).To(BeZero())
	})

	It("memory pressure destroys live decoded data", func() {
		h.Load.ReleaseMemoryEvery = 1
		h.Load.LiveResources = 100
		simulate()
		destroyed := h.Metrics.Get("cache.decoded.destroyed").(metrics.Counter)
		Expect(destroyed.Count()).To(BeNumerically(">", 0))
	})

	It("interrupted by context", func() {
		h.Load.Requests = 1 << 30
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r, err := h.Simulate(ctx)
		Expect(errors.Cause(err)).To(Equal(context.Canceled))
		Expect(r).NotTo(BeNil())
		Expect(r.LiveSize).To(BeZero())
	})

	It("invalid load", func() {
		h.Load.Workers = 0
		_, err := h.Simulate(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("workers"))
	})

	It("writes metrics", func() {
		r := simulate()
		buf := &bytes.Buffer{}
		h.WriteMetrics(buf)
		Expect(buf.String()).To(ContainSubstring("cache.hits"))
		Expect(buf.String()).To(ContainSubstring("simulation.duration"))
		Expect(r.String()).To(ContainSubstring("Hit ratio"))
	})
})
