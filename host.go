package rescache

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/skipor/rescache/internal/tag"
	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/runloop"
	"github.com/skipor/rescache/worker"
)

// Host runs document with memory cache and page workers, that load resources through it.
type Host struct {
	Config
	Log     log.Logger
	Metrics metrics.Registry
}

func (h *Host) init() {
	if h.Log == nil {
		dest := h.LogDestination
		if dest == nil {
			dest = os.Stderr
		}
		h.Log = log.NewLogger(h.LogLevel, dest)
	}
	if h.Metrics == nil {
		h.Metrics = metrics.NewRegistry()
	}
	h.Cache.Metrics = h.Metrics
	if tag.Debug {
		h.Log.Warn("Using debug build. Cache invariants are checked after every operation.")
	}
}

// Simulate runs configured load until every worker finishes, or ctx is done.
// Document thread is calling goroutine. Report is returned even on interruption.
func (h *Host) Simulate(ctx context.Context) (*Report, error) {
	h.init()
	if err := h.Load.validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	doc := worker.NewDocument(h.Log, h.Cache)
	s := newSimulation(h.Log, h.Load, doc)
	for i := 0; i < h.Load.Workers; i++ {
		s.startPage(i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.pages {
		done := p.w.Done()
		g.Go(func() error {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
			}
			doc.PostTask(runloop.NewTask(stopTask{s}))
			<-done
			return gctx.Err()
		})
	}
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		doc.Close()
	}()
	doc.Run()
	err := <-waitErr

	// Prune task could be dropped by document close.
	doc.MemoryCache().Prune()
	report := s.report(time.Since(started))
	metrics.GetOrRegisterTimer("simulation.duration", h.Metrics).Update(report.Duration)
	h.Log.Infof("Simulation finished in %v. Requests: %v.", report.Duration, report.Requests)
	if err != nil {
		return report, errors.Wrap(err, "simulation interrupted")
	}
	return report, nil
}

// WriteMetrics writes cache and simulation metrics.
func (h *Host) WriteMetrics(w io.Writer) {
	metrics.WriteOnce(h.Metrics, w)
}

type stopTask struct {
	s *simulation
}

func (t stopTask) Perform(runloop.Context) {
	for _, p := range t.s.pages {
		t.s.finish(p)
	}
}
