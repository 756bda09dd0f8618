package rescache

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/messaging"
	"github.com/skipor/rescache/worker"
)

type resourceEntry struct {
	req  cache.Request
	typ  cache.Type
	mime string
	size int64
}

var resourceKinds = []struct {
	typ  cache.Type
	ext  string
	mime string
}{
	{cache.ImageResource, "png", "image/png"},
	{cache.CSSStyleSheet, "css", "text/css"},
	{cache.Script, "js", "text/javascript"},
	{cache.FontResource, "woff2", "font/woff2"},
	{cache.XSLStyleSheet, "xsl", "text/xsl"},
}

var resourceHosts = []string{"static.example.com", "cdn.example.net"}

// newCatalog is shared by document and workers. It is read only.
func newCatalog(conf LoadConfig) []resourceEntry {
	rnd := rand.New(rand.NewSource(conf.Seed))
	entries := make([]resourceEntry, conf.Resources)
	for i := range entries {
		kind := resourceKinds[i%len(resourceKinds)]
		url := fmt.Sprintf("https://%s/assets/%d.%s", resourceHosts[i%len(resourceHosts)], i, kind.ext)
		entries[i] = resourceEntry{
			req:  cache.NewRequest(url, conf.PartitionDomain),
			typ:  kind.typ,
			mime: kind.mime,
			size: 1 + rnd.Int63n(conf.MaxResourceSize),
		}
	}
	return entries
}

const (
	fetchMessage      = "fetch"
	revalidateMessage = "revalidate"
	doneMessage       = "done"
)

// pageMessage is sent by page worker to document.
type pageMessage struct {
	Kind     string `json:"kind"`
	Resource int    `json:"resource,omitempty"`
	Hits     int    `json:"hits,omitempty"`
	Misses   int    `json:"misses,omitempty"`
}

// simulation state is owned by document thread.
type simulation struct {
	log      log.Logger
	conf     LoadConfig
	doc      *worker.Document
	cache    *cache.MemoryCache
	catalog  []resourceEntry
	sessions []cache.SessionID
	pages    []*page
	stats    Report
}

func newSimulation(l log.Logger, conf LoadConfig, doc *worker.Document) *simulation {
	s := &simulation{
		log:     l.WithFields(log.Fields{"context": "simulation"}),
		conf:    conf,
		doc:     doc,
		cache:   doc.MemoryCache(),
		catalog: newCatalog(conf),
	}
	s.sessions = append(s.sessions, cache.DefaultSessionID)
	for len(s.sessions) < conf.Sessions {
		s.sessions = append(s.sessions, cache.NewSessionID())
	}
	return s
}

// page is cache client, that keeps last fetched resources live.
type page struct {
	id       int
	w        *worker.Worker
	session  cache.SessionID
	live     []*cache.Resource
	finished bool
}

var _ cache.Client = (*page)(nil)

func (p *page) NotifyFinished(*cache.Resource) {}

func (s *simulation) startPage(id int) {
	p := &page{
		id:      id,
		w:       worker.New(s.doc),
		session: s.sessions[id%len(s.sessions)],
	}
	s.pages = append(s.pages, p)
	p.w.SetOnMessage(func(ev messaging.MessageEvent) { s.onMessage(p, ev) })
	p.w.SetOnError(func(e worker.ErrorEvent) bool {
		s.stats.Errors++
		s.log.Warnf("Page %v failed: %s", p.id, e)
		s.finish(p)
		return true
	})
	p.w.Start(fmt.Sprintf("https://example.com/page%d.js", id), s.script(id, p.session))
}

// script returns page worker body. It is run on worker thread and touches only catalog and own state.
func (s *simulation) script(id int, session cache.SessionID) worker.Script {
	conf, catalog := s.conf, s.catalog
	return func(scope *worker.GlobalScope) error {
		rnd := rand.New(rand.NewSource(conf.Seed + int64(id)))
		zipf := rand.NewZipf(rnd, 1.2, 1, uint64(len(catalog)-1))
		var hits, misses int
		for i := 1; i <= conf.Requests; i++ {
			if scope.Context().Err() != nil {
				return nil
			}
			idx := int(zipf.Uint64())
			entry := catalog[idx]
			info, found, err := worker.LookupResource(scope, entry.req, session)
			if errors.Cause(err) == worker.ErrSendFail {
				// Terminated while waiting.
				return nil
			}
			if err != nil {
				return err
			}
			msg := pageMessage{Kind: fetchMessage, Resource: idx}
			if found {
				hits++
				if conf.RevalidateEvery != 0 && info.AccessCount%uint32(conf.RevalidateEvery) == 0 {
					msg.Kind = revalidateMessage
				}
			} else {
				misses++
			}
			if err := scope.PostMessage(messaging.MustSerialize(msg), nil); err != nil {
				return err
			}
			if conf.RemoveEvery != 0 && i%conf.RemoveEvery == 0 {
				cache.RemoveRequestFromSessionCaches(scope, entry.req)
			}
		}
		done := pageMessage{Kind: doneMessage, Hits: hits, Misses: misses}
		if err := scope.PostMessage(messaging.MustSerialize(done), nil); err != nil {
			return err
		}
		scope.Close()
		return nil
	}
}

func (s *simulation) onMessage(p *page, ev messaging.MessageEvent) {
	var m pageMessage
	if err := ev.Data.Deserialize(&m); err != nil {
		s.log.Errorf("Invalid message from page %v: %v", p.id, err)
		return
	}
	switch m.Kind {
	case fetchMessage, revalidateMessage:
		if m.Resource < 0 || m.Resource >= len(s.catalog) {
			s.log.Errorf("Page %v fetch of unknown resource %v.", p.id, m.Resource)
			return
		}
		s.fetch(p, s.catalog[m.Resource], m.Kind == revalidateMessage)
	case doneMessage:
		s.stats.WorkerHits += m.Hits
		s.stats.WorkerMisses += m.Misses
		s.finish(p)
	default:
		s.log.Errorf("Unexpected message from page %v: %s", p.id, ev.Data)
	}
}

func (s *simulation) fetch(p *page, e resourceEntry, revalidate bool) {
	s.stats.Requests++
	r := s.cache.ResourceForRequest(e.req, p.session)
	if r == nil {
		r = s.load(e, p.session)
	} else {
		s.stats.Hits++
		s.cache.ResourceAccessed(r)
		if revalidate {
			s.revalidate(r)
		}
	}
	s.use(p, r)
}

func (s *simulation) load(e resourceEntry, session cache.SessionID) *cache.Resource {
	s.stats.Loads++
	r := cache.NewResource(e.req, e.typ, session)
	r.SetResponse(cache.Response{
		StatusCode: http.StatusOK,
		MIMEType:   e.mime,
		Header: http.Header{
			"Cache-Control": {"max-age=60"},
			"Content-Type":  {e.mime},
		},
	})
	r.SetEncodedSize(e.size)
	s.cache.Add(r)
	if n := s.conf.ReleaseMemoryEvery; n != 0 && s.stats.Loads%n == 0 {
		s.cache.ReleaseMemory(false)
	}
	return r
}

func (s *simulation) revalidate(r *cache.Resource) {
	s.stats.Revalidations++
	v := r.NewValidator()
	s.cache.BeginRevalidation(r, v)
	s.cache.RevalidationSucceeded(v, cache.Response{
		StatusCode: http.StatusNotModified,
		Header:     http.Header{"Cache-Control": {"max-age=120"}},
	})
}

// use makes resource live for page. Resource decoded data is created on first use.
func (s *simulation) use(p *page, r *cache.Resource) {
	r.AddClient(p)
	if r.DecodedSize() == 0 && s.conf.DecodedSizeFactor != 0 {
		r.SetDecodedSize(r.EncodedSize() * int64(s.conf.DecodedSizeFactor))
	}
	r.DidAccessDecodedData(time.Now())
	p.live = append(p.live, r)
	if len(p.live) > s.conf.LiveResources {
		p.live[0].RemoveClient(p)
		p.live[0] = nil
		p.live = p.live[1:]
	}
}

// finish releases page resources and worker. Worker thread is terminated, if it still runs.
func (s *simulation) finish(p *page) {
	if p.finished {
		return
	}
	p.finished = true
	for _, r := range p.live {
		r.RemoveClient(p)
	}
	p.live = nil
	p.w.Release()
}

func (s *simulation) report(d time.Duration) *Report {
	r := s.stats
	r.Duration = d
	r.Resources = s.cache.Len()
	r.Size = s.cache.Size()
	r.LiveSize = s.cache.LiveSize()
	r.DeadSize = s.cache.DeadSize()
	r.Capacity = s.cache.Capacity()
	r.Statistics = s.cache.Statistics()
	return &r
}
