package worker

import (
	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/messaging"
	"github.com/skipor/rescache/runloop"
)

// Document is main thread context. It owns memory cache and is loader
// context of all workers it creates. Goroutine that calls Run becomes main thread:
// cache and workers objects should be used only from tasks performed there.
type Document struct {
	log     log.Logger
	loop    *runloop.Loop
	ports   *messaging.Ports
	cache   *cache.MemoryCache
	console Console
}

var _ Context = (*Document)(nil)
var _ cache.Owner = (*Document)(nil)

// NewDocument creates document with new memory cache. Cache prune tasks are posted to document.
func NewDocument(l log.Logger, conf cache.Config) *Document {
	d := &Document{
		log:     l,
		loop:    runloop.NewLoop(),
		console: logConsole{l},
	}
	d.ports = messaging.NewPorts(d)
	conf.Owner = d
	d.cache = cache.New(l.WithFields(log.Fields{"context": "cache"}), conf)
	return d
}

func (d *Document) PostTask(t runloop.Task)         { d.loop.PostTask(t) }
func (d *Document) IsClosing() bool                 { return false }
func (d *Document) MessagePorts() *messaging.Ports  { return d.ports }
func (d *Document) IsDocument() bool                { return true }
func (d *Document) MemoryCache() *cache.MemoryCache { return d.cache }
func (d *Document) Log() log.Logger                 { return d.log }

func (d *Document) SetConsole(c Console) { d.console = c }

func (d *Document) ReportException(e ErrorEvent)       { d.console.ReportException(e) }
func (d *Document) AddConsoleMessage(m ConsoleMessage) { d.console.AddConsoleMessage(m) }

// Run performs tasks until Close. Ports of document are detached after that.
func (d *Document) Run() {
	d.loop.Run(d)
	d.ports.ContextDestroyed()
}

// RunPending performs already posted tasks on calling goroutine.
func (d *Document) RunPending() int { return d.loop.RunPending(d) }

// Close stops Run. Safe to call from any goroutine.
func (d *Document) Close() { d.loop.Terminate() }
