package worker

import (
	"fmt"
	"sync"

	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/runloop"
)

// Script is worker script body. It is evaluated on worker thread before the run loop starts.
// Returned error or panic are reported as uncaught exception.
type Script func(scope *GlobalScope) error

// Thread is worker thread: goroutine that evaluates script and runs loop of worker global scope.
type Thread struct {
	log         log.Logger
	url         string
	script      Script
	loop        *runloop.Loop
	objectProxy ObjectProxy
	loaderProxy LoaderProxy
	done        chan struct{}

	// mu guards scope. It is nil before scope creation and after destruction.
	mu    sync.Mutex
	scope *GlobalScope
}

func NewThread(l log.Logger, url string, script Script, objectProxy ObjectProxy, loaderProxy LoaderProxy) *Thread {
	return &Thread{
		log:         l,
		url:         url,
		script:      script,
		loop:        runloop.NewLoop(),
		objectProxy: objectProxy,
		loaderProxy: loaderProxy,
		done:        make(chan struct{}),
	}
}

func (t *Thread) Loop() *runloop.Loop { return t.loop }

// Done is closed when thread goroutine exits.
func (t *Thread) Done() <-chan struct{} { return t.done }

func (t *Thread) Start() {
	go t.run()
}

func (t *Thread) run() {
	defer close(t.done)
	t.mu.Lock()
	scope := newGlobalScope(t)
	t.scope = scope
	// Thread could be stopped before scope existed. Nothing to stop in that case, so just skip script.
	forbidden := t.loop.Terminated()
	t.mu.Unlock()

	if !forbidden {
		t.evaluate(scope)
	}
	t.objectProxy.ReportPendingActivity(scope.HasPendingActivity())
	t.loop.Run(scope)

	t.mu.Lock()
	t.scope = nil
	t.mu.Unlock()
	scope.destroy()
	t.log.Debug("Worker thread finished.")
}

func (t *Thread) evaluate(scope *GlobalScope) {
	defer func() {
		if r := recover(); r != nil {
			scope.ReportException(t.exception(fmt.Sprintf("panic: %v", r)))
		}
	}()
	err := t.script(scope)
	if err != nil {
		t.log.Debugf("Script error: %+v", err)
		scope.ReportException(t.exception(err.Error()))
	}
}

func (t *Thread) exception(msg string) ErrorEvent {
	return ErrorEvent{Message: msg, URL: t.url}
}

// Stop terminates run loop. Already posted cleanup tasks and shutdown task are performed,
// other tasks are dropped. Safe to call from any goroutine.
func (t *Thread) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scope == nil {
		t.loop.Terminate()
		return
	}
	t.scope.cancel()
	t.loop.PostTaskAndTerminate(runloop.NewCleanupTask(shutdownTask{}))
}

// shutdownTask stops active objects of worker global scope.
type shutdownTask struct{}

func (shutdownTask) Perform(ctx runloop.Context) {
	scope := ctx.(*GlobalScope)
	scope.log.Debug("Shutdown worker global scope.")
	scope.ports.CloseMessagePorts()
	scope.onMessage = nil
	scope.onNetworkStateChange = nil
}
