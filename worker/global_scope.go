package worker

import (
	"context"

	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/messaging"
	"github.com/skipor/rescache/runloop"
)

// GlobalScope is worker thread context. Except PostTask, PostTaskToLoader and Context
// methods should be called on worker thread only.
type GlobalScope struct {
	log    log.Logger
	thread *Thread
	ports  *messaging.Ports
	ctx    context.Context
	cancel context.CancelFunc

	closing              bool
	onMessage            func(messaging.MessageEvent)
	onNetworkStateChange func(online bool)
}

var _ Context = (*GlobalScope)(nil)
var _ cache.WorkerContext = (*GlobalScope)(nil)

func newGlobalScope(t *Thread) *GlobalScope {
	s := &GlobalScope{
		log:    t.log.WithFields(log.Fields{"context": "worker"}),
		thread: t,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.ports = messaging.NewPorts(s)
	return s
}

func (s *GlobalScope) URL() string { return s.thread.url }

// Context is cancelled when worker thread is asked to stop. Long running script should check it.
func (s *GlobalScope) Context() context.Context { return s.ctx }

func (s *GlobalScope) PostTask(t runloop.Task)        { s.thread.loop.PostTask(t) }
func (s *GlobalScope) IsClosing() bool                { return s.closing }
func (s *GlobalScope) MessagePorts() *messaging.Ports { return s.ports }
func (s *GlobalScope) IsDocument() bool               { return false }

func (s *GlobalScope) PostTaskToLoader(t runloop.Task) {
	s.thread.loaderProxy.PostTaskToLoader(t)
}

// Close lets current script finish, but after that only cleanup tasks are performed.
// Document is notified and stops the thread.
func (s *GlobalScope) Close() {
	if s.closing {
		return
	}
	s.closing = true
	s.PostTask(runloop.NewCleanupTask(scopeCloseTask{}))
}

// PostMessage sends message to worker object transferring ports.
func (s *GlobalScope) PostMessage(v *messaging.Value, ports []*messaging.Port) error {
	channels, err := messaging.DisentanglePorts(ports)
	if err != nil {
		return err
	}
	s.thread.objectProxy.PostMessageToWorkerObject(v, channels)
	return nil
}

func (s *GlobalScope) ReportException(e ErrorEvent) {
	s.log.Debugf("Uncaught exception: %s", e)
	s.thread.objectProxy.PostExceptionToWorkerObject(e)
}

func (s *GlobalScope) AddConsoleMessage(m ConsoleMessage) {
	s.log.Debugf("Console: %s", m)
	s.thread.objectProxy.PostConsoleMessageToWorkerObject(m)
}

func (s *GlobalScope) SetOnMessage(fn func(messaging.MessageEvent)) { s.onMessage = fn }

func (s *GlobalScope) SetOnNetworkStateChange(fn func(online bool)) { s.onNetworkStateChange = fn }

// HasPendingActivity reports that scope still has active ports.
func (s *GlobalScope) HasPendingActivity() bool {
	return s.ports.HasPendingActivity()
}

func (s *GlobalScope) destroy() {
	s.cancel()
	s.ports.ContextDestroyed()
	s.thread.objectProxy.WorkerGlobalScopeDestroyed()
}

// Tasks performed on worker thread.

type messageToScopeTask struct {
	value    *messaging.Value
	channels []*messaging.Channel
}

func (t messageToScopeTask) Perform(ctx runloop.Context) {
	s := ctx.(*GlobalScope)
	ports := messaging.EntanglePorts(s, t.channels)
	if s.onMessage != nil {
		s.onMessage(messaging.MessageEvent{Data: t.value, Ports: ports})
	}
	s.thread.objectProxy.ConfirmMessageFromWorkerObject(s.HasPendingActivity())
}

type networkStateTask struct {
	online bool
}

func (t networkStateTask) Perform(ctx runloop.Context) {
	s := ctx.(*GlobalScope)
	if s.onNetworkStateChange != nil {
		s.onNetworkStateChange(t.online)
	}
}

type scopeCloseTask struct{}

func (scopeCloseTask) Perform(ctx runloop.Context) {
	ctx.(*GlobalScope).thread.objectProxy.WorkerGlobalScopeClosed()
}
