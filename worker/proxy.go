package worker

import (
	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/messaging"
	"github.com/skipor/rescache/runloop"
)

// ObjectProxy is used by worker thread to report to worker object.
// Methods are called on worker thread and post tasks to document.
type ObjectProxy interface {
	PostMessageToWorkerObject(v *messaging.Value, channels []*messaging.Channel)
	ConfirmMessageFromWorkerObject(hasPendingActivity bool)
	ReportPendingActivity(hasPendingActivity bool)
	PostExceptionToWorkerObject(e ErrorEvent)
	PostConsoleMessageToWorkerObject(m ConsoleMessage)
	WorkerGlobalScopeClosed()
	WorkerGlobalScopeDestroyed()
}

// LoaderProxy connects worker global scope and loader context.
type LoaderProxy interface {
	// PostTaskToLoader is called on worker thread.
	PostTaskToLoader(t runloop.Task)
	// PostTaskForModeToWorkerGlobalScope is called on loader thread.
	// Returns false, if worker is terminated and task was not posted.
	PostTaskForModeToWorkerGlobalScope(t runloop.Task, mode string) bool
}

// MessagingProxy is bridge between worker object on document thread and worker thread.
// All fields are owned by document thread. Worker thread only posts tasks to document,
// which access proxy when performed there.
//
// Proxy lives until both worker object is released and worker global scope is destroyed.
// Done is closed at that moment.
type MessagingProxy struct {
	log    log.Logger
	parent *Document

	workerObject                   *Worker
	started                        bool
	mayBeDestroyed                 bool
	destroyed                      bool
	unconfirmedMessageCount        int
	workerThreadHadPendingActivity bool
	askedToTerminate               bool
	thread                         *Thread
	// queuedEarlyTasks are posted to worker loop when thread is created.
	queuedEarlyTasks []runloop.Task
	done             chan struct{}
}

var _ ObjectProxy = (*MessagingProxy)(nil)
var _ LoaderProxy = (*MessagingProxy)(nil)

func newMessagingProxy(l log.Logger, w *Worker) *MessagingProxy {
	return &MessagingProxy{
		log:          l,
		parent:       w.doc,
		workerObject: w,
		done:         make(chan struct{}),
	}
}

// Done is closed when proxy is not needed by both sides any more.
func (p *MessagingProxy) Done() <-chan struct{} { return p.done }

func (p *MessagingProxy) StartWorkerGlobalScope(url string, script Script) {
	if p.started {
		panic("worker global scope is already started")
	}
	p.started = true
	t := NewThread(p.log, url, script, p, p)
	p.workerThreadCreated(t)
	t.Start()
}

func (p *MessagingProxy) workerThreadCreated(t *Thread) {
	p.thread = t
	if p.askedToTerminate {
		// Worker could be terminated before thread creation.
		t.Stop()
		return
	}
	if p.unconfirmedMessageCount != 0 {
		panic("messages confirmed before thread creation")
	}
	p.unconfirmedMessageCount = len(p.queuedEarlyTasks)
	// Worker initialization means pending activity.
	p.workerThreadHadPendingActivity = true
	tasks := p.queuedEarlyTasks
	p.queuedEarlyTasks = nil
	for _, task := range tasks {
		t.loop.PostTask(task)
	}
}

func (p *MessagingProxy) PostMessageToWorkerGlobalScope(v *messaging.Value, channels []*messaging.Channel) {
	if p.askedToTerminate {
		return
	}
	task := runloop.NewTask(messageToScopeTask{value: v, channels: channels})
	if p.thread == nil {
		p.queuedEarlyTasks = append(p.queuedEarlyTasks, task)
		return
	}
	p.unconfirmedMessageCount++
	p.thread.loop.PostTask(task)
}

func (p *MessagingProxy) NotifyNetworkStateChange(online bool) {
	if p.askedToTerminate || p.thread == nil {
		return
	}
	p.thread.loop.PostTask(runloop.NewTask(networkStateTask{online}))
}

func (p *MessagingProxy) PostMessageToWorkerObject(v *messaging.Value, channels []*messaging.Channel) {
	p.parent.PostTask(runloop.NewTask(messageToWorkerObjectTask{p, v, channels}))
}

func (p *MessagingProxy) PostTaskToLoader(t runloop.Task) {
	p.parent.PostTask(t)
}

func (p *MessagingProxy) PostTaskForModeToWorkerGlobalScope(t runloop.Task, mode string) bool {
	if p.askedToTerminate || p.thread == nil {
		return false
	}
	p.thread.loop.PostTaskForMode(t, mode)
	return true
}

func (p *MessagingProxy) PostExceptionToWorkerObject(e ErrorEvent) {
	p.parent.PostTask(runloop.NewTask(exceptionTask{p, e}))
}

func (p *MessagingProxy) PostConsoleMessageToWorkerObject(m ConsoleMessage) {
	p.parent.PostTask(runloop.NewTask(consoleMessageTask{p, m}))
}

func (p *MessagingProxy) ConfirmMessageFromWorkerObject(hasPendingActivity bool) {
	p.parent.PostTask(runloop.NewTask(pendingActivityTask{p, true, hasPendingActivity}))
}

func (p *MessagingProxy) ReportPendingActivity(hasPendingActivity bool) {
	p.parent.PostTask(runloop.NewTask(pendingActivityTask{p, false, hasPendingActivity}))
}

// WorkerObjectDestroyed is called on document thread, when worker object is released.
func (p *MessagingProxy) WorkerObjectDestroyed() {
	p.workerObject = nil
	p.parent.PostTask(runloop.NewTask(workerObjectDestroyedTask{p}))
}

func (p *MessagingProxy) WorkerGlobalScopeClosed() {
	p.parent.PostTask(runloop.NewTask(scopeClosedTask{p}))
}

func (p *MessagingProxy) WorkerGlobalScopeDestroyed() {
	p.parent.PostTask(runloop.NewTask(scopeDestroyedTask{p}))
}

// TerminateWorkerGlobalScope stops worker thread. Messages are not delivered after that.
func (p *MessagingProxy) TerminateWorkerGlobalScope() {
	if p.askedToTerminate {
		return
	}
	p.askedToTerminate = true
	p.log.Debug("Terminate worker global scope.")
	if p.thread != nil {
		p.thread.Stop()
	}
}

// HasPendingActivity reports that worker may still post messages to worker object.
func (p *MessagingProxy) HasPendingActivity() bool {
	return (p.unconfirmedMessageCount != 0 || p.workerThreadHadPendingActivity) && !p.askedToTerminate
}

func (p *MessagingProxy) AskedToTerminate() bool { return p.askedToTerminate }

func (p *MessagingProxy) reportPendingActivity(confirmingMessage, hasPendingActivity bool) {
	if confirmingMessage && !p.askedToTerminate {
		if p.unconfirmedMessageCount == 0 {
			panic("confirmation of not posted message")
		}
		p.unconfirmedMessageCount--
	}
	p.workerThreadHadPendingActivity = hasPendingActivity
}

// workerGlobalScopeDestroyed is the last event of worker thread.
func (p *MessagingProxy) workerGlobalScopeDestroyed() {
	p.askedToTerminate = true
	p.thread = nil
	if p.mayBeDestroyed && !p.destroyed {
		p.destroyed = true
		p.log.Debug("Messaging proxy destroyed.")
		close(p.done)
	}
}

// Tasks performed on document thread. They hold proxy, which is owned by document thread.

type messageToWorkerObjectTask struct {
	proxy    *MessagingProxy
	value    *messaging.Value
	channels []*messaging.Channel
}

func (t messageToWorkerObjectTask) Perform(ctx runloop.Context) {
	w := t.proxy.workerObject
	if w == nil || t.proxy.askedToTerminate {
		return
	}
	ports := messaging.EntanglePorts(ctx.(messaging.Context), t.channels)
	w.dispatchMessage(messaging.MessageEvent{Data: t.value, Ports: ports})
}

type exceptionTask struct {
	proxy *MessagingProxy
	event ErrorEvent
}

// Perform ignores termination: exceptions are reported even by terminated worker.
func (t exceptionTask) Perform(ctx runloop.Context) {
	w := t.proxy.workerObject
	if w == nil {
		return
	}
	if !w.dispatchError(t.event) {
		ctx.(Context).ReportException(t.event)
	}
}

type consoleMessageTask struct {
	proxy   *MessagingProxy
	message ConsoleMessage
}

func (t consoleMessageTask) Perform(ctx runloop.Context) {
	if t.proxy.askedToTerminate {
		return
	}
	ctx.(Context).AddConsoleMessage(t.message)
}

type pendingActivityTask struct {
	proxy              *MessagingProxy
	confirmingMessage  bool
	hasPendingActivity bool
}

func (t pendingActivityTask) Perform(runloop.Context) {
	t.proxy.reportPendingActivity(t.confirmingMessage, t.hasPendingActivity)
}

type workerObjectDestroyedTask struct {
	proxy *MessagingProxy
}

func (t workerObjectDestroyedTask) Perform(runloop.Context) {
	p := t.proxy
	p.mayBeDestroyed = true
	if p.thread != nil {
		p.TerminateWorkerGlobalScope()
	} else {
		p.workerGlobalScopeDestroyed()
	}
}

type scopeClosedTask struct {
	proxy *MessagingProxy
}

// Perform stops thread on request of closed worker global scope.
func (t scopeClosedTask) Perform(runloop.Context) {
	t.proxy.TerminateWorkerGlobalScope()
}

type scopeDestroyedTask struct {
	proxy *MessagingProxy
}

func (t scopeDestroyedTask) Perform(runloop.Context) {
	t.proxy.workerGlobalScopeDestroyed()
}
