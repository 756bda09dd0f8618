package worker

import (
	"sync/atomic"

	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/messaging"
)

var workerCounter int64

// Worker is document side object of dedicated worker. Methods should be called on document thread.
type Worker struct {
	id        int64
	doc       *Document
	proxy     *MessagingProxy
	onMessage func(messaging.MessageEvent)
	onError   func(ErrorEvent) bool
	released  bool
}

func New(doc *Document) *Worker {
	w := &Worker{
		id:  atomic.AddInt64(&workerCounter, 1),
		doc: doc,
	}
	w.proxy = newMessagingProxy(doc.log.WithFields(log.Fields{"worker": w.id}), w)
	return w
}

func (w *Worker) ID() int64              { return w.id }
func (w *Worker) Proxy() *MessagingProxy { return w.proxy }

// Start runs script on new worker thread. Messages posted before Start are delivered after script evaluation.
func (w *Worker) Start(url string, script Script) {
	w.proxy.StartWorkerGlobalScope(url, script)
}

// PostMessage transfers ports and sends message to worker global scope.
// Nothing is transferred, if ports can't be cloned.
func (w *Worker) PostMessage(v *messaging.Value, ports []*messaging.Port) error {
	channels, err := messaging.DisentanglePorts(ports)
	if err != nil {
		return err
	}
	w.proxy.PostMessageToWorkerGlobalScope(v, channels)
	return nil
}

func (w *Worker) Terminate() {
	w.proxy.TerminateWorkerGlobalScope()
}

// Release drops worker object. Worker thread is terminated, and proxy is destroyed after that.
func (w *Worker) Release() {
	if w.released {
		return
	}
	w.released = true
	w.onMessage, w.onError = nil, nil
	w.proxy.WorkerObjectDestroyed()
}

func (w *Worker) HasPendingActivity() bool {
	return w.proxy.HasPendingActivity()
}

func (w *Worker) SetOnMessage(fn func(messaging.MessageEvent)) { w.onMessage = fn }

// SetOnError sets error listener. Listener returns true, if error is handled.
// Not handled errors are reported to document.
func (w *Worker) SetOnError(fn func(ErrorEvent) (handled bool)) { w.onError = fn }

func (w *Worker) NotifyNetworkStateChange(online bool) {
	w.proxy.NotifyNetworkStateChange(online)
}

// Done is closed when worker thread finished and worker is released.
func (w *Worker) Done() <-chan struct{} { return w.proxy.Done() }

func (w *Worker) dispatchMessage(ev messaging.MessageEvent) {
	if w.onMessage != nil {
		w.onMessage(ev)
	}
}

func (w *Worker) dispatchError(e ErrorEvent) (handled bool) {
	if w.onError == nil {
		return false
	}
	return w.onError(e)
}
