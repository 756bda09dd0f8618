package worker

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/runloop"
)

// ErrSendFail is returned by synchronous loader call, when worker run loop is terminated before result arrived.
var ErrSendFail = errors.New("worker: send to loader failed")

// LoaderCall is performed on loader thread. Result is passed to worker thread,
// so it should not reference loader owned objects.
type LoaderCall interface {
	Call(loader *Document) interface{}
}

var bridgeModeCounter uint64

// CallOnLoader performs call on loader thread and waits for result. While waiting, worker loop
// performs only tasks of private mode, so other worker tasks are delayed until call returns.
func CallOnLoader(scope *GlobalScope, call LoaderCall) (interface{}, error) {
	mode := fmt.Sprintf("loaderBridgeMode%d", atomic.AddUint64(&bridgeModeCounter, 1))
	waiter := &bridgeWaiter{}
	scope.PostTaskToLoader(runloop.NewTask(loaderCallTask{
		call:        call,
		mode:        mode,
		waiter:      waiter,
		loaderProxy: scope.thread.loaderProxy,
	}))
	for !waiter.done {
		res := scope.thread.loop.RunInMode(scope, mode, runloop.WaitForMessage)
		if res == runloop.MessageQueueTerminated {
			return nil, errors.WithStack(ErrSendFail)
		}
	}
	return waiter.result, nil
}

// bridgeWaiter is accessed on worker thread only.
type bridgeWaiter struct {
	done   bool
	result interface{}
}

type loaderCallTask struct {
	call        LoaderCall
	mode        string
	waiter      *bridgeWaiter
	loaderProxy LoaderProxy
}

func (t loaderCallTask) Perform(ctx runloop.Context) {
	result := t.call.Call(ctx.(*Document))
	// Worker may be terminated already. Waiter will get ErrSendFail then.
	t.loaderProxy.PostTaskForModeToWorkerGlobalScope(runloop.NewCleanupTask(bridgeResultTask{t.waiter, result}), t.mode)
}

// bridgeResultTask is cleanup task, so result is delivered to closing scope too.
type bridgeResultTask struct {
	waiter *bridgeWaiter
	result interface{}
}

func (t bridgeResultTask) Perform(runloop.Context) {
	t.waiter.done = true
	t.waiter.result = t.result
}

// ResourceInfo is copy of cached resource state.
type ResourceInfo struct {
	URL         string
	Type        cache.Type
	Size        int64
	EncodedSize int64
	DecodedSize int64
	AccessCount uint32
	Live        bool
	StatusCode  int
	Header      http.Header
}

func resourceInfo(r *cache.Resource) ResourceInfo {
	return ResourceInfo{
		URL:         r.URL(),
		Type:        r.Type(),
		Size:        r.Size(),
		EncodedSize: r.EncodedSize(),
		DecodedSize: r.DecodedSize(),
		AccessCount: r.AccessCount(),
		Live:        r.HasClients(),
		StatusCode:  r.Response().StatusCode,
		Header:      r.Response().Header.Clone(),
	}
}

type lookupResourceCall struct {
	req     cache.Request
	session cache.SessionID
}

func (c lookupResourceCall) Call(loader *Document) interface{} {
	r := loader.MemoryCache().ResourceForRequest(c.req, c.session)
	if r == nil {
		return nil
	}
	return resourceInfo(r)
}

// LookupResource returns state of resource, cached for request in session. Called on worker thread.
func LookupResource(scope *GlobalScope, req cache.Request, session cache.SessionID) (info ResourceInfo, found bool, err error) {
	res, err := CallOnLoader(scope, lookupResourceCall{req, session})
	if err != nil {
		return ResourceInfo{}, false, err
	}
	if res == nil {
		return ResourceInfo{}, false, nil
	}
	return res.(ResourceInfo), true, nil
}
