package cache

import (
	"fmt"

	"github.com/skipor/rescache/runloop"
)

// Owner is context that owns memory cache. It is loader (main) thread context.
type Owner interface {
	MemoryCache() *MemoryCache
}

// WorkerContext is context that can't access cache directly, and posts tasks to loader thread instead.
type WorkerContext interface {
	PostTaskToLoader(t runloop.Task)
}

// RemoveRequestFromSessionCaches removes request from all session maps.
// Called from worker context, it posts removal to loader thread and returns immediately.
func RemoveRequestFromSessionCaches(ctx runloop.Context, req Request) {
	switch ctx := ctx.(type) {
	case WorkerContext:
		ctx.PostTaskToLoader(runloop.NewTask(removeRequestTask{req}))
	case Owner:
		ctx.MemoryCache().RemoveRequest(req)
	default:
		panic(fmt.Sprintf("context %T neither owns cache, nor can post to loader", ctx))
	}
}

// removeRequestTask carries request copy to loader thread.
type removeRequestTask struct {
	req Request
}

func (t removeRequestTask) Perform(ctx runloop.Context) {
	RemoveRequestFromSessionCaches(ctx, t.req)
}
