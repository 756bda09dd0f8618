// Package runloop contains per-thread task queue that execution context
// (main document or worker global scope) drains on its own goroutine.
// All cross-thread effects are expressed as tasks posted to the loop of the
// thread that owns the affected state.
package runloop

import "fmt"

// DefaultMode tasks are run by normal loop iteration.
// Loop running in DefaultMode accepts tasks of any mode.
const DefaultMode = ""

// Payload is task body. Implementations should be small value types
// that carry copied or transferred data only: payload is created on one thread
// and performed on another.
type Payload interface {
	Perform(ctx Context)
}

type Task struct {
	Mode string
	// Cleanup tasks are performed even when context is closing or loop is terminated.
	Cleanup bool
	Payload Payload
}

func NewTask(p Payload) Task        { return Task{Payload: p} }
func NewCleanupTask(p Payload) Task { return Task{Cleanup: true, Payload: p} }

func (t Task) String() string {
	return fmt.Sprintf("{mode:%q cleanup:%v payload:%T}", t.Mode, t.Cleanup, t.Payload)
}

// Context is script execution context tasks are performed in.
type Context interface {
	// PostTask is safe to call from any goroutine.
	PostTask(t Task)
	// IsClosing reports that only cleanup tasks should be performed.
	// Called on context thread only.
	IsClosing() bool
}
