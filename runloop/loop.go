package runloop

import "sync"

type WaitMode int

const (
	WaitForMessage WaitMode = iota
	DontWaitForMessage
)

type WaitResult int

const (
	MessageReceived WaitResult = iota
	MessageQueueTerminated
	MessageQueueEmpty
)

func (r WaitResult) String() string {
	switch r {
	case MessageReceived:
		return "MessageReceived"
	case MessageQueueTerminated:
		return "MessageQueueTerminated"
	case MessageQueueEmpty:
		return "MessageQueueEmpty"
	}
	return "WaitResult(?)"
}

// Loop is FIFO task queue. Tasks can be posted from any goroutine,
// but Run* methods should be called only on thread that owns the loop.
type Loop struct {
	// mu protects fields bellow.
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	killed bool
}

func NewLoop() *Loop {
	l := &Loop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Loop) PostTask(t Task) {
	l.append(t, false)
}

func (l *Loop) PostTaskForMode(t Task, mode string) {
	t.Mode = mode
	l.append(t, false)
}

// PostTaskAndTerminate appends task and terminates loop atomically.
// Task will be performed only if it is cleanup task.
func (l *Loop) PostTaskAndTerminate(t Task) {
	l.append(t, true)
}

// Terminate makes running and future Run* calls return MessageQueueTerminated.
// Tasks still can be posted after termination: they are drained by Run.
func (l *Loop) Terminate() {
	l.mu.Lock()
	l.killed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *Loop) Terminated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.killed
}

// Len returns number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) append(t Task, kill bool) {
	if t.Payload == nil {
		panic("nil task payload")
	}
	l.mu.Lock()
	l.queue = append(l.queue, t)
	if kill {
		l.killed = true
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Run performs tasks until loop termination, then drains queue performing cleanup tasks only.
func (l *Loop) Run(ctx Context) {
	for l.RunInMode(ctx, DefaultMode, WaitForMessage) != MessageQueueTerminated {
	}
	l.runCleanupTasks(ctx)
}

// RunPending performs already queued tasks without waiting. Returns number of dequeued tasks.
func (l *Loop) RunPending(ctx Context) (n int) {
	for l.RunInMode(ctx, DefaultMode, DontWaitForMessage) == MessageReceived {
		n++
	}
	return
}

// RunInMode dequeues first task acceptable in mode and performs it.
// Loop running in DefaultMode accepts any task, loop running in other mode
// accepts only tasks posted for that mode. Tasks of other modes stay in queue.
func (l *Loop) RunInMode(ctx Context, mode string, wait WaitMode) WaitResult {
	t, res := l.take(mode, wait)
	if res != MessageReceived {
		return res
	}
	l.perform(ctx, t)
	return MessageReceived
}

func (l *Loop) take(mode string, wait WaitMode) (Task, WaitResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if l.killed {
			return Task{}, MessageQueueTerminated
		}
		for i := range l.queue {
			if mode == DefaultMode || l.queue[i].Mode == mode {
				return l.removeAt(i), MessageReceived
			}
		}
		if wait == DontWaitForMessage {
			return Task{}, MessageQueueEmpty
		}
		l.cond.Wait()
	}
}

// removeAt requires lock be acquired.
func (l *Loop) removeAt(i int) Task {
	t := l.queue[i]
	copy(l.queue[i:], l.queue[i+1:])
	l.queue[len(l.queue)-1] = Task{} // Release payload.
	l.queue = l.queue[:len(l.queue)-1]
	return t
}

func (l *Loop) perform(ctx Context, t Task) {
	if (!ctx.IsClosing() && !l.Terminated()) || t.Cleanup {
		t.Payload.Perform(ctx)
	}
}

// runCleanupTasks ignores termination. Tasks posted by cleanup tasks are drained too.
func (l *Loop) runCleanupTasks(ctx Context) {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		t := l.removeAt(0)
		l.mu.Unlock()
		l.perform(ctx, t)
	}
}
