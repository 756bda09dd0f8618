package messaging

import "sync"

type message struct {
	value    *Value
	channels []*Channel
}

// queue is thread safe message FIFO shared by two channel endpoints:
// it is outgoing for one endpoint and incoming for another.
type queue struct {
	mu       sync.Mutex
	messages []message
}

// appendAndCheckEmpty returns true if queue was empty before append.
func (q *queue) appendAndCheckEmpty(m message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	wasEmpty := len(q.messages) == 0
	q.messages = append(q.messages, m)
	return wasEmpty
}

func (q *queue) tryGet() (m message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return
	}
	m = q.messages[0]
	q.messages[0] = message{}
	q.messages = q.messages[1:]
	return m, true
}

func (q *queue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages) == 0
}

// Channel is one endpoint of entangled pair. Endpoint is owned by at most one port,
// but may be accessed from remote endpoint thread, so all state is guarded by mu.
// Never call remote endpoint while holding own lock.
type Channel struct {
	mu       sync.Mutex
	incoming *queue
	// Fields bellow are zeroed on close.
	outgoing  *queue
	entangled *Channel
	// remotePort is port that owns entangled endpoint. Set by remote side.
	remotePort *Port
}

// NewChannel creates entangled endpoint pair and entangles ports with them.
func NewChannel(p1, p2 *Port) {
	q1, q2 := &queue{}, &queue{}
	c1 := &Channel{incoming: q1, outgoing: q2}
	c2 := &Channel{incoming: q2, outgoing: q1}
	c1.entangled, c2.entangled = c2, c1
	p1.Entangle(c1)
	p2.Entangle(c2)
}

// NewMessageChannel creates two ports in contexts and entangles them.
func NewMessageChannel(ctx1, ctx2 Context) (p1, p2 *Port) {
	p1, p2 = NewPort(ctx1), NewPort(ctx2)
	NewChannel(p1, p2)
	return
}

func (c *Channel) entangledChannel() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entangled
}

func (c *Channel) setRemotePort(p *Port) {
	c.mu.Lock()
	c.remotePort = p
	c.mu.Unlock()
}

// EntangleIfOpen makes port the remote port of entangled endpoint.
// Returns false, if channel was closed.
func (c *Channel) EntangleIfOpen(p *Port) bool {
	remote := c.entangledChannel()
	if remote == nil {
		return false
	}
	remote.setRemotePort(p)
	return true
}

// Disentangle detaches owner port from channel. Queued messages stay in channel
// and will be delivered to the next owner.
func (c *Channel) Disentangle() {
	if remote := c.entangledChannel(); remote != nil {
		remote.setRemotePort(nil)
	}
}

// PostMessageToRemote enqueues message. If remote queue was empty, remote port
// is notified, so its context schedules message dispatch.
func (c *Channel) PostMessageToRemote(value *Value, channels []*Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outgoing == nil {
		return
	}
	wasEmpty := c.outgoing.appendAndCheckEmpty(message{value, channels})
	if wasEmpty && c.remotePort != nil {
		c.remotePort.messageAvailable()
	}
}

func (c *Channel) tryGetMessageFromRemote() (message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incoming.tryGet()
}

// IsConnectedTo reports that p owns entangled endpoint.
func (c *Channel) IsConnectedTo(p *Port) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remotePort == p
}

// HasPendingActivity reports that there are undelivered incoming messages.
func (c *Channel) HasPendingActivity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.incoming.empty()
}

// LocallyEntangledPort returns remote port, if it lives in same context, or both
// contexts are documents. Otherwise returns nil.
func (c *Channel) LocallyEntangledPort(ctx Context) *Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remotePort == nil {
		return nil
	}
	// Remote port context can't change, while remotePort is set.
	remoteCtx := c.remotePort.ctx
	if remoteCtx == ctx || (remoteCtx != nil && remoteCtx.IsDocument() && ctx.IsDocument()) {
		return c.remotePort
	}
	return nil
}

// Close closes both endpoints. Queued incoming messages can still be read.
func (c *Channel) Close() {
	c.mu.Lock()
	remote := c.entangled
	c.entangled = nil
	c.outgoing = nil
	c.remotePort = nil
	c.mu.Unlock()
	if remote != nil {
		remote.Close()
	}
}
