package messaging

import "github.com/skipor/rescache/runloop"

// Ports is per context registry of message ports. It is part of every context.
// Only ProcessMessagePortMessagesSoon is safe to call from other threads.
type Ports struct {
	ctx   Context
	ports []*Port
}

func NewPorts(ctx Context) *Ports {
	return &Ports{ctx: ctx}
}

func (ps *Ports) Len() int { return len(ps.ports) }

func (ps *Ports) created(p *Port) {
	ps.ports = append(ps.ports, p)
}

func (ps *Ports) destroyed(p *Port) {
	for i, pp := range ps.ports {
		if pp == p {
			copy(ps.ports[i:], ps.ports[i+1:])
			ps.ports[len(ps.ports)-1] = nil
			ps.ports = ps.ports[:len(ps.ports)-1]
			return
		}
	}
}

func (ps *Ports) contains(p *Port) bool {
	for _, pp := range ps.ports {
		if pp == p {
			return true
		}
	}
	return false
}

func (ps *Ports) ProcessMessagePortMessagesSoon() {
	ps.ctx.PostTask(runloop.NewTask(dispatchPortEvents{}))
}

// DispatchMessagePortEvents dispatches messages of started ports.
// Ports created or destroyed by listeners are handled correctly.
func (ps *Ports) DispatchMessagePortEvents() {
	frozen := append([]*Port(nil), ps.ports...)
	for _, p := range frozen {
		if ps.contains(p) && p.started {
			p.DispatchMessages()
		}
	}
}

func (ps *Ports) HasPendingActivity() bool {
	for _, p := range ps.ports {
		if p.HasPendingActivity() {
			return true
		}
	}
	return false
}

func (ps *Ports) CloseMessagePorts() {
	frozen := append([]*Port(nil), ps.ports...)
	for _, p := range frozen {
		p.Close()
	}
}

// ContextDestroyed detaches all ports from destroyed context.
func (ps *Ports) ContextDestroyed() {
	for _, p := range ps.ports {
		p.contextDestroyed()
	}
	ps.ports = nil
}

type dispatchPortEvents struct{}

func (dispatchPortEvents) Perform(ctx runloop.Context) {
	ctx.(Context).MessagePorts().DispatchMessagePortEvents()
}
