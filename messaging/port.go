package messaging

import (
	"github.com/pkg/errors"

	"github.com/skipor/rescache/runloop"
)

// ErrDataClone is returned when message or transferred ports can't be cloned:
// port list contains nil, neutered or duplicated port, or source port itself.
var ErrDataClone = errors.New("data clone error")

// Context is execution context ports live in.
type Context interface {
	runloop.Context
	MessagePorts() *Ports
	IsDocument() bool
}

type MessageEvent struct {
	Data  *Value
	Ports []*Port
}

type PortState int

const (
	Entangled PortState = iota
	Neutered
	Closed
)

func (s PortState) String() string {
	switch s {
	case Entangled:
		return "entangled"
	case Neutered:
		return "neutered"
	case Closed:
		return "closed"
	}
	return "PortState(?)"
}

// Port is owned by its context thread. All methods should be called on it.
type Port struct {
	// ctx is nil after disentangle or context destruction.
	ctx       Context
	channel   *Channel
	started   bool
	closed    bool
	onMessage func(MessageEvent)
}

// NewPort creates not entangled port in context. Neutered until Entangle.
func NewPort(ctx Context) *Port {
	p := &Port{ctx: ctx}
	ctx.MessagePorts().created(p)
	return p
}

func (p *Port) Context() Context { return p.ctx }

func (p *Port) State() PortState {
	switch {
	case p.closed:
		return Closed
	case p.IsNeutered():
		return Neutered
	}
	return Entangled
}

func (p *Port) IsNeutered() bool  { return p.channel == nil }
func (p *Port) IsEntangled() bool { return !p.closed && !p.IsNeutered() }

func (p *Port) Entangle(ch *Channel) {
	if p.channel != nil {
		panic("port is already entangled")
	}
	if p.ctx == nil {
		panic("port has no context")
	}
	if ch.EntangleIfOpen(p) {
		p.channel = ch
	}
}

// PostMessage sends message with transferred ports to the remote side.
// Message to not entangled port is silently dropped.
// Transfer of port itself or its remote peer fails with ErrDataClone, and
// nothing is disentangled in that case.
func (p *Port) PostMessage(v *Value, ports []*Port) error {
	if !p.IsEntangled() {
		return nil
	}
	for _, dp := range ports {
		if dp == p || p.channel.IsConnectedTo(dp) {
			return errors.WithStack(ErrDataClone)
		}
	}
	channels, err := DisentanglePorts(ports)
	if err != nil {
		return err
	}
	p.channel.PostMessageToRemote(v, channels)
	return nil
}

// Disentangle returns channel endpoint for transfer. Port becomes neutered forever.
func (p *Port) Disentangle() *Channel {
	if p.channel == nil {
		panic("disentangle of neutered port")
	}
	p.channel.Disentangle()
	p.ctx.MessagePorts().destroyed(p)
	p.ctx = nil
	ch := p.channel
	p.channel = nil
	return ch
}

func (p *Port) Start() {
	if !p.IsEntangled() || p.started {
		return
	}
	p.started = true
	p.ctx.MessagePorts().ProcessMessagePortMessagesSoon()
}

func (p *Port) Close() {
	if p.IsEntangled() {
		p.channel.Close()
	}
	p.closed = true
}

// SetOnMessage sets message listener and implicitly starts port.
func (p *Port) SetOnMessage(fn func(MessageEvent)) {
	p.onMessage = fn
	if fn != nil {
		p.Start()
	}
}

// DispatchMessages delivers all available messages. Messages received,
// while worker context is closing, are dropped.
func (p *Port) DispatchMessages() {
	for p.channel != nil && p.ctx != nil {
		m, ok := p.channel.tryGetMessageFromRemote()
		if !ok {
			return
		}
		if p.ctx.IsClosing() {
			return
		}
		ev := MessageEvent{Data: m.value, Ports: EntanglePorts(p.ctx, m.channels)}
		if p.onMessage != nil {
			p.onMessage(ev)
		}
	}
}

// HasPendingActivity reports that port may still receive messages: started
// port has queued messages, or remote side lives in other context.
func (p *Port) HasPendingActivity() bool {
	if p.started && p.channel != nil && p.channel.HasPendingActivity() {
		return true
	}
	return p.IsEntangled() && p.channel.LocallyEntangledPort(p.ctx) == nil
}

// messageAvailable is called on sender thread, under sender channel lock.
func (p *Port) messageAvailable() {
	if p.ctx != nil {
		p.ctx.MessagePorts().ProcessMessagePortMessagesSoon()
	}
}

func (p *Port) contextDestroyed() {
	// Remote side should not notify port after its context is gone.
	if p.channel != nil {
		p.channel.Disentangle()
	}
	p.ctx = nil
}

// DisentanglePorts validates all ports first and only then disentangles them.
// Nil, neutered or duplicated port fails with ErrDataClone. Closed port is transferred
// and arrives neutered.
func DisentanglePorts(ports []*Port) ([]*Channel, error) {
	if len(ports) == 0 {
		return nil, nil
	}
	seen := make(map[*Port]struct{}, len(ports))
	for _, p := range ports {
		if p == nil || p.IsNeutered() {
			return nil, errors.WithStack(ErrDataClone)
		}
		if _, ok := seen[p]; ok {
			return nil, errors.WithStack(ErrDataClone)
		}
		seen[p] = struct{}{}
	}
	channels := make([]*Channel, len(ports))
	for i, p := range ports {
		channels[i] = p.Disentangle()
	}
	return channels, nil
}

// EntanglePorts creates ports in ctx for received channels.
func EntanglePorts(ctx Context, channels []*Channel) []*Port {
	if len(channels) == 0 {
		return nil
	}
	ports := make([]*Port, len(channels))
	for i, ch := range channels {
		ports[i] = NewPort(ctx)
		ports[i].Entangle(ch)
	}
	return ports
}
