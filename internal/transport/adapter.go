// Package transport carries behavior relay messages between window contexts.
//
// Ownership boundary:
// - the parent link and the ordered child links of one context
// - origin filtering of inbound messages before they are decoded
// - mapping inbound message kinds onto propagation flags
//
// The Adapter is the propagation.Relay of its context.
package transport

import (
	"errors"
	"sync"

	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/observability"
	"github.com/danmuck/globalbehavior/internal/origin"
	"github.com/danmuck/globalbehavior/internal/propagation"
	"github.com/danmuck/globalbehavior/internal/protocol/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrLinkClosed = errors.New("transport: link closed")

// Link is one direction-agnostic connection to a neighbouring context.
type Link interface {
	// ID is the identity of the context on the far end.
	ID() behavior.ContextID
	Origin() string
	Send(m wire.Message) error
	Close() error
}

// Inbound is a message received from a neighbour, still undecoded.
type Inbound struct {
	From    behavior.ContextID
	Origin  string
	Payload wire.Payload
}

// Propagator runs the propagation protocol for decoded inbound messages.
type Propagator interface {
	PropagateReference(ref behavior.Reference, flags propagation.Flags) propagation.Report
}

// Executor serialises inbound handling onto the owning context's loop.
type Executor interface {
	Post(task func())
}

type Adapter struct {
	self   behavior.ContextID
	origin string
	label  string
	filter *origin.Filter

	mu         sync.Mutex
	propagator Propagator
	exec       Executor
	parent     Link
	children   map[behavior.ContextID]Link
	order      []behavior.ContextID

	log zerolog.Logger
}

// NewAdapter builds the relay for context self. A nil filter accepts every origin.
func NewAdapter(self behavior.ContextID, ownOrigin string, filter *origin.Filter) *Adapter {
	if filter == nil {
		filter = origin.NewFilter()
	}
	return &Adapter{
		self:     self,
		origin:   ownOrigin,
		label:    self.Short(),
		filter:   filter,
		children: make(map[behavior.ContextID]Link),
		log:      log.With().Str("component", "transport").Str("context", self.Short()).Logger(),
	}
}

func (a *Adapter) Self() behavior.ContextID { return a.self }

func (a *Adapter) Origin() string { return a.origin }

func (a *Adapter) Filter() *origin.Filter { return a.filter }

func (a *Adapter) SetPropagator(p Propagator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.propagator = p
}

// SetExecutor routes Deliver through exec. A nil exec handles inbound messages inline.
func (a *Adapter) SetExecutor(exec Executor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exec = exec
}

// SetParent attaches the parent link, closing any previous one.
func (a *Adapter) SetParent(l Link) {
	a.mu.Lock()
	prev := a.parent
	a.parent = l
	a.mu.Unlock()
	if prev != nil && prev != l {
		_ = prev.Close()
	}
	a.log.Info().Str("parent", l.ID().Short()).Msg("transport.Adapter parent attached")
}

// ClearParent detaches l if it is still the parent.
func (a *Adapter) ClearParent(l Link) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.parent == nil || a.parent != l {
		return false
	}
	a.parent = nil
	return true
}

func (a *Adapter) HasParent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.parent != nil
}

func (a *Adapter) Parent() (Link, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.parent, a.parent != nil
}

// AddChild appends l to the child set. A link reusing a known id replaces it in place.
func (a *Adapter) AddChild(l Link) {
	a.mu.Lock()
	prev, exists := a.children[l.ID()]
	a.children[l.ID()] = l
	if !exists {
		a.order = append(a.order, l.ID())
	}
	a.mu.Unlock()
	if exists && prev != l {
		_ = prev.Close()
	}
	a.log.Info().Str("child", l.ID().Short()).Msg("transport.Adapter child attached")
}

func (a *Adapter) removeChildLocked(id behavior.ContextID, only Link) bool {
	l, ok := a.children[id]
	if !ok || (only != nil && l != only) {
		return false
	}
	delete(a.children, id)
	for i, cid := range a.order {
		if cid == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

// Children returns child ids in attach order.
func (a *Adapter) Children() []behavior.ContextID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]behavior.ContextID, len(a.order))
	copy(out, a.order)
	return out
}

// RelayUp sends a bubble-up message to the parent.
func (a *Adapter) RelayUp(name string) bool {
	parent, ok := a.Parent()
	if !ok {
		return false
	}
	if err := parent.Send(wire.BubbleUp(name)); err != nil {
		a.log.Warn().Err(err).Str("parent", parent.ID().Short()).Msg("transport.Adapter relay up failed, dropping parent")
		if a.ClearParent(parent) {
			_ = parent.Close()
		}
		return false
	}
	observability.RecordRelay(a.label, observability.DirectionUp, 1)
	return true
}

// RelayDown sends a bubble-down message to every child except avoid.
func (a *Adapter) RelayDown(name string, avoid behavior.ContextID) int {
	a.mu.Lock()
	targets := make([]Link, 0, len(a.order))
	for _, id := range a.order {
		if id == avoid {
			continue
		}
		targets = append(targets, a.children[id])
	}
	a.mu.Unlock()

	sent := 0
	msg := wire.BubbleDown(name)
	for _, l := range targets {
		if err := l.Send(msg); err != nil {
			a.log.Warn().Err(err).Str("child", l.ID().Short()).Msg("transport.Adapter relay down failed, dropping child")
			a.mu.Lock()
			dropped := a.removeChildLocked(l.ID(), l)
			a.mu.Unlock()
			if dropped {
				_ = l.Close()
			}
			continue
		}
		sent++
	}
	observability.RecordRelay(a.label, observability.DirectionDown, sent)
	return sent
}

// Deliver hands in to the executor, or handles it inline without one.
func (a *Adapter) Deliver(in Inbound) {
	a.mu.Lock()
	exec := a.exec
	a.mu.Unlock()
	if exec == nil {
		a.HandleInbound(in)
		return
	}
	exec.Post(func() { a.HandleInbound(in) })
}

// HandleInbound filters, decodes and propagates one inbound message. Blocked and
// malformed messages are dropped.
func (a *Adapter) HandleInbound(in Inbound) {
	if !a.filter.Check(in.Origin) {
		observability.RecordInbound(a.label, observability.InboundBlocked)
		a.log.Info().Str("origin", in.Origin).Str("from", in.From.Short()).Msg("transport.Adapter blocked message from origin")
		return
	}
	if in.Payload == nil {
		observability.RecordInbound(a.label, observability.InboundMalformed)
		return
	}
	msg, err := in.Payload.Decode()
	if err != nil {
		observability.RecordInbound(a.label, observability.InboundMalformed)
		a.log.Debug().Err(err).Str("from", in.From.Short()).Msg("transport.Adapter ignored message")
		return
	}
	observability.RecordInbound(a.label, observability.InboundAccepted)

	a.mu.Lock()
	p := a.propagator
	a.mu.Unlock()
	if p == nil {
		return
	}
	ref := behavior.ParseReference(msg.BehaviorName)
	switch msg.Kind {
	case wire.KindBubbleUp:
		p.PropagateReference(ref, propagation.Flags{BubbleUp: true, ChildToAvoid: in.From})
	case wire.KindBubbleDown:
		p.PropagateReference(ref, propagation.Flags{BubbleDown: true})
	}
}

// Close closes every link.
func (a *Adapter) Close() error {
	a.mu.Lock()
	links := make([]Link, 0, len(a.children)+1)
	if a.parent != nil {
		links = append(links, a.parent)
	}
	for _, id := range a.order {
		links = append(links, a.children[id])
	}
	a.parent = nil
	a.children = make(map[behavior.ContextID]Link)
	a.order = nil
	a.mu.Unlock()

	var errs []error
	for _, l := range links {
		if err := l.Close(); err != nil && !errors.Is(err, ErrLinkClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
