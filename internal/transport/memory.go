package transport

import (
	"sync"

	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/protocol/wire"
)

// memoryLink delivers to an in-process peer adapter, stamping the sender's id
// and origin the way a browser stamps event.source and event.origin.
type memoryLink struct {
	from *Adapter
	to   *Adapter

	mu     sync.Mutex
	closed bool
}

func (l *memoryLink) ID() behavior.ContextID { return l.to.Self() }

func (l *memoryLink) Origin() string { return l.to.Origin() }

func (l *memoryLink) Send(m wire.Message) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLinkClosed
	}
	l.to.Deliver(Inbound{From: l.from.Self(), Origin: l.from.Origin(), Payload: m})
	return nil
}

func (l *memoryLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}
	l.closed = true
	return nil
}

// Connect embeds child under parent in-process. The returned detach func
// removes both directions.
func Connect(parent, child *Adapter) (detach func()) {
	down := &memoryLink{from: parent, to: child}
	up := &memoryLink{from: child, to: parent}
	parent.AddChild(down)
	child.SetParent(up)
	return func() {
		parent.mu.Lock()
		parent.removeChildLocked(child.Self(), down)
		parent.mu.Unlock()
		child.ClearParent(up)
		_ = down.Close()
		_ = up.Close()
	}
}
