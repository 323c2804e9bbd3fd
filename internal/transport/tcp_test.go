package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/propagation"
	"github.com/danmuck/globalbehavior/internal/protocol/wire"
	"github.com/danmuck/globalbehavior/internal/testutil/testlog"
)

type chanPropagator struct {
	calls chan propagateCall
}

func newChanPropagator() *chanPropagator {
	return &chanPropagator{calls: make(chan propagateCall, 16)}
}

func (p *chanPropagator) PropagateReference(ref behavior.Reference, flags propagation.Flags) propagation.Report {
	p.calls <- propagateCall{ref: ref, flags: flags}
	return propagation.Report{Name: ref.Name}
}

func (p *chanPropagator) next(t *testing.T) propagateCall {
	t.Helper()
	select {
	case c := <-p.calls:
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for propagation")
		return propagateCall{}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHelloRoundTrip(t *testing.T) {
	testlog.Start(t)
	id := behavior.NewContextID()
	var buf bytes.Buffer
	if err := WriteHello(&buf, Hello{ContextID: id.String(), Origin: "https://a.example"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	h, err := ReadHello(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if h.ContextID != id.String() || h.Origin != "https://a.example" {
		t.Fatalf("unexpected hello %+v", h)
	}
	if err := WriteHello(&buf, Hello{ContextID: "nope"}); !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello, got %v", err)
	}
	_, err = ReadHello(bufio.NewReader(bytes.NewBufferString(`{"type":"other"}` + "\n")))
	if !errors.Is(err, ErrInvalidHello) {
		t.Fatalf("expected ErrInvalidHello, got %v", err)
	}
}

func TestTCPParentChildRelay(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	parent := NewAdapter(behavior.NewContextID(), "https://top.example", nil)
	pp := newChanPropagator()
	parent.SetPropagator(pp)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(parent, DefaultConfig())
	go func() { _ = srv.Serve(ctx, ln) }()

	child := NewAdapter(behavior.NewContextID(), "https://frame.example", nil)
	cp := newChanPropagator()
	child.SetPropagator(cp)
	client, err := NewParentClient(child, ln.Addr().String(), DefaultConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	go func() { _ = client.Run(ctx) }()

	waitFor(t, func() bool { return child.HasParent() && len(parent.Children()) == 1 })
	if parent.Children()[0] != child.Self() {
		t.Fatalf("parent must know the child by its hello id")
	}

	if !child.RelayUp("pulse@doc") {
		t.Fatalf("relay up failed")
	}
	up := pp.next(t)
	if !up.flags.BubbleUp || up.flags.ChildToAvoid != child.Self() || up.ref.Name != "pulse" {
		t.Fatalf("unexpected bubble-up %+v", up)
	}

	if n := parent.RelayDown("", ""); n != 1 {
		t.Fatalf("expected one child relay, got %d", n)
	}
	down := cp.next(t)
	if !down.flags.BubbleDown || down.ref.Name != "" {
		t.Fatalf("unexpected bubble-down %+v", down)
	}

	cancel()
	waitFor(t, func() bool { return !child.HasParent() })
}

func TestParentClientGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := DefaultConfig()
	cfg.MaxConnectAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	client, err := NewParentClient(NewAdapter(behavior.NewContextID(), "", nil), addr, cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial failure")
	}
	if _, err := NewParentClient(NewAdapter(behavior.NewContextID(), "", nil), " ", cfg); !errors.Is(err, ErrParentAddressRequired) {
		t.Fatalf("expected ErrParentAddressRequired, got %v", err)
	}
}

func TestNextBackoffDelay(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	if d := NextBackoffDelay(cfg, 1, nil); d != 100*time.Millisecond {
		t.Fatalf("attempt 1 got %v", d)
	}
	if d := NextBackoffDelay(cfg, 2, nil); d != 200*time.Millisecond {
		t.Fatalf("attempt 2 got %v", d)
	}
	if d := NextBackoffDelay(cfg, 5, nil); d != 300*time.Millisecond {
		t.Fatalf("attempt 5 must clamp, got %v", d)
	}
	cfg.Jitter = true
	if d := NextBackoffDelay(cfg, 2, nil); d != 100*time.Millisecond {
		t.Fatalf("jitter without rng halves delay, got %v", d)
	}
}

func TestStalledPeerDoesNotBlockSend(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer remote.Close()

	cfg := DefaultConfig()
	cfg.SendQueue = 4
	cfg.WriteTimeout = time.Minute
	peer := Hello{ContextID: behavior.NewContextID().String(), Origin: "https://frame.example"}
	link, err := newTCPLink(local, bufio.NewReader(local), peer, cfg)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	go link.writeLoop()
	defer link.Close()

	// nobody reads remote, so the writer blocks on its first frame
	start := time.Now()
	var full error
	for i := 0; i < 16 && full == nil; i++ {
		full = link.Send(wire.BubbleDown("pulse"))
	}
	if !errors.Is(full, ErrSendQueueFull) {
		t.Fatalf("expected ErrSendQueueFull, got %v", full)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("send blocked for %s", elapsed)
	}

	_ = link.Close()
	if err := link.Send(wire.BubbleDown("pulse")); !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("expected ErrLinkClosed after close, got %v", err)
	}
}
