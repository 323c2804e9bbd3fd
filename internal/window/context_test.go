package window

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/globalbehavior/internal/eventloop"
	"github.com/danmuck/globalbehavior/internal/host"
	"github.com/danmuck/globalbehavior/internal/testutil/testlog"
	"github.com/danmuck/globalbehavior/internal/ticker"
)

// node is one window context with its host runtime and a per-document fire count.
type node struct {
	name  string
	ctx   *Context
	rt    *host.Runtime
	fires map[string]int
}

func newNode(t *testing.T, loop *eventloop.Loop, name, originURL string, docs ...string) *node {
	t.Helper()
	n := &node{name: name, rt: host.NewRuntime(), fires: make(map[string]int)}
	for _, id := range docs {
		doc := n.rt.Load(id)
		doc.On("#pulse", func(d *host.Document, _ string) { n.fires[d.ID()]++ })
	}
	n.ctx = New(Config{Origin: originURL, Loop: loop, Host: n.rt})
	t.Cleanup(func() { _ = n.ctx.Close() })
	return n
}

func (n *node) total() int {
	sum := 0
	for _, v := range n.fires {
		sum += v
	}
	return sum
}

// tree builds root -> (b, c), b -> d on one shared loop.
func tree(t *testing.T) (*eventloop.Loop, map[string]*node) {
	loop := eventloop.New()
	nodes := map[string]*node{
		"root": newNode(t, loop, "root", "https://root.example", "r1", "r2"),
		"b":    newNode(t, loop, "b", "https://b.example", "b1"),
		"c":    newNode(t, loop, "c", "https://c.example", "c1"),
		"d":    newNode(t, loop, "d", "https://d.example", "d1", "d2"),
	}
	Embed(nodes["root"].ctx, nodes["b"].ctx)
	Embed(nodes["root"].ctx, nodes["c"].ctx)
	Embed(nodes["b"].ctx, nodes["d"].ctx)
	return loop, nodes
}

func TestTriggerReachesEveryDocumentExactlyOnceFromAnyNode(t *testing.T) {
	testlog.Start(t)
	for _, start := range []string{"root", "b", "c", "d"} {
		t.Run(start, func(t *testing.T) {
			loop, nodes := tree(t)
			nodes[start].ctx.TriggerCustomBehaviorNamed("pulse")
			if n := loop.Drain(); n > 32 {
				t.Fatalf("propagation did not settle quickly: %d tasks", n)
			}
			for name, n := range nodes {
				for id, count := range n.fires {
					if count != 1 {
						t.Fatalf("start=%s node=%s doc=%s fired %d times", start, name, id, count)
					}
				}
			}
		})
	}
}

func TestDocumentTriggerPropagatesAcrossTree(t *testing.T) {
	testlog.Start(t)
	loop, nodes := tree(t)
	doc, _ := nodes["d"].rt.Lookup("d2")
	doc.TriggerCustomBehaviorNamed("pulse")
	loop.Drain()
	for name, n := range nodes {
		if n.total() != len(n.rt.DocumentIDs()) {
			t.Fatalf("node=%s fires=%v", name, n.fires)
		}
	}
	fired := doc.Fired()
	if len(fired) != 2 || fired[0] != "pulse" || fired[1] != "#pulse" {
		t.Fatalf("originating document fired %v", fired)
	}
}

func TestOriginFilteringBlocksUntrustedParent(t *testing.T) {
	testlog.Start(t)
	loop := eventloop.New()
	parent := newNode(t, loop, "parent", "https://evil.example", "p1")
	child := newNode(t, loop, "child", "https://child.example", "c1")
	open := newNode(t, loop, "open", "https://open.example", "o1")
	child.ctx.AllowPostMessageFrom("https://trusted.example")
	Embed(parent.ctx, child.ctx)
	Embed(parent.ctx, open.ctx)

	parent.ctx.TriggerCustomBehaviorNamed("pulse")
	loop.Drain()
	if child.total() != 0 {
		t.Fatalf("filtered child fired %v", child.fires)
	}
	if open.total() != 1 {
		t.Fatalf("unfiltered child must fire, got %v", open.fires)
	}

	child.ctx.AllowPostMessageFrom("https://evil.example")
	parent.ctx.TriggerCustomBehaviorNamed("pulse")
	loop.Drain()
	if child.total() != 1 {
		t.Fatalf("allowed parent must reach child, got %v", child.fires)
	}
}

func TestTargetedTriggerFiresOnlyTargetLocally(t *testing.T) {
	testlog.Start(t)
	loop, nodes := tree(t)
	nodes["root"].ctx.TriggerCustomBehaviorNamed("pulse@r2")
	loop.Drain()
	if nodes["root"].fires["r1"] != 0 || nodes["root"].fires["r2"] != 1 {
		t.Fatalf("root fires %v", nodes["root"].fires)
	}
	if nodes["d"].fires["d1"] != 1 || nodes["d"].fires["d2"] != 1 {
		t.Fatalf("relayed name must be bare, d fires %v", nodes["d"].fires)
	}
}

func TestSentinelTriggerIsNoOp(t *testing.T) {
	testlog.Start(t)
	loop, nodes := tree(t)
	nodes["b"].ctx.TriggerCustomBehaviorNamed("#pulse")
	if n := loop.Drain(); n != 0 {
		t.Fatalf("sentinel must not post relays, ran %d tasks", n)
	}
	for name, n := range nodes {
		if n.total() != 0 {
			t.Fatalf("node=%s fired %v", name, n.fires)
		}
	}
}

func TestPageHookRunsAfterDocuments(t *testing.T) {
	testlog.Start(t)
	loop := eventloop.New()
	n := newNode(t, loop, "solo", "", "a")
	var order []string
	doc, _ := n.rt.Lookup("a")
	doc.On("#pulse", func(*host.Document, string) { order = append(order, "doc") })
	doc.SetOnGlobalBehavior(func(name string) { order = append(order, "doc-hook:"+name) })
	n.ctx.SetOnGlobalBehavior(func(name string) { order = append(order, "page:"+name) })
	n.ctx.TriggerCustomBehaviorNamed("pulse")
	want := []string{"doc", "doc-hook:#pulse", "page:#pulse"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("order got %v want %v", order, want)
	}
}

func TestDocumentAPIAttachedOnLoad(t *testing.T) {
	testlog.Start(t)
	rt := host.NewRuntime()
	rt.Load("early")
	c := New(Config{Host: rt})
	defer c.Close()
	rt.Load("late")

	for _, id := range []string{"early", "late"} {
		doc, _ := rt.Lookup(id)
		api, ok := doc.Extension().(*DocumentAPI)
		if !ok || api.DocumentID() != id {
			t.Fatalf("document %s has no API attached", id)
		}
		got, ok := c.Document(id)
		if !ok || got != api {
			t.Fatalf("Context.Document(%s) must return the attached API", id)
		}
	}
	if _, ok := c.Document("missing"); ok {
		t.Fatalf("missing document must not resolve")
	}
}

func TestNewReturnsExistingContextForHost(t *testing.T) {
	testlog.Start(t)
	rt := host.NewRuntime()
	first := New(Config{Host: rt})
	second := New(Config{Host: rt, Origin: "https://ignored.example"})
	if first != second {
		t.Fatalf("host must keep a single context")
	}
	_ = first.Close()
	third := New(Config{Host: rt})
	defer third.Close()
	if third == first {
		t.Fatalf("closed context must release the host")
	}
}

func TestContextWithoutHost(t *testing.T) {
	testlog.Start(t)
	c := New(Config{})
	defer c.Close()
	var page []string
	c.SetOnGlobalBehavior(func(name string) { page = append(page, name) })
	c.TriggerCustomBehaviorNamed("pulse")
	if len(page) != 1 || page[0] != "#pulse" {
		t.Fatalf("page hook got %v", page)
	}
	if _, ok := c.Document("x"); ok {
		t.Fatalf("no host means no documents")
	}
}

func TestTickerDrivesPropagation(t *testing.T) {
	testlog.Start(t)
	loop, nodes := tree(t)
	root := nodes["root"].ctx
	root.StartCustomBehaviorTicker("pulse", ticker.Seconds(3600), ticker.Options{Pattern: []bool{true, false}})
	loop.Drain()
	if nodes["d"].total() != 2 {
		t.Fatalf("first tick must propagate synchronously, d fires %v", nodes["d"].fires)
	}
	root.StartCustomBehaviorTicker("pulse", ticker.Seconds(1), ticker.Options{})
	if root.Tickers().Len() != 1 {
		t.Fatalf("second start must be a no-op")
	}
	root.Tickers().Tick("pulse")
	loop.Drain()
	if nodes["d"].total() != 2 {
		t.Fatalf("pattern false tick must not fire, d fires %v", nodes["d"].fires)
	}
	root.Tickers().Tick("pulse")
	loop.Drain()
	if nodes["d"].total() != 4 {
		t.Fatalf("pattern refill must fire, d fires %v", nodes["d"].fires)
	}

	root.StopCustomBehaviorTicker("pulse")
	if root.Tickers().Active("pulse") {
		t.Fatalf("ticker still active after stop")
	}
	doc, _ := root.Document("r1")
	doc.StartCustomBehaviorTicker("a", ticker.FPS(1), ticker.Options{OmitFirst: true})
	doc.StartCustomBehaviorTicker("b", ticker.FPS(1), ticker.Options{OmitFirst: true})
	doc.StopAllCustomBehaviorTicker()
	if root.Tickers().Len() != 0 {
		t.Fatalf("stop all left %v", root.Tickers().Names())
	}
}

func TestSnapshot(t *testing.T) {
	testlog.Start(t)
	_, nodes := tree(t)
	root := nodes["root"].ctx
	root.AllowPostMessageFrom("https://b.example")
	root.StartCustomBehaviorTicker("pulse", ticker.Seconds(3600), ticker.Options{OmitFirst: true})
	s := root.Snapshot()
	if s.Version != Version || s.HasParent || len(s.Children) != 2 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if len(s.AllowedOrigins) != 1 || len(s.Tickers) != 1 || len(s.Documents) != 2 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if !nodes["d"].ctx.Snapshot().HasParent {
		t.Fatalf("embedded child must report its parent")
	}
}

func TestRunningLoopSerialisesPublicCalls(t *testing.T) {
	testlog.Start(t)
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for !loop.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	c := New(Config{Loop: loop})
	defer c.Close()
	fired := make(chan string, 1)
	c.SetOnGlobalBehavior(func(name string) { fired <- name })
	c.TriggerCustomBehaviorNamed("pulse")
	select {
	case got := <-fired:
		if got != "#pulse" {
			t.Fatalf("unexpected hook name %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("trigger never ran on the loop")
	}
}

func TestDocumentTriggerRunsOnRunningLoop(t *testing.T) {
	testlog.Start(t)
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for !loop.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	rt := host.NewRuntime()
	doc := rt.Load("stage")
	c := New(Config{Loop: loop, Host: rt})
	defer c.Close()

	hooked := make(chan string, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			c.SetOnGlobalBehavior(func(name string) { hooked <- name })
		}
	}()
	for i := 0; i < 20; i++ {
		doc.TriggerCustomBehaviorNamed("pulse")
	}
	<-done

	// the last hook install is queued before this trigger, so it must see it
	doc.TriggerCustomBehaviorNamed("pulse")
	select {
	case got := <-hooked:
		if got != "#pulse" {
			t.Fatalf("unexpected hook name %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("document trigger never reached the page hook")
	}
}
