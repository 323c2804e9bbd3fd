// Package window is the public surface of one window context.
//
// Ownership boundary:
// - the five public entry points and the page-level hook
// - wiring of allow-list, propagation engine, relay adapter and tickers
// - attaching the document API when the host loads a document
//
// All state mutation runs on the context's event loop.
package window

import (
	"sync"

	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/eventloop"
	"github.com/danmuck/globalbehavior/internal/observability"
	"github.com/danmuck/globalbehavior/internal/origin"
	"github.com/danmuck/globalbehavior/internal/propagation"
	"github.com/danmuck/globalbehavior/internal/ticker"
	"github.com/danmuck/globalbehavior/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Version = "1.7"

// Host is the document runtime a context attaches to.
type Host interface {
	Registry() propagation.DocumentRegistry
	OnDocumentLoad(fn func(id string))
	OnTriggerCustomBehavior(fn func(docID, name string))
}

// extensible is implemented by hosts and documents that can carry the
// attached context or document API.
type extensible interface {
	Extension() any
	SetExtension(v any)
}

type Config struct {
	// ID defaults to a fresh context id.
	ID             behavior.ContextID
	Origin         string
	AllowedOrigins []string
	// Loop defaults to a private loop. Contexts in one process may share a loop.
	Loop *eventloop.Loop
	Host Host
}

type Context struct {
	id      behavior.ContextID
	origin  string
	loop    *eventloop.Loop
	host    Host
	filter  *origin.Filter
	engine  *propagation.Engine
	adapter *transport.Adapter
	tickers *ticker.Registry
	log     zerolog.Logger

	closeOnce sync.Once
}

// New attaches a context to cfg.Host. A host that already carries a context
// gets that context back unchanged.
func New(cfg Config) *Context {
	if ext, ok := cfg.Host.(extensible); ok {
		if existing, ok := ext.Extension().(*Context); ok && existing != nil {
			existing.log.Debug().Msg("window.New host already attached")
			return existing
		}
	}
	if cfg.ID.IsZero() {
		cfg.ID = behavior.NewContextID()
	}
	if cfg.Loop == nil {
		cfg.Loop = eventloop.New()
	}

	label := cfg.ID.Short()
	c := &Context{
		id:     cfg.ID,
		origin: cfg.Origin,
		loop:   cfg.Loop,
		host:   cfg.Host,
		filter: origin.NewFilter(cfg.AllowedOrigins...),
		log:    log.With().Str("component", "window").Str("context", label).Logger(),
	}
	c.adapter = transport.NewAdapter(c.id, c.origin, c.filter)

	opts := []propagation.Option{
		propagation.WithRelay(c.adapter),
		propagation.WithContextLabel(label),
		propagation.WithLogger(c.log.With().Str("component", "propagation").Logger()),
	}
	if c.host != nil {
		if reg := c.host.Registry(); reg != nil {
			opts = append(opts, propagation.WithRegistry(reg))
		}
	}
	c.engine = propagation.NewEngine(opts...)
	c.adapter.SetPropagator(c.engine)
	c.adapter.SetExecutor(c.loop)

	c.tickers = ticker.NewRegistry(c.loop, func(name string) {
		observability.RecordTick(label, name)
		c.trigger(name)
	})
	c.tickers.SetLogger(c.log.With().Str("component", "ticker").Logger())

	if c.host != nil {
		if ext, ok := c.host.(extensible); ok {
			ext.SetExtension(c)
		}
		c.host.OnDocumentLoad(c.attachDocument)
		c.host.OnTriggerCustomBehavior(func(docID, name string) {
			c.dispatch(func() { c.trigger(name) })
		})
		if reg := c.host.Registry(); reg != nil {
			for _, id := range reg.DocumentIDs() {
				c.attachDocument(id)
			}
		}
	}
	c.log.Info().Str("origin", c.origin).Strs("allowed_origins", cfg.AllowedOrigins).Msg("window.New")
	return c
}

func (c *Context) ID() behavior.ContextID { return c.id }

func (c *Context) Origin() string { return c.origin }

func (c *Context) Loop() *eventloop.Loop { return c.loop }

func (c *Context) Adapter() *transport.Adapter { return c.adapter }

// Tickers exposes the ticker registry for inspection and manual ticks.
func (c *Context) Tickers() *ticker.Registry { return c.tickers }

// TriggerCustomBehaviorNamed starts a propagation with this context as origin.
func (c *Context) TriggerCustomBehaviorNamed(name string) {
	c.dispatch(func() { c.trigger(name) })
}

// AllowPostMessageFrom adds origin to the inbound allow-list. Once the list is
// non-empty, messages from any other origin are dropped.
func (c *Context) AllowPostMessageFrom(o string) {
	c.dispatch(func() {
		c.filter.Allow(o)
		c.log.Info().Str("origin", o).Msg("window.Context.AllowPostMessageFrom")
	})
}

// StartCustomBehaviorTicker fires name every interval. It is a no-op when a
// ticker for name is already active or the interval is absent.
func (c *Context) StartCustomBehaviorTicker(name string, every ticker.Interval, opts ticker.Options) {
	c.dispatch(func() { c.tickers.Start(name, every, opts) })
}

func (c *Context) StopCustomBehaviorTicker(name string) {
	c.dispatch(func() { c.tickers.Stop(name) })
}

func (c *Context) StopAllCustomBehaviorTicker() {
	c.dispatch(func() { c.tickers.StopAll() })
}

// SetOnGlobalBehavior registers the page-level hook, called with the sentinel
// name after documents have fired.
func (c *Context) SetOnGlobalBehavior(fn func(name string)) {
	c.dispatch(func() { c.engine.SetOnGlobalBehavior(fn) })
}

// Close stops every ticker, drops every link and detaches from the host.
func (c *Context) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.tickers.StopAll()
		err = c.adapter.Close()
		if ext, ok := c.host.(extensible); ok && ext.Extension() == any(c) {
			ext.SetExtension(nil)
		}
		c.log.Info().Msg("window.Context.Close")
	})
	return err
}

// Embed makes child a frame of parent within the same process.
func Embed(parent, child *Context) (detach func()) {
	return transport.Connect(parent.adapter, child.adapter)
}

func (c *Context) trigger(name string) {
	c.engine.Propagate(name, propagation.Flags{})
}

// dispatch posts fn to a running loop, otherwise runs it inline.
func (c *Context) dispatch(fn func()) {
	if c.loop.Running() {
		c.loop.Post(fn)
		return
	}
	fn()
}
