// Package propagation owns the behavior propagation protocol for one window context.
//
// Ownership boundary:
// - local firing on known documents and the page hook
// - relay direction decisions (origin, bubble-up, bubble-down)
// - loop avoidance via the child-to-avoid rule
//
// Delivery to other contexts is delegated to a Relay.
package propagation

import (
	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Document fires a behavior purely locally. It receives sentinel names and must
// not re-propagate them.
type Document interface {
	TriggerCustomBehaviorNamed(name string)
}

// GlobalBehaviorObserver is the optional per-document hook invoked after local firing.
type GlobalBehaviorObserver interface {
	OnGlobalBehavior(name string)
}

// DocumentRegistry is the host runtime's view of the documents in this context.
type DocumentRegistry interface {
	DocumentIDs() []string
	Document(id string) (Document, bool)
}

// Relay delivers bare behavior names to neighbouring contexts.
type Relay interface {
	// RelayUp sends to the parent and reports whether one is attached.
	RelayUp(name string) bool
	// RelayDown sends to every child except avoid and returns the count reached.
	RelayDown(name string, avoid behavior.ContextID) int
}

// Flags describe how a propagation call entered this context.
type Flags struct {
	BubbleUp     bool
	BubbleDown   bool
	ChildToAvoid behavior.ContextID
}

// IsOrigin is true only for triggers that started in this context.
func (f Flags) IsOrigin() bool {
	return !f.BubbleUp && !f.BubbleDown
}

func (f Flags) kind() string {
	switch {
	case f.BubbleUp:
		return "up"
	case f.BubbleDown:
		return "down"
	default:
		return "origin"
	}
}

// Report summarises one propagation call.
type Report struct {
	Name        string
	Skipped     bool
	Fired       []string
	PageHook    bool
	RelayedUp   bool
	RelayedDown int
}

type Engine struct {
	context  string
	registry DocumentRegistry
	relay    Relay
	onGlobal func(name string)
	log      zerolog.Logger
}

type Option func(*Engine)

// WithRegistry resolves the document registry capability once.
func WithRegistry(r DocumentRegistry) Option {
	return func(e *Engine) { e.registry = r }
}

func WithRelay(r Relay) Option {
	return func(e *Engine) { e.relay = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithContextLabel sets the label used for metrics.
func WithContextLabel(label string) Option {
	return func(e *Engine) { e.context = label }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: log.With().Str("component", "propagation").Logger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetOnGlobalBehavior registers the page-level hook. A nil fn clears it.
func (e *Engine) SetOnGlobalBehavior(fn func(name string)) {
	e.onGlobal = fn
}

// Propagate parses raw once and propagates it.
func (e *Engine) Propagate(raw string, flags Flags) Report {
	return e.PropagateReference(behavior.ParseReference(raw), flags)
}

// PropagateReference fires ref locally, then relays the bare name according to
// flags. It never fails.
func (e *Engine) PropagateReference(ref behavior.Reference, flags Flags) Report {
	report := Report{Name: ref.Name}
	if ref.Sentinel {
		report.Skipped = true
		observability.RecordPropagation(e.context, "sentinel")
		return report
	}
	observability.RecordPropagation(e.context, flags.kind())

	local := ref.Local()
	for _, id := range e.targets(ref) {
		doc, ok := e.registry.Document(id)
		if !ok || doc == nil {
			continue
		}
		doc.TriggerCustomBehaviorNamed(local)
		if obs, ok := doc.(GlobalBehaviorObserver); ok {
			obs.OnGlobalBehavior(local)
		}
		report.Fired = append(report.Fired, id)
	}
	observability.RecordLocalFires(e.context, len(report.Fired))

	if e.onGlobal != nil {
		e.onGlobal(local)
		report.PageHook = true
	}

	if e.relay != nil {
		if flags.BubbleDown || flags.IsOrigin() {
			report.RelayedDown += e.relay.RelayDown(ref.Name, flags.ChildToAvoid)
		}
		if flags.BubbleUp || flags.IsOrigin() {
			report.RelayedUp = e.relay.RelayUp(ref.Name)
			if !flags.ChildToAvoid.IsZero() {
				report.RelayedDown += e.relay.RelayDown(ref.Name, flags.ChildToAvoid)
			}
		}
	}

	e.log.Debug().
		Str("behavior", ref.Name).
		Str("kind", flags.kind()).
		Strs("fired", report.Fired).
		Bool("page_hook", report.PageHook).
		Bool("relayed_up", report.RelayedUp).
		Int("relayed_down", report.RelayedDown).
		Msg("propagation.Engine.Propagate")
	return report
}

// targets resolves explicit selectors or falls back to every known document.
func (e *Engine) targets(ref behavior.Reference) []string {
	if e.registry == nil {
		return nil
	}
	if ref.Targeted() {
		return ref.Targets
	}
	return e.registry.DocumentIDs()
}
