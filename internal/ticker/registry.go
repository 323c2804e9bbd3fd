// Package ticker owns named repeating behavior triggers.
//
// Ownership boundary:
// - at most one active entry per behavior name
// - pattern gating of individual ticks
// - first-tick and countdown policy
//
// Timing is delegated to a Scheduler so ticks can be driven by hand.
package ticker

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FireFunc is invoked for every tick that fires.
type FireFunc func(name string)

// Scheduler runs fn every d until the returned cancel func is called.
// Every must not invoke fn synchronously.
type Scheduler interface {
	Every(d time.Duration, fn func()) (cancel func())
}

// Options tune one ticker. A nil Pattern fires on every tick; a non-nil empty
// Pattern never fires. Countdown > 0 stops the ticker after that many fired ticks.
type Options struct {
	Pattern   []bool
	OmitFirst bool
	Countdown int
}

// Entry is one active ticker.
type Entry struct {
	name     string
	every    Interval
	pattern  *Pattern
	limit    int
	fired    int
	steps    int
	cancel   func()
	started  time.Time
	stopOnce sync.Once
}

// step advances the entry by one tick and reports whether it fires.
func (e *Entry) step() bool {
	e.steps++
	if e.pattern == nil {
		return true
	}
	return e.pattern.Step()
}

func (e *Entry) stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
	})
}

// Status is a read-only view of an active entry.
type Status struct {
	Name      string    `json:"name"`
	Interval  string    `json:"interval"`
	Pattern   int       `json:"pattern_len"`
	Steps     int       `json:"steps"`
	Fired     int       `json:"fired"`
	Countdown int       `json:"countdown,omitempty"`
	Started   time.Time `json:"started"`
}

// Registry maps behavior names to active tickers.
type Registry struct {
	mu      sync.Mutex
	sched   Scheduler
	fire    FireFunc
	entries map[string]*Entry
	log     zerolog.Logger
}

func NewRegistry(sched Scheduler, fire FireFunc) *Registry {
	return &Registry{
		sched:   sched,
		fire:    fire,
		entries: make(map[string]*Entry),
		log:     log.With().Str("component", "ticker").Logger(),
	}
}

// SetLogger replaces the registry logger.
func (r *Registry) SetLogger(l zerolog.Logger) {
	r.log = l
}

// Start registers a ticker for name. It is a no-op for an empty name, an absent
// interval, or a name that already has an active ticker. Unless OmitFirst is set,
// one tick runs synchronously before Start returns.
func (r *Registry) Start(name string, every Interval, opts Options) bool {
	if name == "" || every.IsZero() {
		r.log.Debug().Str("behavior", name).Str("interval", every.String()).Msg("ticker.Registry.Start ignored")
		return false
	}

	r.mu.Lock()
	if _, ok := r.entries[name]; ok {
		r.mu.Unlock()
		r.log.Debug().Str("behavior", name).Msg("ticker.Registry.Start already active")
		return false
	}
	e := &Entry{
		name:    name,
		every:   every,
		limit:   opts.Countdown,
		started: time.Now(),
	}
	if opts.Pattern != nil {
		e.pattern = NewPattern(opts.Pattern)
	}
	if r.sched != nil {
		e.cancel = r.sched.Every(every.Duration(), func() { r.tick(e) })
	}
	r.entries[name] = e
	r.mu.Unlock()

	r.log.Info().
		Str("behavior", name).
		Str("interval", every.String()).
		Bool("omit_first", opts.OmitFirst).
		Int("pattern_len", len(opts.Pattern)).
		Msg("ticker.Registry.Start")

	if !opts.OmitFirst {
		r.tick(e)
	}
	return true
}

// Stop cancels the ticker for name. It is a no-op when none is active.
func (r *Registry) Stop(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	var fired int
	if ok {
		delete(r.entries, name)
		fired = e.fired
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.stop()
	r.log.Info().Str("behavior", name).Int("fired", fired).Msg("ticker.Registry.Stop")
	return true
}

// StopAll stops every active ticker.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	stopped := make([]*Entry, 0, len(r.entries))
	for name, e := range r.entries {
		stopped = append(stopped, e)
		delete(r.entries, name)
	}
	r.mu.Unlock()
	for _, e := range stopped {
		e.stop()
	}
	if len(stopped) > 0 {
		r.log.Info().Int("count", len(stopped)).Msg("ticker.Registry.StopAll")
	}
	return len(stopped)
}

// Tick advances the active ticker for name by one step, exactly as the
// scheduler would, and reports whether the tick fired.
func (r *Registry) Tick(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.tick(e)
}

func (r *Registry) tick(e *Entry) bool {
	r.mu.Lock()
	if r.entries[e.name] != e {
		// stale callback from a stopped or replaced entry
		r.mu.Unlock()
		return false
	}
	fires := e.step()
	exhausted := false
	if fires {
		e.fired++
		exhausted = e.limit > 0 && e.fired >= e.limit
	}
	r.mu.Unlock()

	if fires && r.fire != nil {
		r.fire(e.name)
	}
	if exhausted {
		r.log.Debug().Str("behavior", e.name).Int("countdown", e.limit).Msg("ticker countdown reached")
		r.mu.Lock()
		if r.entries[e.name] == e {
			delete(r.entries, e.name)
		}
		r.mu.Unlock()
		e.stop()
	}
	return fires
}

func (r *Registry) Active(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Names returns active ticker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// List returns a status view of all active tickers sorted by name.
func (r *Registry) List() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		st := Status{
			Name:      e.name,
			Interval:  e.every.String(),
			Steps:     e.steps,
			Fired:     e.fired,
			Countdown: e.limit,
			Started:   e.started,
		}
		if e.pattern != nil {
			st.Pattern = e.pattern.Len()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
