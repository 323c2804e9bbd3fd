// Package origin owns the inbound message allow-list.
package origin

import "sync"

// Filter is an append-only allow-list of message origins.
// An empty filter accepts every origin.
type Filter struct {
	mu      sync.RWMutex
	allowed []string
}

func NewFilter(origins ...string) *Filter {
	f := &Filter{}
	for _, o := range origins {
		f.Allow(o)
	}
	return f
}

// Allow appends origin. Duplicates are kept and harmless.
func (f *Filter) Allow(origin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = append(f.allowed, origin)
}

// Check reports whether a message from origin may be processed.
func (f *Filter) Check(origin string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.allowed) == 0 {
		return true
	}
	for _, o := range f.allowed {
		if o == origin {
			return true
		}
	}
	return false
}

// Filtering reports whether allow-list mode is active.
func (f *Filter) Filtering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.allowed) > 0
}

// Origins returns the allow-list in insertion order.
func (f *Filter) Origins() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.allowed))
	copy(out, f.allowed)
	return out
}
