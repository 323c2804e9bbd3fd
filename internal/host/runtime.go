// Package host is an in-memory document runtime for one window context.
//
// It plays the part of the page's document engine: documents load and unload,
// authored behaviors fire by exact name, and every trigger is announced to
// runtime listeners.
package host

import (
	"slices"
	"sort"
	"sync"

	"github.com/danmuck/globalbehavior/internal/propagation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler reacts to one fired behavior.
type Handler func(doc *Document, name string)

type Document struct {
	id      string
	runtime *Runtime

	mu        sync.Mutex
	handlers  map[string][]Handler
	onGlobal  func(name string)
	extension any
	fired     []string
}

func (d *Document) ID() string { return d.id }

// On registers h for behaviors named exactly name.
func (d *Document) On(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

// TriggerCustomBehaviorNamed runs the handlers authored for name, then announces
// the trigger to the runtime.
func (d *Document) TriggerCustomBehaviorNamed(name string) {
	d.mu.Lock()
	d.fired = append(d.fired, name)
	handlers := append([]Handler(nil), d.handlers[name]...)
	d.mu.Unlock()

	for _, h := range handlers {
		h(d, name)
	}
	if d.runtime != nil {
		d.runtime.emitTrigger(d.id, name)
	}
}

// Fired returns every behavior name this document has fired, in order.
func (d *Document) Fired() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.fired...)
}

// SetOnGlobalBehavior installs the per-document global behavior hook.
func (d *Document) SetOnGlobalBehavior(fn func(name string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onGlobal = fn
}

func (d *Document) OnGlobalBehavior(name string) {
	d.mu.Lock()
	fn := d.onGlobal
	d.mu.Unlock()
	if fn != nil {
		fn(name)
	}
}

// Extension returns the value attached by a window context, if any.
func (d *Document) Extension() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extension
}

func (d *Document) SetExtension(v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extension = v
}

// Runtime owns the documents of one window context.
type Runtime struct {
	mu        sync.Mutex
	docs      map[string]*Document
	order     []string
	onLoad    []func(id string)
	onTrigger []func(docID, name string)
	extension any
	log       zerolog.Logger
}

func NewRuntime() *Runtime {
	return &Runtime{
		docs: make(map[string]*Document),
		log:  log.With().Str("component", "host").Logger(),
	}
}

// Load creates document id, or returns the existing one, and notifies load
// listeners for new documents.
func (r *Runtime) Load(id string) *Document {
	r.mu.Lock()
	if d, ok := r.docs[id]; ok {
		r.mu.Unlock()
		return d
	}
	d := &Document{id: id, runtime: r, handlers: make(map[string][]Handler)}
	r.docs[id] = d
	r.order = append(r.order, id)
	listeners := slices.Clone(r.onLoad)
	r.mu.Unlock()

	r.log.Debug().Str("document", id).Msg("host.Runtime.Load")
	for _, fn := range listeners {
		fn(id)
	}
	return d
}

func (r *Runtime) Unload(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return false
	}
	delete(r.docs, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// DocumentIDs returns loaded documents in load order.
func (r *Runtime) DocumentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *Runtime) Document(id string) (propagation.Document, bool) {
	d, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return d, true
}

func (r *Runtime) Lookup(id string) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	return d, ok
}

// Registry exposes the runtime as the propagation document registry.
func (r *Runtime) Registry() propagation.DocumentRegistry {
	return r
}

func (r *Runtime) OnDocumentLoad(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLoad = append(r.onLoad, fn)
}

func (r *Runtime) OnTriggerCustomBehavior(fn func(docID, name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTrigger = append(r.onTrigger, fn)
}

// Extension holds the window context attached to this runtime.
func (r *Runtime) Extension() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extension
}

func (r *Runtime) SetExtension(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extension = v
}

// Sorted returns document ids in lexical order.
func (r *Runtime) Sorted() []string {
	ids := r.DocumentIDs()
	sort.Strings(ids)
	return ids
}

func (r *Runtime) emitTrigger(docID, name string) {
	r.mu.Lock()
	listeners := slices.Clone(r.onTrigger)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(docID, name)
	}
}
