package lifecycle

import "sync"

// Kind names a page lifecycle signal.
type Kind string

const (
	BeforeUnload     Kind = "before_unload"
	PageHide         Kind = "page_hide"
	PageShow         Kind = "page_show"
	VisibilityChange Kind = "visibility_change"
)

// Event is a page lifecycle signal. Persisted is meaningful for PageHide and
// PageShow and reports that the page is kept in the back/forward cache.
// Visible is meaningful for VisibilityChange.
type Event struct {
	Kind      Kind
	Persisted bool
	Visible   bool
}

// Source delivers lifecycle events.
type Source interface {
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Emitter is an in-process Source fed by the host runtime.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(Event)
}

// NewEmitter creates an Emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[int]func(Event))}
}

// Subscribe implements Source.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Emit dispatches evt synchronously to every listener.
func (e *Emitter) Emit(evt Event) {
	e.mu.RLock()
	fns := make([]func(Event), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// Listeners returns the number of attached listeners.
func (e *Emitter) Listeners() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
