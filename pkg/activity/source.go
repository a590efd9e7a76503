package activity

import "sync"

// EventType names a qualifying user interaction.
type EventType string

const (
	PointerMove EventType = "mousemove"
	PointerDown EventType = "mousedown"
	KeyDown     EventType = "keydown"
	Scroll      EventType = "scroll"
	Touch       EventType = "touchstart"
	Click       EventType = "click"
	Focus       EventType = "focus"
)

// Events lists every qualifying event type.
var Events = []EventType{PointerMove, PointerDown, KeyDown, Scroll, Touch, Click, Focus}

// Qualifies reports whether e resets the idle countdown.
func Qualifies(e EventType) bool {
	for _, q := range Events {
		if q == e {
			return true
		}
	}
	return false
}

// Source delivers raw interaction events. Subscribe attaches a listener and
// returns a function detaching it.
type Source interface {
	Subscribe(fn func(EventType)) (unsubscribe func())
}

// Emitter is an in-process Source. The host runtime pushes interaction events
// into it with Emit.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(EventType)
}

// NewEmitter creates an Emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[int]func(EventType))}
}

// Subscribe implements Source.
func (e *Emitter) Subscribe(fn func(EventType)) func() {
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

// Emit dispatches an event synchronously to every attached listener.
func (e *Emitter) Emit(evt EventType) {
	e.mu.RLock()
	fns := make([]func(EventType), 0, len(e.listeners))
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
