package statemachine

import "sync"

// Machine is a transition table over states S and events E. Lookups are a
// nested map: [from][event] -> to.
type Machine[S comparable, E comparable] struct {
	initial     S
	current     S
	transitions map[S]map[E]S
	mu          sync.RWMutex
}

// New creates a machine in state initial with no transitions.
func New[S comparable, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		initial:     initial,
		current:     initial,
		transitions: make(map[S]map[E]S),
	}
}

// Allow registers from --event--> to. A later registration for the same
// from/event pair replaces the earlier one. It returns m for chaining.
func (m *Machine[S, E]) Allow(from S, event E, to S) *Machine[S, E] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transitions[from] == nil {
		m.transitions[from] = make(map[E]S)
	}
	m.transitions[from][event] = to
	return m
}

// Fire applies event to the current state and returns the state before and
// after. On error the state is unchanged.
func (m *Machine[S, E]) Fire(event E) (from, to S, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from = m.current
	to, ok := m.transitions[from][event]
	if !ok {
		return from, from, newTransitionError(from, event)
	}
	m.current = to
	return from, to, nil
}

// Can reports whether event is accepted in the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.transitions[m.current][event]
	return ok
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset returns the machine to its initial state.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}
