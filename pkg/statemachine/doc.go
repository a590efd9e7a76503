// Package statemachine provides a small generic finite state machine driven by
// a transition table.
//
// A Machine starts in its initial state and moves only along transitions
// registered with Allow. Firing an event the current state has no transition
// for returns an error matching ErrNoTransition and leaves the state alone.
//
//	type state string
//	type event string
//
//	m := statemachine.New[state, event]("draft").
//		Allow("draft", "submit", "review").
//		Allow("review", "approve", "published")
//
//	from, to, err := m.Fire("submit")
//
// A Machine is safe for concurrent use.
package statemachine
