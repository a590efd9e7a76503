package statemachine

import (
	"errors"
	"fmt"
)

// ErrNoTransition is matched by every error returned for an event the current
// state does not accept.
var ErrNoTransition = errors.New("statemachine.no_transition")

// TransitionError reports the rejected state and event.
type TransitionError struct {
	State string
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from state %q for event %q", e.State, e.Event)
}

// Is makes errors.Is(err, ErrNoTransition) hold for every TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrNoTransition
}

func newTransitionError(state, event any) *TransitionError {
	return &TransitionError{State: fmt.Sprint(state), Event: fmt.Sprint(event)}
}
