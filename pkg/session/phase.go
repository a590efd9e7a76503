package session

import "github.com/dmitrymomot/sessionkit/pkg/statemachine"

type trigger string

const (
	triggerStart    trigger = "start"
	triggerIdle     trigger = "idle"
	triggerWarn     trigger = "warn"
	triggerActivity trigger = "activity"
	triggerEnd      trigger = "end"
)

func newPhaseMachine() *statemachine.Machine[Phase, trigger] {
	return statemachine.New[Phase, trigger](PhaseAnonymous).
		Allow(PhaseAnonymous, triggerStart, PhaseActive).
		Allow(PhaseActive, triggerIdle, PhaseIdle).
		Allow(PhaseIdle, triggerWarn, PhaseWarning).
		Allow(PhaseActive, triggerActivity, PhaseActive).
		Allow(PhaseIdle, triggerActivity, PhaseActive).
		Allow(PhaseWarning, triggerActivity, PhaseActive).
		Allow(PhaseActive, triggerEnd, PhaseAnonymous).
		Allow(PhaseIdle, triggerEnd, PhaseAnonymous).
		Allow(PhaseWarning, triggerEnd, PhaseAnonymous)
}
