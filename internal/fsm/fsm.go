// Package fsm holds the per-action countdown slot state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateCountingDown State = "counting_down"
	StateExecuting    State = "executing"
)

const (
	// EventArm starts a countdown.
	EventArm Event = "arm"
	// EventFire sends the action, either immediately or when a countdown ends.
	EventFire   Event = "fire"
	EventCancel Event = "cancel"
	EventDone   Event = "done"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventArm:
			return StateCountingDown, nil
		case EventFire:
			return StateExecuting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCountingDown:
		switch event {
		case EventFire:
			return StateExecuting, nil
		case EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateExecuting:
		switch event {
		case EventDone:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
