package dispatch

import "github.com/rbright/powerctl/internal/protocol"

// Observer receives countdown and execution events, typically for UI feedback.
// Calls come from the invoking goroutine.
type Observer interface {
	OnTick(action protocol.Action, remaining int)
	OnExecute(action protocol.Action)
	OnCancel(action protocol.Action)
	OnResult(action protocol.Action, resp protocol.Response, err error)
}

// noopObserver preserves dispatch flow when no observer is wired.
type noopObserver struct{}

func (noopObserver) OnTick(protocol.Action, int)                        {}
func (noopObserver) OnExecute(protocol.Action)                          {}
func (noopObserver) OnCancel(protocol.Action)                           {}
func (noopObserver) OnResult(protocol.Action, protocol.Response, error) {}
