package installer

import (
	"context"
	"log/slog"

	"updateengine/internal/logging"
)

// State is a step of the update state machine.
type State string

const (
	StateIdle             State = "idle"
	StateManifestVerified State = "manifest_verified"
	StateInstalling       State = "installing"
	StateSynced           State = "synced"
	StateSlotActivated    State = "slot_activated"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:             {StateManifestVerified},
	StateManifestVerified: {StateInstalling},
	StateInstalling:       {StateSynced},
	StateSynced:           {StateSlotActivated},
	StateSlotActivated:    {StateDone},
}

// CanTransition reports whether next may follow s. Failed may follow any
// non-terminal state.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// setState records a transition and logs it. An illegal transition is a
// programming error and is logged at error level without changing state.
func (e *Engine) setState(ctx context.Context, logger *slog.Logger, next State, attrs ...logging.Attr) {
	prev := e.state
	if !prev.CanTransition(next) {
		logger.Error("illegal state transition",
			logging.String("from", string(prev)),
			logging.String("to", string(next)),
			logging.String(logging.FieldEventType, "state_invalid"),
		)
		return
	}
	e.state = next
	attrs = append(attrs,
		logging.String(logging.FieldState, string(next)),
		logging.String("previous_state", string(prev)),
		logging.String(logging.FieldEventType, "state_transition"),
	)
	level := slog.LevelInfo
	if next == StateFailed {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "state changed", logging.Args(attrs...)...)
}
