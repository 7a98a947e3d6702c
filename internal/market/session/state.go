package session

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid session state transition")

// Status is the lifecycle state of the single client session. Transitions are
// validated by table, not by guard clauses scattered across call sites.
type Status int

const (
	StatusIdle Status = iota
	StatusApproving
	StatusStarting
	StatusActive
	StatusEnding
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusApproving:
		return "approving"
	case StatusStarting:
		return "starting"
	case StatusActive:
		return "active"
	case StatusEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// canTransition is the full transition table. Approving, Starting, and Active
// may drop straight back to Idle on unrecoverable error; the happy path is
// Idle → Approving → Starting → Active → Ending → Idle.
func canTransition(current, next Status) bool {
	switch current {
	case StatusIdle:
		return next == StatusApproving
	case StatusApproving:
		return next == StatusStarting || next == StatusIdle
	case StatusStarting:
		return next == StatusActive || next == StatusIdle
	case StatusActive:
		return next == StatusEnding || next == StatusIdle
	case StatusEnding:
		return next == StatusIdle
	default:
		return false
	}
}

// transition moves the session to next or fails with ErrInvalidTransition.
func (s *Session) transition(next Status) error {
	if !canTransition(s.Status, next) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return nil
}
