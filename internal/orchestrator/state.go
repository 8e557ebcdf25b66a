package orchestrator

import "fmt"

var transitions = map[SessionStatus][]SessionStatus{
	StatusStarting: {StatusActive, StatusFailed},
	StatusActive:   {StatusStopping},
	StatusStopping: {StatusStopped},
}

// CanTransition reports whether a session may move from one status to the
// other. Stopped and failed are terminal.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves s to the next status or returns ErrInvalidTransition.
func (s *Session) transition(to SessionStatus) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	return nil
}
