package models

import "fmt"

// EntryStatus is the lifecycle state of a ledger entry.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
	StatusReversed  EntryStatus = "reversed"
)

// transitions is the full status state machine:
//
//	pending   -> completed | failed
//	completed -> reversed
//	failed    -> (terminal)
//	reversed  -> (terminal)
var transitions = map[EntryStatus][]EntryStatus{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusReversed},
	StatusFailed:    {},
	StatusReversed:  {},
}

// Terminal reports whether no further transitions are allowed from s.
func (s EntryStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s EntryStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Transition validates a status change. Illegal moves return
// ErrInvalidTransition; the caller applies the balance effect only on
// moves that cross the completed boundary.
func Transition(current, next EntryStatus) error {
	if !current.Valid() || !next.Valid() {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, current, next)
	}
	for _, allowed := range transitions[current] {
		if next == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, current, next)
}
