// Package extraction manages admin-initiated bulk extraction jobs: a small
// state machine persisted through the store, with audit logs and staged
// books owned by each job.
package extraction

import (
	"fmt"
)

// Status is an extraction job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// transitions is the complete set of legal moves. Anything absent here is
// rejected with a TransitionError.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusPaused, StatusCompleted, StatusStopped, StatusFailed},
	StatusPaused:  {StatusRunning, StatusStopped},
}

// terminal statuses permit deletion; everything else is still live.
var terminal = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusStopped:   true,
}

// TransitionError reports an illegal state machine move.
type TransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("extraction job %s: cannot transition from %s to %s", e.JobID, e.From, e.To)
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a job in this status may be deleted.
func IsTerminal(s Status) bool {
	return terminal[s]
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}
