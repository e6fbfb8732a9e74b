package extraction

import (
	"strings"
	"testing"
)

var allStatuses = []Status{
	StatusPending, StatusRunning, StatusPaused,
	StatusCompleted, StatusFailed, StatusStopped,
}

// legal is the full transition table, spelled out pair by pair so a table
// edit cannot silently widen the machine.
var legal = map[Status]map[Status]bool{
	StatusPending: {StatusRunning: true},
	StatusRunning: {
		StatusPaused:    true,
		StatusCompleted: true,
		StatusStopped:   true,
		StatusFailed:    true,
	},
	StatusPaused: {
		StatusRunning: true,
		StatusStopped: true,
	},
}

func TestCanTransitionExhaustive(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range allStatuses {
		want := s == StatusCompleted || s == StatusFailed || s == StatusStopped
		if got := IsTerminal(s); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, got, want)
		}
	}

	// Terminal states have no outgoing transitions.
	for _, from := range allStatuses {
		if !IsTerminal(from) {
			continue
		}
		for _, to := range allStatuses {
			if CanTransition(from, to) {
				t.Errorf("terminal status %s must not transition to %s", from, to)
			}
		}
	}
}

func TestTransitionErrorNamesBothStates(t *testing.T) {
	err := &TransitionError{JobID: "j1", From: StatusCompleted, To: StatusRunning}
	msg := err.Error()
	if !strings.Contains(msg, "completed") || !strings.Contains(msg, "running") {
		t.Fatalf("error %q must name both states", msg)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range allStatuses {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%s) = false", s)
		}
	}
	if ValidStatus("archived") {
		t.Error("unknown status accepted")
	}
}
