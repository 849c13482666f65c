package domain

import "testing"

func TestTaskStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusQueued, TaskStatusRunning, true},
		{TaskStatusQueued, TaskStatusFailed, true},
		{TaskStatusQueued, TaskStatusCancelled, true},
		{TaskStatusQueued, TaskStatusSucceeded, false},
		{TaskStatusRunning, TaskStatusSucceeded, true},
		{TaskStatusRunning, TaskStatusFailed, true},
		{TaskStatusRunning, TaskStatusQueued, false},
		{TaskStatusRunning, TaskStatusCancelled, false},
		{TaskStatusFailed, TaskStatusRefunded, true},
		{TaskStatusFailed, TaskStatusRunning, false},
		{TaskStatusSucceeded, TaskStatusFailed, false},
		{TaskStatusRefunded, TaskStatusQueued, false},
		{TaskStatusCancelled, TaskStatusRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusSucceeded, TaskStatusFailed, TaskStatusRefunded, TaskStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TaskStatus{TaskStatusQueued, TaskStatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
