package api

import (
	"strings"
	"testing"
)

func TestValidateTaskTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    TaskStatus
		to      TaskStatus
		wantErr bool
	}{
		// Valid transitions
		{name: "initial to running", from: "", to: TaskRunning},
		{name: "running to completed", from: TaskRunning, to: TaskCompleted},
		{name: "running to cancelled", from: TaskRunning, to: TaskCancelled},
		{name: "running to failed", from: TaskRunning, to: TaskFailed},

		// Terminal states
		{name: "completed to cancelled", from: TaskCompleted, to: TaskCancelled, wantErr: true},
		{name: "completed to running", from: TaskCompleted, to: TaskRunning, wantErr: true},
		{name: "cancelled to completed", from: TaskCancelled, to: TaskCompleted, wantErr: true},
		{name: "failed to completed", from: TaskFailed, to: TaskCompleted, wantErr: true},

		// Skipping or lookup-only states
		{name: "initial to completed", from: "", to: TaskCompleted, wantErr: true},
		{name: "running to running", from: TaskRunning, to: TaskRunning, wantErr: true},
		{name: "running to not_found", from: TaskRunning, to: TaskNotFound, wantErr: true},
		{name: "timeout to completed", from: TaskTimeout, to: TaskCompleted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTaskTransition(tt.from, tt.to)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateTaskTransition(%q, %q) = nil, want error", tt.from, tt.to)
				} else if !strings.Contains(err.Message, "invalid transition") {
					t.Errorf("error message %q does not contain \"invalid transition\"", err.Message)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateTaskTransition(%q, %q) = %v, want nil", tt.from, tt.to, err)
			}
		})
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []TaskStatus{TaskCompleted, TaskCancelled, TaskFailed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if ValidateTaskTransition(s, TaskRunning) == nil {
			t.Errorf("terminal %s accepted an outgoing transition", s)
		}
	}
	if TaskRunning.IsTerminal() {
		t.Error("running should not be terminal")
	}
}
