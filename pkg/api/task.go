package api

import "time"

// TaskKind distinguishes code tasks from function tasks.
type TaskKind string

const (
	TaskKindCode     TaskKind = "code_execution"
	TaskKindFunction TaskKind = "function_execution"
)

// TaskStatus is the lifecycle state of a task, or the outcome of a lookup.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskCancelled TaskStatus = "cancelled"
	TaskFailed    TaskStatus = "failed"

	// Lookup outcomes. These never describe a stored task.
	TaskNotFound         TaskStatus = "not_found"
	TaskTimeout          TaskStatus = "timeout"
	TaskError            TaskStatus = "error"
	TaskAlreadyCompleted TaskStatus = "already_completed"
)

// IsTerminal reports whether a task in this state will never change again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled || s == TaskFailed
}

// Task is a unit of asynchronous work.
type Task struct {
	ID        string     `json:"task_id"`
	Kind      TaskKind   `json:"type"`
	Code      string     `json:"code,omitempty"`
	Language  string     `json:"language,omitempty"`
	Function  string     `json:"function,omitempty"`
	Args      []any      `json:"args,omitempty"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// TaskResult is what a task produced, or the answer to a lookup.
type TaskResult struct {
	TaskID       string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Success      bool       `json:"success"`
	Stdout       string     `json:"stdout,omitempty"`
	Stderr       string     `json:"stderr,omitempty"`
	ExitCode     int        `json:"return_code"`
	Result       any        `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
	ErrorHandled bool       `json:"error_handled"`
	ErrorInfo    *Diagnosis `json:"error_info,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// Submission acknowledges a queued task.
type Submission struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// TaskView is a task snapshot merged with its result fields, as returned
// by task listings.
type TaskView struct {
	Task
	Result *TaskResult `json:"result,omitempty"`
}
