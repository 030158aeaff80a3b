package api

import "fmt"

// ValidateTaskTransition checks whether a task status transition is valid.
// An empty "from" status represents a task that has not been queued yet.
// Terminal states (completed, cancelled, failed) do not allow outgoing
// transitions, which is what keeps a late result from overwriting a
// cancellation.
func ValidateTaskTransition(from, to TaskStatus) *APIError {
	valid := map[TaskStatus][]TaskStatus{
		"":          {TaskRunning},
		TaskRunning: {TaskCompleted, TaskCancelled, TaskFailed},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
