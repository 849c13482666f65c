package domain

import "time"

// TaskStatus enumerates scene task lifecycle states.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusRefunded  TaskStatus = "refunded"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// taskTransitions lists the allowed forward edges of the lifecycle. Statuses
// never move backward; a failed task that should run again gets a fresh task.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusQueued:  {TaskStatusRunning, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusRunning: {TaskStatusSucceeded, TaskStatusFailed},
	TaskStatusFailed:  {TaskStatusRefunded},
}

// CanTransitionTo reports whether moving from s to next is a valid edge.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether a task in this status counts toward job completion.
// A failed task is terminal for aggregation even though a refund edge remains.
func (s TaskStatus) Terminal() bool {
	return s != TaskStatusQueued && s != TaskStatusRunning
}

// ErrorKind classifies why a task ended in a failed state.
type ErrorKind string

const (
	ErrorKindInsufficientCredits ErrorKind = "insufficient_credits"
	ErrorKindProviderFailure     ErrorKind = "provider_failure"
	ErrorKindConfiguration       ErrorKind = "configuration"
	ErrorKindOrphanedOnRestart   ErrorKind = "orphaned_on_restart"
	ErrorKindInternal            ErrorKind = "internal"
)

// SceneTask is the unit of generation work and of credit accounting: one
// generated image for one scene within a job.
type SceneTask struct {
	ID              string
	JobID           string
	SceneTemplateID string
	Status          TaskStatus
	AttemptCount    int
	OutputPath      string
	ProviderUsed    string
	ErrorKind       ErrorKind
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
