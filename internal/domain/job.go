package domain

import "time"

// JobStatus is the aggregate status of a job, derived from its tasks.
type JobStatus string

const (
	JobStatusRunning        JobStatus = "running"
	JobStatusSucceeded      JobStatus = "succeeded"
	JobStatusPartialSuccess JobStatus = "partial_success"
	JobStatusFailed         JobStatus = "failed"
	JobStatusCancelled      JobStatus = "cancelled"
)

// Job is one user-initiated batch generation request. It owns its scene
// tasks; output ordering follows RequestedScenes.
type Job struct {
	ID                string
	UserID            string
	ProductType       string
	RequestedScenes   []string
	StyleID           string
	InjectionOverride InjectionLevel // empty means use each template's default
	ProviderOverride  string
	ProductImageKey   string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// AggregateStatus derives a job's status from its tasks. It is never stored
// independently, so it cannot drift from per-task truth. Partial success is a
// first-class outcome: at least one success alongside any failure or
// cancellation.
func AggregateStatus(tasks []SceneTask) JobStatus {
	var succeeded, failed, cancelled int
	for _, t := range tasks {
		switch {
		case !t.Status.Terminal():
			return JobStatusRunning
		case t.Status == TaskStatusSucceeded:
			succeeded++
		case t.Status == TaskStatusCancelled:
			cancelled++
		default: // failed or refunded
			failed++
		}
	}
	switch {
	case len(tasks) == 0:
		return JobStatusRunning
	case succeeded == len(tasks):
		return JobStatusSucceeded
	case succeeded > 0:
		return JobStatusPartialSuccess
	case cancelled == len(tasks):
		return JobStatusCancelled
	default:
		return JobStatusFailed
	}
}
