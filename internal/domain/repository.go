package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	SetCompleted(ctx context.Context, jobID string, at time.Time) error
}

// TaskPatch carries the optional fields applied alongside a status
// transition. Zero values leave the stored field untouched; AttemptCount is
// applied only when positive.
type TaskPatch struct {
	OutputPath   string
	ProviderUsed string
	ErrorKind    ErrorKind
	AttemptCount int
}

// TaskRepository defines persistence for scene tasks. Transition is a
// compare-and-set: it applies only when the stored status equals from, and
// reports whether it did. Callers rely on that guard for exactly-once refund
// decisions.
type TaskRepository interface {
	CreateAll(ctx context.Context, tasks []*SceneTask) error
	GetByID(ctx context.Context, taskID string) (*SceneTask, error)
	ListByJobID(ctx context.Context, jobID string) ([]SceneTask, error)
	ListByStatus(ctx context.Context, status TaskStatus) ([]SceneTask, error)
	Transition(ctx context.Context, taskID string, from, to TaskStatus, patch TaskPatch) (bool, error)
}

// LedgerRepository appends credit transactions and maintains the cached
// balance atomically. Append rejects a negative amount that would take the
// balance below zero with ErrInsufficientCredits; two concurrent debits for
// the same user must not race past that check. On success the transaction's
// BalanceAfter is populated and the new balance returned.
type LedgerRepository interface {
	Balance(ctx context.Context, userID string) (int, error)
	Append(ctx context.Context, tx *CreditTransaction) (int, error)
	History(ctx context.Context, userID string, limit, offset int) ([]CreditTransaction, error)
}

// UserRepository defines access to user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID string) (*User, error)
}
