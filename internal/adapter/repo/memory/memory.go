// Package memory provides in-memory implementations of the domain
// repositories. They back the service when no DATABASE_URL is configured
// (local development, CI) and the package tests; semantics mirror the
// PostgreSQL repositories, including the conditional balance update.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

// Store is the shared backing state for all repositories. A single mutex
// serializes every operation, which also makes the debit-then-check sequence
// atomic per user.
type Store struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	jobs   map[string]*domain.Job
	tasks  map[string]*domain.SceneTask
	ledger map[string][]domain.CreditTransaction
}

func NewStore() *Store {
	return &Store{
		users:  make(map[string]*domain.User),
		jobs:   make(map[string]*domain.Job),
		tasks:  make(map[string]*domain.SceneTask),
		ledger: make(map[string][]domain.CreditTransaction),
	}
}

func (s *Store) Jobs() domain.JobRepository      { return &jobRepo{s} }
func (s *Store) Tasks() domain.TaskRepository    { return &taskRepo{s} }
func (s *Store) Ledger() domain.LedgerRepository { return &ledgerRepo{s} }
func (s *Store) Users() domain.UserRepository    { return &userRepo{s} }

type jobRepo struct{ s *Store }

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	cp := cloneJob(job)
	r.s.jobs[job.ID] = &cp
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := cloneJob(job)
	return &cp, nil
}

func (r *jobRepo) SetCompleted(ctx context.Context, jobID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.CompletedAt = &at
	return nil
}

type taskRepo struct{ s *Store }

func (r *taskRepo) CreateAll(ctx context.Context, tasks []*domain.SceneTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	for _, task := range tasks {
		if _, ok := r.s.tasks[task.ID]; ok {
			return fmt.Errorf("task %s already exists", task.ID)
		}
	}
	for _, task := range tasks {
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
		task.UpdatedAt = task.CreatedAt
		cp := *task
		r.s.tasks[task.ID] = &cp
	}
	return nil
}

func (r *taskRepo) GetByID(ctx context.Context, taskID string) (*domain.SceneTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	task, ok := r.s.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (r *taskRepo) ListByJobID(ctx context.Context, jobID string) ([]domain.SceneTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.SceneTask
	for _, task := range r.s.tasks {
		if task.JobID == jobID {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (r *taskRepo) ListByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.SceneTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.SceneTask
	for _, task := range r.s.tasks {
		if task.Status == status {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (r *taskRepo) Transition(ctx context.Context, taskID string, from, to domain.TaskStatus, patch domain.TaskPatch) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("invalid task transition %s -> %s", from, to)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	task, ok := r.s.tasks[taskID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if task.Status != from {
		return false, nil
	}
	task.Status = to
	if patch.OutputPath != "" {
		task.OutputPath = patch.OutputPath
	}
	if patch.ProviderUsed != "" {
		task.ProviderUsed = patch.ProviderUsed
	}
	if patch.ErrorKind != "" {
		task.ErrorKind = patch.ErrorKind
	}
	if patch.AttemptCount > 0 {
		task.AttemptCount = patch.AttemptCount
	}
	task.UpdatedAt = time.Now().UTC()
	return true, nil
}

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) Balance(ctx context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return user.CreditBalance, nil
}

func (r *ledgerRepo) Append(ctx context.Context, tx *domain.CreditTransaction) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[tx.UserID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	next := user.CreditBalance + tx.Amount
	if next < 0 {
		return user.CreditBalance, domain.ErrInsufficientCredits
	}
	user.CreditBalance = next
	user.UpdatedAt = time.Now().UTC()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.BalanceAfter = next
	r.s.ledger[tx.UserID] = append(r.s.ledger[tx.UserID], *tx)
	return next, nil
}

func (r *ledgerRepo) History(ctx context.Context, userID string, limit, offset int) ([]domain.CreditTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entries := r.s.ledger[userID]
	out := make([]domain.CreditTransaction, 0, limit)
	// Newest first.
	for i := len(entries) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func cloneJob(job *domain.Job) domain.Job {
	cp := *job
	cp.RequestedScenes = append([]string(nil), job.RequestedScenes...)
	if job.CompletedAt != nil {
		at := *job.CompletedAt
		cp.CompletedAt = &at
	}
	return cp
}
