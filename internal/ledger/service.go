// Package ledger implements the per-user credit ledger: an append-only
// transaction log with a cached balance that must always equal the running
// sum of amounts.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Ref links a transaction to the work that caused it.
type Ref struct {
	JobID  string
	TaskID string
}

// Service exposes the ledger operations consumed by the scheduler, the
// recovery manager and the billing endpoints. Atomicity of the
// check-then-debit sequence is delegated to the repository (a conditional
// update in PostgreSQL, a mutex in the memory store), so concurrent debits
// for one user cannot race past a stale balance snapshot.
type Service struct {
	repo   domain.LedgerRepository
	logger zerolog.Logger
}

func NewService(repo domain.LedgerRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CheckBalance reports whether the user's committed balance covers required.
func (s *Service) CheckBalance(ctx context.Context, userID string, required int) (bool, error) {
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

// Debit removes amount credits. Fails with domain.ErrInsufficientCredits if
// the balance would go negative; nothing is appended in that case.
func (s *Service) Debit(ctx context.Context, userID string, amount int, description string, ref Ref) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	tx := &domain.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      -amount,
		Description: description,
		JobID:       ref.JobID,
		TaskID:      ref.TaskID,
	}
	balance, err := s.repo.Append(ctx, tx)
	if err != nil {
		return balance, err
	}
	s.logger.Debug().Str("user_id", userID).Str("task_id", ref.TaskID).Int("balance", balance).Msg("ledger: debit")
	return balance, nil
}

// Refund returns amount credits. Refunds are never blocked by balance.
// The ledger does not deduplicate by task: issuing at most one refund per
// task is the caller's responsibility, enforced upstream by the task status
// compare-and-set.
func (s *Service) Refund(ctx context.Context, userID string, amount int, description string, ref Ref) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	tx := &domain.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Description: description,
		JobID:       ref.JobID,
		TaskID:      ref.TaskID,
	}
	balance, err := s.repo.Append(ctx, tx)
	if err != nil {
		return balance, err
	}
	s.logger.Info().Str("user_id", userID).Str("task_id", ref.TaskID).Int("balance", balance).Msg("ledger: refund")
	return balance, nil
}

// Grant adds credits outside any job, e.g. the signup allowance.
func (s *Service) Grant(ctx context.Context, userID string, amount int, description string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	return s.repo.Append(ctx, &domain.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Description: description,
	})
}

// Balance returns the cached balance.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return s.repo.Balance(ctx, userID)
}

// History lists transactions newest first. Limit is clamped to a sane page
// size; offset skips that many newest entries.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.History(ctx, userID, limit, offset)
}
