package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// LedgerRepositoryPG implements domain.LedgerRepository. The balance update
// and the transaction insert share one database transaction, and the update
// is conditional on the balance staying non-negative, so concurrent debits
// for the same user serialize on the row and cannot overdraft.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

func (r *LedgerRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1;`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

func (r *LedgerRepositoryPG) Append(ctx context.Context, tx *domain.CreditTransaction) (int, error) {
	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer dbtx.Rollback(ctx)

	update := `
UPDATE users
SET credit_balance = credit_balance + $2,
    updated_at = NOW()
WHERE id = $1 AND credit_balance + $2 >= 0
RETURNING credit_balance;
`
	var balance int
	err = dbtx.QueryRow(ctx, update, tx.UserID, tx.Amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing user from an overdraft.
		var current int
		if lookupErr := dbtx.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1;`, tx.UserID).Scan(&current); lookupErr != nil {
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				return 0, domain.ErrNotFound
			}
			return 0, lookupErr
		}
		return current, domain.ErrInsufficientCredits
	}
	if err != nil {
		return 0, err
	}

	insert := `
INSERT INTO credit_transactions (id, user_id, amount, balance_after, description, job_id, task_id, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NOW());
`
	if _, err := dbtx.Exec(ctx, insert, tx.ID, tx.UserID, tx.Amount, balance, tx.Description, tx.JobID, tx.TaskID); err != nil {
		return 0, fmt.Errorf("append credit transaction: %w", err)
	}
	if err := dbtx.Commit(ctx); err != nil {
		return 0, err
	}
	tx.BalanceAfter = balance
	return balance, nil
}

func (r *LedgerRepositoryPG) History(ctx context.Context, userID string, limit, offset int) ([]domain.CreditTransaction, error) {
	query := `
SELECT id, user_id, amount, balance_after, description, COALESCE(job_id, ''), COALESCE(task_id, ''), created_at
FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CreditTransaction, 0, limit)
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.BalanceAfter, &tx.Description, &tx.JobID, &tx.TaskID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
