package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UserRepositoryPG implements domain.UserRepository.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) error {
	query := `
INSERT INTO users (id, email, name, credit_balance, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW());
`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.Name, user.CreditBalance)
	return err
}

func (r *UserRepositoryPG) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	query := `
SELECT id, email, name, credit_balance, created_at, updated_at
FROM users
WHERE id = $1;
`
	var user domain.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreditBalance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
