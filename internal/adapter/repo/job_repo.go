// Package repo holds the PostgreSQL implementations of the domain
// repositories, backed by a pgx connection pool.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, product_type, requested_scenes, style_id, injection_override, provider_override, product_image_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()));
`
	var createdAt *time.Time
	if !job.CreatedAt.IsZero() {
		createdAt = &job.CreatedAt
	}
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.ProductType,
		job.RequestedScenes,
		job.StyleID,
		string(job.InjectionOverride),
		job.ProviderOverride,
		job.ProductImageKey,
		createdAt,
	)
	return err
}

func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, user_id, product_type, requested_scenes, style_id, injection_override, provider_override, product_image_key, created_at, completed_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	var override string
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.ProductType,
		&job.RequestedScenes,
		&job.StyleID,
		&override,
		&job.ProviderOverride,
		&job.ProductImageKey,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.InjectionOverride = domain.InjectionLevel(override)
	return &job, nil
}

func (r *JobRepositoryPG) SetCompleted(ctx context.Context, jobID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs SET completed_at = $2 WHERE id = $1;`, jobID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
