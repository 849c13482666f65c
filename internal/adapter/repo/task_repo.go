package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository. Transition is a
// conditional update so the previous status acts as the compare in a
// compare-and-set; two racing writers cannot both claim the same edge.
type TaskRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepositoryPG {
	return &TaskRepositoryPG{pool: pool}
}

const taskColumns = `id, job_id, scene_template_id, status, attempt_count, output_path, provider_used, error_kind, created_at, updated_at`

func (r *TaskRepositoryPG) CreateAll(ctx context.Context, tasks []*domain.SceneTask) error {
	if len(tasks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
INSERT INTO scene_tasks (id, job_id, scene_template_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW());
`
	for _, task := range tasks {
		batch.Queue(query, task.ID, task.JobID, task.SceneTemplateID, string(task.Status))
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range tasks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert scene task: %w", err)
		}
	}
	return nil
}

func (r *TaskRepositoryPG) GetByID(ctx context.Context, taskID string) (*domain.SceneTask, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM scene_tasks WHERE id = $1;`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *TaskRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.SceneTask, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM scene_tasks WHERE job_id = $1 ORDER BY created_at, id;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *TaskRepositoryPG) ListByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.SceneTask, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM scene_tasks WHERE status = $1 ORDER BY created_at, id;`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *TaskRepositoryPG) Transition(ctx context.Context, taskID string, from, to domain.TaskStatus, patch domain.TaskPatch) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("invalid task transition %s -> %s", from, to)
	}
	query := `
UPDATE scene_tasks
SET status = $3,
    output_path = COALESCE(NULLIF($4, ''), output_path),
    provider_used = COALESCE(NULLIF($5, ''), provider_used),
    error_kind = COALESCE(NULLIF($6, ''), error_kind),
    attempt_count = GREATEST(attempt_count, $7),
    updated_at = NOW()
WHERE id = $1 AND status = $2;
`
	tag, err := r.pool.Exec(ctx, query,
		taskID,
		string(from),
		string(to),
		patch.OutputPath,
		patch.ProviderUsed,
		string(patch.ErrorKind),
		patch.AttemptCount,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanTask(row pgx.Row) (*domain.SceneTask, error) {
	var task domain.SceneTask
	var status, errorKind string
	if err := row.Scan(
		&task.ID,
		&task.JobID,
		&task.SceneTemplateID,
		&status,
		&task.AttemptCount,
		&task.OutputPath,
		&task.ProviderUsed,
		&errorKind,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(status)
	task.ErrorKind = domain.ErrorKind(errorKind)
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]domain.SceneTask, error) {
	var out []domain.SceneTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}
