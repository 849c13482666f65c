// Package recovery reconciles tasks stranded by a process crash. Tasks found
// running at startup can never complete in this process, so they are failed
// and refunded before the scheduler starts accepting work.
package recovery

import (
	"context"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/ledger"
	"server/internal/prompt"
)

type Manager struct {
	jobs           domain.JobRepository
	tasks          domain.TaskRepository
	ledger         *ledger.Service
	creditPerImage int
	logger         zerolog.Logger
}

// NewManager wires the recovery sweep. creditPerImage must match the debit
// the scheduler takes per task so refunds restore the exact amount.
func NewManager(jobs domain.JobRepository, tasks domain.TaskRepository, svc *ledger.Service, creditPerImage int, logger zerolog.Logger) *Manager {
	if creditPerImage <= 0 {
		creditPerImage = 1
	}
	return &Manager{jobs: jobs, tasks: tasks, ledger: svc, creditPerImage: creditPerImage, logger: logger}
}

// RecoverStaleTasks sweeps every task still marked running and settles it as
// failed with a refund. The running->failed compare-and-set makes the sweep
// idempotent: a second pass, or a concurrent one, finds nothing to claim.
func (m *Manager) RecoverStaleTasks(ctx context.Context) (int, error) {
	stale, err := m.tasks.ListByStatus(ctx, domain.TaskStatusRunning)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for i := range stale {
		task := stale[i]
		if err := m.recoverTask(ctx, &task); err != nil {
			m.logger.Error().Err(err).Str("task_id", task.ID).Msg("recovery: skipping task")
			continue
		}
		recovered++
	}
	if recovered > 0 {
		m.logger.Info().Int("recovered", recovered).Msg("recovery: settled orphaned tasks")
	}
	return recovered, nil
}

func (m *Manager) recoverTask(ctx context.Context, task *domain.SceneTask) error {
	job, err := m.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		return err
	}
	patch := domain.TaskPatch{ErrorKind: domain.ErrorKindOrphanedOnRestart}
	claimed, err := m.tasks.Transition(ctx, task.ID, domain.TaskStatusRunning, domain.TaskStatusFailed, patch)
	if err != nil {
		return err
	}
	if !claimed {
		// Someone else settled it already.
		return nil
	}
	scene := prompt.HumanizeID(task.SceneTemplateID)
	ref := ledger.Ref{JobID: job.ID, TaskID: task.ID}
	if _, err := m.ledger.Refund(ctx, job.UserID, m.creditPerImage, "Refund (interrupted): "+scene, ref); err != nil {
		// Leave the task failed; the ledger audit catches the gap.
		return err
	}
	if _, err := m.tasks.Transition(ctx, task.ID, domain.TaskStatusFailed, domain.TaskStatusRefunded, domain.TaskPatch{}); err != nil {
		return err
	}
	m.logger.Info().
		Str("job_id", job.ID).
		Str("task_id", task.ID).
		Msg("recovery: orphaned task refunded")
	return nil
}
