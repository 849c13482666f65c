// Package scheduler orchestrates generation jobs: it admits scene tasks
// under a global concurrency cap, debits credits exactly once per unit of
// work, drives the task state machine and aggregates partial failures.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"server/internal/catalog"
	"server/internal/domain"
	"server/internal/ledger"
	"server/internal/prompt"
	"server/internal/provider"
	"server/internal/storage"
)

// Config bounds the scheduler's behavior. Zero values fall back to the
// documented defaults.
type Config struct {
	MaxConcurrent   int64
	MaxScenesPerJob int
	CreditPerImage  int
	Retry           RetryPolicy
}

const (
	defaultMaxConcurrent   = 5
	defaultMaxScenesPerJob = 10
	defaultCreditPerImage  = 1
)

// Deps are the collaborators injected at construction. No hidden globals:
// the registries are built once in main and passed down.
type Deps struct {
	Jobs      domain.JobRepository
	Tasks     domain.TaskRepository
	Ledger    *ledger.Service
	Providers *provider.Registry
	Catalog   *catalog.Registry
	Store     *storage.FileStore
	Logger    zerolog.Logger
}

// Scheduler is the single-process job orchestrator. One weighted semaphore
// bounds how many scene tasks run at once across all jobs and users.
type Scheduler struct {
	cfg    Config
	deps   Deps
	sem    *semaphore.Weighted
	broker *Broker

	open      atomic.Bool
	cancelled sync.Map // jobID -> struct{}
	wg        sync.WaitGroup
	baseCtx   context.Context
	stop      context.CancelFunc
}

func New(cfg Config, deps Deps) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxScenesPerJob <= 0 {
		cfg.MaxScenesPerJob = defaultMaxScenesPerJob
	}
	if cfg.CreditPerImage <= 0 {
		cfg.CreditPerImage = defaultCreditPerImage
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		deps:    deps,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		broker:  NewBroker(),
		baseCtx: baseCtx,
		stop:    stop,
	}
}

// Open starts accepting submissions. Called after crash recovery has
// reconciled stale tasks; submissions before that fail.
func (s *Scheduler) Open() { s.open.Store(true) }

// Shutdown stops accepting submissions, cancels in-flight generation and
// waits for task bookkeeping to settle or ctx to expire. Tasks still running
// at exit are reconciled by the recovery pass on next startup.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.open.Store(false)
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe exposes the task transition event stream.
func (s *Scheduler) Subscribe() (<-chan TaskEvent, func()) {
	return s.broker.Subscribe()
}

// SubmitRequest is a validated-at-the-edge job submission. The product
// image has already been uploaded and stored by the caller.
type SubmitRequest struct {
	UserID          string
	ProductType     string
	Scenes          []string
	StyleID         string
	InjectionLevel  string
	Provider        string
	ProductImageKey string
}

// Submit validates the request, persists the job with one queued task per
// scene and starts the fan-out. It returns as soon as the job is accepted;
// progress is observable through Status and Subscribe.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if !s.open.Load() {
		return nil, domain.ErrSchedulerClosed
	}
	if req.UserID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "required"}
	}
	if len(req.Scenes) == 0 {
		return nil, &domain.ValidationError{Field: "scenes", Reason: "at least one scene is required"}
	}
	if len(req.Scenes) > s.cfg.MaxScenesPerJob {
		return nil, &domain.ValidationError{Field: "scenes", Reason: fmt.Sprintf("at most %d scenes per job", s.cfg.MaxScenesPerJob)}
	}
	if req.ProductImageKey == "" {
		return nil, &domain.ValidationError{Field: "product_image_ref", Reason: "required"}
	}
	seen := make(map[string]struct{}, len(req.Scenes))
	for _, scene := range req.Scenes {
		if _, dup := seen[scene]; dup {
			return nil, &domain.ValidationError{Field: "scenes", Reason: fmt.Sprintf("scene %q requested twice", scene)}
		}
		seen[scene] = struct{}{}
		if _, err := s.deps.Catalog.Template(req.ProductType, scene); err != nil {
			return nil, err
		}
	}
	if _, err := s.deps.Catalog.Style(req.StyleID); err != nil {
		return nil, err
	}
	var override domain.InjectionLevel
	if req.InjectionLevel != "" {
		level, err := domain.ParseInjectionLevel(req.InjectionLevel)
		if err != nil {
			return nil, err
		}
		override = level
	}
	if req.Provider != "" {
		if _, err := s.deps.Providers.Get(req.Provider); err != nil {
			return nil, err
		}
	}

	// Admission-time balance check: the user must afford at least one scene.
	// Each task still debits individually, so a job can run out of credits
	// midway and end as a partial success.
	ok, err := s.deps.Ledger.CheckBalance(ctx, req.UserID, s.cfg.CreditPerImage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInsufficientCredits
	}

	job := &domain.Job{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		ProductType:       req.ProductType,
		RequestedScenes:   append([]string(nil), req.Scenes...),
		StyleID:           req.StyleID,
		InjectionOverride: override,
		ProviderOverride:  req.Provider,
		ProductImageKey:   req.ProductImageKey,
		CreatedAt:         time.Now().UTC(),
	}
	tasks := make([]*domain.SceneTask, len(req.Scenes))
	for i, scene := range req.Scenes {
		tasks[i] = &domain.SceneTask{
			ID:              uuid.NewString(),
			JobID:           job.ID,
			SceneTemplateID: scene,
			Status:          domain.TaskStatusQueued,
		}
	}
	if err := s.deps.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	if err := s.deps.Tasks.CreateAll(ctx, tasks); err != nil {
		return nil, fmt.Errorf("persist tasks: %w", err)
	}

	s.deps.Logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("scenes", len(tasks)).
		Msg("scheduler: job accepted")

	s.wg.Add(1)
	go s.runJob(job, tasks)
	return job, nil
}

// JobView is the pull-side status contract.
type JobView struct {
	Job    domain.Job
	Status domain.JobStatus
	Tasks  []domain.SceneTask
}

// Status reports the job and its tasks, ordered as requested. The aggregate
// status is derived on every call, never stored.
func (s *Scheduler) Status(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.deps.Tasks.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	order := make(map[string]int, len(job.RequestedScenes))
	for i, scene := range job.RequestedScenes {
		order[scene] = i
	}
	sort.Slice(tasks, func(i, j int) bool {
		oi, oj := order[tasks[i].SceneTemplateID], order[tasks[j].SceneTemplateID]
		if oi != oj {
			return oi < oj
		}
		return tasks[i].ID < tasks[j].ID
	})
	return &JobView{Job: *job, Status: domain.AggregateStatus(tasks), Tasks: tasks}, nil
}

// Cancel is best effort: queued tasks move straight to cancelled without
// ever being debited; running tasks finish or fail naturally.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	job, err := s.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	s.cancelled.Store(job.ID, struct{}{})
	tasks, err := s.deps.Tasks.ListByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	active := false
	for i := range tasks {
		task := tasks[i]
		switch task.Status {
		case domain.TaskStatusQueued:
			ok, _ := s.transition(ctx, &task, domain.TaskStatusQueued, domain.TaskStatusCancelled, domain.TaskPatch{})
			if !ok {
				active = true
			}
		case domain.TaskStatusRunning:
			active = true
		}
	}
	// A cancel that lands after the job settled has no runJob goroutine
	// left to clean up the marker.
	if !active {
		s.cancelled.Delete(job.ID)
	}
	return nil
}

func (s *Scheduler) isCancelled(jobID string) bool {
	_, ok := s.cancelled.Load(jobID)
	return ok
}

func (s *Scheduler) runJob(job *domain.Job, tasks []*domain.SceneTask) {
	defer s.wg.Done()
	defer s.cancelled.Delete(job.ID)

	g := new(errgroup.Group)
	for i := range tasks {
		task := tasks[i]
		g.Go(func() error {
			return s.runTask(s.baseCtx, job, task)
		})
	}
	if err := g.Wait(); err != nil {
		s.deps.Logger.Debug().Err(err).Str("job_id", job.ID).Msg("scheduler: job finished with task errors")
	}

	// Mark completion only when every task actually reached a terminal
	// state; a shutdown can leave tasks queued for the next process.
	ctx := context.WithoutCancel(s.baseCtx)
	final, err := s.deps.Tasks.ListByJobID(ctx, job.ID)
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: load tasks for completion")
		return
	}
	status := domain.AggregateStatus(final)
	if status == domain.JobStatusRunning {
		return
	}
	if err := s.deps.Jobs.SetCompleted(ctx, job.ID, time.Now().UTC()); err != nil {
		s.deps.Logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: mark job completed")
	}
	s.deps.Logger.Info().Str("job_id", job.ID).Str("status", string(status)).Msg("scheduler: job completed")
}

func (s *Scheduler) runTask(ctx context.Context, job *domain.Job, task *domain.SceneTask) error {
	// Writes must land even when generation was cut short by shutdown.
	persistCtx := context.WithoutCancel(ctx)

	if s.isCancelled(job.ID) {
		s.transition(persistCtx, task, domain.TaskStatusQueued, domain.TaskStatusCancelled, domain.TaskPatch{})
		return nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		// Shutdown while waiting for a slot; the task stays queued.
		return err
	}
	defer s.sem.Release(1)
	if s.isCancelled(job.ID) {
		s.transition(persistCtx, task, domain.TaskStatusQueued, domain.TaskStatusCancelled, domain.TaskPatch{})
		return nil
	}

	ref := ledger.Ref{JobID: job.ID, TaskID: task.ID}
	scene := prompt.HumanizeID(task.SceneTemplateID)
	if _, err := s.deps.Ledger.Debit(persistCtx, job.UserID, s.cfg.CreditPerImage, "Scene generation: "+scene, ref); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			// Nothing was debited, so no refund follows this failure.
			s.transition(persistCtx, task, domain.TaskStatusQueued, domain.TaskStatusFailed, domain.TaskPatch{ErrorKind: domain.ErrorKindInsufficientCredits})
			return err
		}
		s.transition(persistCtx, task, domain.TaskStatusQueued, domain.TaskStatusFailed, domain.TaskPatch{ErrorKind: domain.ErrorKindInternal})
		return err
	}

	ok, err := s.transition(persistCtx, task, domain.TaskStatusQueued, domain.TaskStatusRunning, domain.TaskPatch{})
	if err != nil {
		return err
	}
	if !ok {
		// Lost to a concurrent cancel after the debit: balance the ledger.
		if _, err := s.deps.Ledger.Refund(persistCtx, job.UserID, s.cfg.CreditPerImage, "Refund (cancelled): "+scene, ref); err != nil {
			s.deps.Logger.Error().Err(err).Str("task_id", task.ID).Msg("scheduler: refund after lost admission failed")
		}
		return nil
	}

	outputKey, providerName, attempts, genErr := s.generate(ctx, job, task)
	if genErr != nil {
		s.failAndRefund(persistCtx, job, task, classifyError(genErr), attempts, ref, genErr)
		return genErr
	}

	patch := domain.TaskPatch{OutputPath: outputKey, ProviderUsed: providerName, AttemptCount: attempts}
	if _, err := s.transition(persistCtx, task, domain.TaskStatusRunning, domain.TaskStatusSucceeded, patch); err != nil {
		return err
	}
	return nil
}

// generate resolves configuration, calls the provider under the retry
// policy and persists the output artifact. It returns the storage key, the
// provider used and how many attempts were consumed.
func (s *Scheduler) generate(ctx context.Context, job *domain.Job, task *domain.SceneTask) (string, string, int, error) {
	tpl, err := s.deps.Catalog.Template(job.ProductType, task.SceneTemplateID)
	if err != nil {
		return "", "", 0, err
	}
	style, err := s.deps.Catalog.Style(job.StyleID)
	if err != nil {
		return "", "", 0, err
	}
	assembly, err := prompt.Assemble(tpl, style, job.InjectionOverride)
	if err != nil {
		return "", "", 0, err
	}
	gen, err := s.selectProvider(job.ProviderOverride, tpl.RecommendedProvider)
	if err != nil {
		return "", "", 0, err
	}
	source, err := s.deps.Store.Read(ctx, job.ProductImageKey)
	if err != nil {
		return "", gen.Name(), 0, domain.NewConfigurationError("product image %q unavailable: %v", job.ProductImageKey, err)
	}

	req := provider.GenerateRequest{
		SourceImage:    source,
		SourceMIME:     http.DetectContentType(source),
		Prompt:         assembly.Prompt,
		NegativePrompt: assembly.NegativePrompt,
		AspectRatio:    assembly.AspectRatio,
		RequestID:      task.ID,
	}
	var asset *provider.Asset
	attempt := 0
	for {
		attempt++
		asset, err = gen.Generate(ctx, req)
		if err == nil {
			break
		}
		s.deps.Logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Str("provider", gen.Name()).
			Int("attempt", attempt).
			Msg("scheduler: generation attempt failed")
		if !s.cfg.Retry.ShouldRetry(err, attempt) {
			return "", gen.Name(), attempt, err
		}
		if waitErr := s.cfg.Retry.Wait(ctx, attempt); waitErr != nil {
			return "", gen.Name(), attempt, err
		}
	}

	key := fmt.Sprintf("generated/%s/%s%s", job.ID, task.ID, provider.ExtensionForFormat(asset.Format))
	if _, err := s.deps.Store.Write(context.WithoutCancel(ctx), key, asset.Data); err != nil {
		return "", gen.Name(), attempt, fmt.Errorf("persist output: %w", err)
	}
	return key, gen.Name(), attempt, nil
}

// selectProvider applies the precedence: job override, then the template's
// recommendation when deployed, then the registry default.
func (s *Scheduler) selectProvider(override, recommended string) (provider.Generator, error) {
	if override != "" {
		return s.deps.Providers.Get(override)
	}
	if recommended != "" {
		if gen, err := s.deps.Providers.Get(recommended); err == nil {
			return gen, nil
		}
	}
	return s.deps.Providers.Default()
}

// failAndRefund moves a running task to failed and issues the compensating
// refund. The running->failed compare-and-set decides the refund exactly
// once even if two paths race here.
func (s *Scheduler) failAndRefund(ctx context.Context, job *domain.Job, task *domain.SceneTask, kind domain.ErrorKind, attempts int, ref ledger.Ref, cause error) {
	ok, err := s.transition(ctx, task, domain.TaskStatusRunning, domain.TaskStatusFailed, domain.TaskPatch{ErrorKind: kind, AttemptCount: attempts})
	if err != nil || !ok {
		return
	}
	s.deps.Logger.Warn().
		Err(cause).
		Str("task_id", task.ID).
		Str("error_kind", string(kind)).
		Msg("scheduler: task failed")
	scene := prompt.HumanizeID(task.SceneTemplateID)
	if _, err := s.deps.Ledger.Refund(ctx, job.UserID, s.cfg.CreditPerImage, "Refund: "+scene, ref); err != nil {
		// Task stays failed; the missing refund shows up in the ledger audit.
		s.deps.Logger.Error().Err(err).Str("task_id", task.ID).Msg("scheduler: refund failed")
		return
	}
	s.transition(ctx, task, domain.TaskStatusFailed, domain.TaskStatusRefunded, domain.TaskPatch{})
}

// transition applies a guarded status change and publishes the event when it
// took effect.
func (s *Scheduler) transition(ctx context.Context, task *domain.SceneTask, from, to domain.TaskStatus, patch domain.TaskPatch) (bool, error) {
	ok, err := s.deps.Tasks.Transition(ctx, task.ID, from, to, patch)
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("task_id", task.ID).Msgf("scheduler: transition %s -> %s", from, to)
		return false, err
	}
	if !ok {
		return false, nil
	}
	task.Status = to
	s.broker.Publish(TaskEvent{
		JobID:     task.JobID,
		TaskID:    task.ID,
		SceneID:   task.SceneTemplateID,
		From:      from,
		To:        to,
		ErrorKind: patch.ErrorKind,
		At:        time.Now().UTC(),
	})
	return true, nil
}

func classifyError(err error) domain.ErrorKind {
	var cfgErr *domain.ConfigurationError
	var nfErr *provider.NotFoundError
	if errors.As(err, &cfgErr) || errors.As(err, &nfErr) {
		return domain.ErrorKindConfiguration
	}
	var provErr *provider.ProviderError
	if errors.As(err, &provErr) {
		return domain.ErrorKindProviderFailure
	}
	return domain.ErrorKindInternal
}
