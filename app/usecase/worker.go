package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
	"fixifox/internal/infrastructure/metrics"
)

type WorkerConfig struct {
	PollInterval time.Duration
	// JobTimeout bounds one job, on top of the chain's own time budget.
	JobTimeout time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 2 * time.Second,
		JobTimeout:   2 * entity.DefaultTimeBudget,
	}
}

// JobWorker polls pending jobs, runs them through the assistant and stores
// the result and artifacts.
type JobWorker struct {
	jobsRepo  repository.JobRepository
	assistant *AssistantService
	artifacts *ArtifactService
	events    *JobEvents
	logger    *slog.Logger

	pollInterval time.Duration
	jobTimeout   time.Duration

	// control
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

func NewJobWorker(
	jr repository.JobRepository,
	assistant *AssistantService,
	artifacts *ArtifactService,
	events *JobEvents,
	cfg WorkerConfig,
	logger *slog.Logger,
) *JobWorker {
	def := DefaultWorkerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	return &JobWorker{
		jobsRepo:     jr,
		assistant:    assistant,
		artifacts:    artifacts,
		events:       events,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

func (w *JobWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		w.logger.Info("JobWorker started", "interval", w.pollInterval)

		if err := w.runOnce(ctx); err != nil {
			w.logger.Warn("initial runOnce failed", "err", err)
		}

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("JobWorker context canceled")
				return
			case <-w.stop:
				w.logger.Info("JobWorker stopped by Stop()")
				return
			case <-ticker.C:
				if err := w.runOnce(ctx); err != nil {
					w.logger.Warn("runOnce failed", "err", err)
				}
			}
		}
	}()
}

// Stop waits for the job in progress, if any. It must follow Start.
func (w *JobWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
	w.logger.Info("JobWorker fully stopped")
}

// runOnce drains the pending queue one claimed job at a time.
func (w *JobWorker) runOnce(ctx context.Context) error {
	defer w.refreshActive(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		default:
		}

		job, err := w.jobsRepo.ClaimNext(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim pending job: %w", err)
		}

		metrics.IncJobStatusChange(string(entity.JobStatusPending), string(entity.JobStatusRunning))
		w.events.Publish(JobEvent{JobID: job.ID, Status: entity.JobStatusRunning})

		procCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
		err = w.processJob(procCtx, job)
		cancel()
		if err != nil {
			w.logger.Error("processJob failed", "job_id", job.ID, "err", err)
		}
	}
}

// processJob runs the task, saves artifacts and sets the final status.
// A failed chain is a normal job outcome, not an error.
func (w *JobWorker) processJob(ctx context.Context, job *entity.Job) error {
	startTime := time.Now()
	jobID := job.ID

	w.logger.Info("start processing job", "job_id", jobID, "task", job.Task)

	result, err := w.assistant.Run(ctx, job.Task, job.Input)
	if err != nil {
		w.finish(ctx, job, entity.JobStatusFailed, err.Error(), startTime)
		return fmt.Errorf("run task: %w", err)
	}
	job.Result = result

	if !result.Outcome.OK {
		w.finish(ctx, job, entity.JobStatusFailed, result.Outcome.UserMessage, startTime)
		return nil
	}

	artifacts, err := ArtifactsFor(jobID, result)
	if err == nil {
		err = w.artifacts.Save(ctx, jobID, artifacts)
	}
	if err != nil {
		w.finish(ctx, job, entity.JobStatusFailed, "could not store the result", startTime)
		return fmt.Errorf("save artifacts: %w", err)
	}

	w.finish(ctx, job, entity.JobStatusDone, "", startTime)
	return nil
}

func (w *JobWorker) finish(ctx context.Context, job *entity.Job, status entity.JobStatus, reason string, startTime time.Time) {
	job.UpdateStatus(status)
	// the job context may have expired with the chain; store the outcome anyway
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.jobsRepo.Update(storeCtx, job); err != nil {
		metrics.IncError("job_worker", "update_error")
		w.logger.Warn("failed to store job result", "job_id", job.ID, "status", status, "err", err)
	}

	metrics.IncJobStatusChange(string(entity.JobStatusRunning), string(status))
	metrics.ObserveJobDuration(time.Since(startTime))
	w.events.Publish(JobEvent{JobID: job.ID, Status: status, Error: reason})
	w.logger.Info("job processed", "job_id", job.ID, "status", status, "duration", time.Since(startTime))
}

func (w *JobWorker) refreshActive(ctx context.Context) {
	n, err := w.jobsRepo.CountByStatus(ctx, entity.JobStatusPending)
	if err != nil {
		w.logger.Debug("count pending jobs", "err", err)
		return
	}
	metrics.SetActiveJobs(n)
}
