package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
	"fixifox/internal/infrastructure/metrics"
)

type JobUsecase interface {
	CreateJob(ctx context.Context, task entity.Task, in entity.TaskInput) (*entity.Job, error)
	GetJob(ctx context.Context, id string) (*entity.Job, error)
	ListJobs(ctx context.Context) ([]*entity.Job, error)
	CancelJob(ctx context.Context, id string) (*entity.Job, error)
	DeleteJob(ctx context.Context, id string) error
	JobArtifacts(ctx context.Context, id string) ([]*entity.Artifact, error)
}

var _ JobUsecase = (*JobService)(nil)

type JobService struct {
	jobsRepo  repository.JobRepository
	artifacts *ArtifactService
	assistant *AssistantService
	events    *JobEvents
	logger    *slog.Logger
}

func NewJobService(
	jr repository.JobRepository,
	artifacts *ArtifactService,
	assistant *AssistantService,
	events *JobEvents,
	logger *slog.Logger,
) *JobService {
	return &JobService{
		jobsRepo:  jr,
		artifacts: artifacts,
		assistant: assistant,
		events:    events,
		logger:    logger,
	}
}

func (u *JobService) CreateJob(ctx context.Context, task entity.Task, in entity.TaskInput) (*entity.Job, error) {
	if err := u.assistant.Validate(task, in); err != nil {
		return nil, err
	}

	job := entity.NewJob(task, in)
	if err := u.jobsRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.IncJobsCreated()
	u.events.Publish(JobEvent{JobID: job.ID, Status: job.Status})
	u.logger.Info("job created", "job_id", job.ID, "task", task)
	return job, nil
}

func (u *JobService) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	job, err := u.jobsRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(id, err)
	}
	return job, nil
}

func (u *JobService) ListJobs(ctx context.Context) ([]*entity.Job, error) {
	jobs, err := u.jobsRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CancelJob cancels a job that has not been picked up by the worker yet.
func (u *JobService) CancelJob(ctx context.Context, id string) (*entity.Job, error) {
	job, err := u.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusPending {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotActive, id, job.Status)
	}

	if err := u.jobsRepo.UpdateStatus(ctx, id, entity.JobStatusCanceled); err != nil {
		return nil, notFound(id, err)
	}
	metrics.IncJobStatusChange(string(job.Status), string(entity.JobStatusCanceled))
	job.UpdateStatus(entity.JobStatusCanceled)
	u.events.Publish(JobEvent{JobID: id, Status: job.Status})
	return job, nil
}

func (u *JobService) DeleteJob(ctx context.Context, id string) error {
	if _, err := u.GetJob(ctx, id); err != nil {
		return err
	}
	if err := u.artifacts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	if err := u.jobsRepo.Delete(ctx, id); err != nil {
		return notFound(id, err)
	}
	return nil
}

func (u *JobService) JobArtifacts(ctx context.Context, id string) ([]*entity.Artifact, error) {
	if _, err := u.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return u.artifacts.Get(ctx, id)
}

func notFound(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return fmt.Errorf("job %s: %w", id, err)
}
