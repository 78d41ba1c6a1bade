package repository

import (
	"context"
	"errors"

	"fixifox/internal/domain/entity"
)

var ErrNotFound = errors.New("not found")

// JobRepository is the storage of async assistant jobs.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	// GetByID returns ErrNotFound when no job has the id.
	GetByID(ctx context.Context, id string) (*entity.Job, error)
	List(ctx context.Context) ([]*entity.Job, error)
	ListByStatus(ctx context.Context, status entity.JobStatus) ([]*entity.Job, error)
	Update(ctx context.Context, job *entity.Job) error
	UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status entity.JobStatus) (int, error)
	// ClaimNext atomically moves the oldest pending job to running and
	// returns it, or ErrNotFound when nothing is pending.
	ClaimNext(ctx context.Context) (*entity.Job, error)
}
