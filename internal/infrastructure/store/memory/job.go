package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
	"fixifox/internal/infrastructure/metrics"
)

// JobRepo is a process-local JobRepository used when no database is
// configured. Jobs are copied in and out so callers never share state.
type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]entity.Job
}

var _ repository.JobRepository = (*JobRepo)(nil)

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]entity.Job)}
}

func (r *JobRepo) Create(ctx context.Context, job *entity.Job) error {
	metrics.IncDBOp("memory", "put")

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = *job
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	metrics.IncDBOp("memory", "get")

	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &job, nil
}

func (r *JobRepo) List(ctx context.Context) ([]*entity.Job, error) {
	metrics.IncDBOp("memory", "list")
	return r.filter(func(entity.Job) bool { return true }), nil
}

func (r *JobRepo) ListByStatus(ctx context.Context, status entity.JobStatus) ([]*entity.Job, error) {
	metrics.IncDBOp("memory", "list")
	return r.filter(func(j entity.Job) bool { return j.Status == status }), nil
}

// filter returns matching jobs oldest first.
func (r *JobRepo) filter(keep func(entity.Job) bool) []*entity.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if keep(j) {
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

func (r *JobRepo) Update(ctx context.Context, job *entity.Job) error {
	metrics.IncDBOp("memory", "put")

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	r.jobs[job.ID] = *job
	return nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error {
	metrics.IncDBOp("memory", "put")

	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.UpdateStatus(status)
	r.jobs[id] = job
	return nil
}

func (r *JobRepo) Delete(ctx context.Context, id string) error {
	metrics.IncDBOp("memory", "delete")

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *JobRepo) CountByStatus(ctx context.Context, status entity.JobStatus) (int, error) {
	metrics.IncDBOp("memory", "count")

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, j := range r.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *JobRepo) ClaimNext(ctx context.Context) (*entity.Job, error) {
	metrics.IncDBOp("memory", "claim")

	r.mu.Lock()
	defer r.mu.Unlock()
	var next *entity.Job
	for _, j := range r.jobs {
		if j.Status != entity.JobStatusPending {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = &j
		}
	}
	if next == nil {
		return nil, repository.ErrNotFound
	}
	next.UpdateStatus(entity.JobStatusRunning)
	r.jobs[next.ID] = *next
	return next, nil
}
