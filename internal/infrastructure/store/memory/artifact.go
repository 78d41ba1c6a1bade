package memory

import (
	"context"
	"sort"
	"sync"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
)

type ArtifactRepo struct {
	mu        sync.RWMutex
	artifacts map[string][]entity.Artifact
}

var _ repository.ArtifactRepository = (*ArtifactRepo)(nil)

func NewArtifactRepo() *ArtifactRepo {
	return &ArtifactRepo{artifacts: make(map[string][]entity.Artifact)}
}

func (r *ArtifactRepo) SaveArtifacts(ctx context.Context, jobID string, artifacts []*entity.Artifact) error {
	stored := make([]entity.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		c := *a
		c.JobID = jobID
		stored = append(stored, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[jobID] = stored
	return nil
}

func (r *ArtifactRepo) GetArtifacts(ctx context.Context, jobID string) ([]*entity.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.artifacts[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := make([]*entity.Artifact, len(stored))
	for i := range stored {
		a := stored[i]
		out[i] = &a
	}
	return out, nil
}

func (r *ArtifactRepo) ListJobIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.artifacts))
	for id := range r.artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *ArtifactRepo) DeleteArtifacts(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.artifacts, jobID)
	return nil
}
