package repository

import (
	"context"

	"fixifox/internal/domain/entity"
)

// ArtifactRepository stores files produced by finished jobs.
type ArtifactRepository interface {
	// SaveArtifacts replaces whatever was stored for jobID.
	SaveArtifacts(ctx context.Context, jobID string, artifacts []*entity.Artifact) error
	GetArtifacts(ctx context.Context, jobID string) ([]*entity.Artifact, error)
	ListJobIDs(ctx context.Context) ([]string, error)
	DeleteArtifacts(ctx context.Context, jobID string) error
}
