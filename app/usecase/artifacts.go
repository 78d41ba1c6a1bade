package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
)

// ArtifactService writes job artifacts to a primary repository and
// best-effort copies to mirrors (e.g. local files next to Mongo).
type ArtifactService struct {
	primary repository.ArtifactRepository
	mirrors []repository.ArtifactRepository
	logger  *slog.Logger
}

func NewArtifactService(primary repository.ArtifactRepository, logger *slog.Logger, mirrors ...repository.ArtifactRepository) *ArtifactService {
	return &ArtifactService{
		primary: primary,
		mirrors: mirrors,
		logger:  logger,
	}
}

func (s *ArtifactService) Save(ctx context.Context, jobID string, artifacts []*entity.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	if err := s.primary.SaveArtifacts(ctx, jobID, artifacts); err != nil {
		return fmt.Errorf("save artifacts for job %s: %w", jobID, err)
	}
	for _, m := range s.mirrors {
		if err := m.SaveArtifacts(ctx, jobID, artifacts); err != nil {
			s.logger.Error("mirror artifacts failed", "job_id", jobID, "err", err)
		}
	}
	return nil
}

// Get returns an empty slice when the job produced no artifacts.
func (s *ArtifactService) Get(ctx context.Context, jobID string) ([]*entity.Artifact, error) {
	artifacts, err := s.primary.GetArtifacts(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return []*entity.Artifact{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifacts for job %s: %w", jobID, err)
	}
	return artifacts, nil
}

func (s *ArtifactService) Delete(ctx context.Context, jobID string) error {
	if err := s.primary.DeleteArtifacts(ctx, jobID); err != nil {
		return fmt.Errorf("delete artifacts for job %s: %w", jobID, err)
	}
	for _, m := range s.mirrors {
		if err := m.DeleteArtifacts(ctx, jobID); err != nil {
			s.logger.Warn("delete mirrored artifacts failed", "job_id", jobID, "err", err)
		}
	}
	return nil
}

var languageExtensions = map[string]string{
	"python":     "py",
	"go":         "go",
	"javascript": "js",
	"typescript": "ts",
	"java":       "java",
	"rust":       "rs",
	"ruby":       "rb",
	"c":          "c",
	"cpp":        "cpp",
	"csharp":     "cs",
	"hcl":        "tf",
	"bash":       "sh",
	"yaml":       "yaml",
}

// ArtifactsFor turns a successful task result into files. Failed outcomes
// produce none.
func ArtifactsFor(jobID string, result *entity.TaskResult) ([]*entity.Artifact, error) {
	if result == nil || !result.Outcome.OK || result.Outcome.Result == nil {
		return nil, nil
	}
	r := result.Outcome.Result
	now := time.Now().UTC()
	a := &entity.Artifact{
		JobID:     jobID,
		Kind:      r.Kind,
		Language:  r.Language,
		Content:   r.Content,
		CreatedAt: now,
	}

	switch r.Kind {
	case entity.ResultCode:
		ext, ok := languageExtensions[r.Language]
		if !ok {
			ext = "txt"
		}
		a.Name = "fixed." + ext
	case entity.ResultDiagram:
		a.Name = "diagram.mmd"
	case entity.ResultReport:
		data, err := json.MarshalIndent(r.Report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal report: %w", err)
		}
		a.Name = "report.json"
		a.Content = string(data)
	default:
		a.Name = string(result.Task) + ".md"
	}
	return []*entity.Artifact{a}, nil
}
