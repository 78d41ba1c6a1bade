package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
	"fixifox/internal/infrastructure/metrics"
)

const metadataFile = "metadata.json"

// FileRepository keeps each job's artifacts in <base>/<job id>/ next to a
// metadata.json index.
type FileRepository struct {
	basePath string
}

var _ repository.ArtifactRepository = (*FileRepository)(nil)

func NewFileRepository(basePath string) (*FileRepository, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", basePath)
	}

	return &FileRepository{basePath: basePath}, nil
}

func (r *FileRepository) BasePath() string {
	return r.basePath
}

type metadata struct {
	JobID     string             `json:"job_id"`
	CreatedAt time.Time          `json:"created_at"`
	Count     int                `json:"files_count"`
	Files     []*entity.Artifact `json:"files"`
}

func (r *FileRepository) SaveArtifacts(ctx context.Context, jobID string, artifacts []*entity.Artifact) error {
	metrics.IncDBOp("filesystem", "put")

	jobDir, err := r.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	index := make([]*entity.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		name, err := cleanName(a.Name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(jobDir, name), []byte(a.Content), 0o644); err != nil {
			metrics.IncError("filesystem", "write_artifact")
			return fmt.Errorf("failed to write artifact %s: %w", name, err)
		}
		entry := *a
		entry.JobID = jobID
		entry.Name = name
		entry.Content = ""
		index = append(index, &entry)
	}

	meta := metadata{
		JobID:     jobID,
		CreatedAt: time.Now().UTC(),
		Count:     len(index),
		Files:     index,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, metadataFile), data, 0o644); err != nil {
		metrics.IncError("filesystem", "write_metadata")
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (r *FileRepository) GetArtifacts(ctx context.Context, jobID string) ([]*entity.Artifact, error) {
	metrics.IncDBOp("filesystem", "get")

	jobDir, err := r.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(jobDir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifacts for job %s: %w", jobID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	for _, a := range meta.Files {
		content, err := os.ReadFile(filepath.Join(jobDir, a.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", a.Name, err)
		}
		a.Content = string(content)
	}
	return meta.Files, nil
}

func (r *FileRepository) ListJobIDs(ctx context.Context) ([]string, error) {
	metrics.IncDBOp("filesystem", "list")

	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.basePath, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.basePath, e.Name(), metadataFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *FileRepository) DeleteArtifacts(ctx context.Context, jobID string) error {
	metrics.IncDBOp("filesystem", "delete")

	jobDir, err := r.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to delete job directory: %w", err)
	}
	return nil
}

func (r *FileRepository) jobDir(jobID string) (string, error) {
	name, err := cleanName(jobID)
	if err != nil {
		return "", fmt.Errorf("job id: %w", err)
	}
	return filepath.Join(r.basePath, name), nil
}

var errBadName = errors.New("invalid file name")

// cleanName rejects names that would escape the job directory.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == metadataFile ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", errBadName, name)
	}
	return name, nil
}
