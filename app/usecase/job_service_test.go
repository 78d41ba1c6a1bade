package usecase

import (
	"context"
	"errors"
	"testing"

	"fixifox/internal/domain/entity"
	"fixifox/internal/infrastructure/store/memory"
)

type jobFixture struct {
	jobs      *memory.JobRepo
	artifacts *memory.ArtifactRepo
	gen       *fakeGenerator
	events    *JobEvents
	service   *JobService
	worker    *JobWorker
}

func newJobFixture(outcome entity.GenerationOutcome) *jobFixture {
	f := &jobFixture{
		jobs:      memory.NewJobRepo(),
		artifacts: memory.NewArtifactRepo(),
		gen:       &fakeGenerator{outcome: outcome},
		events:    NewJobEvents(),
	}
	logger := discardLogger()
	assistant := NewAssistantService(f.gen, DefaultAssistantConfig(), logger)
	artifacts := NewArtifactService(f.artifacts, logger)
	f.service = NewJobService(f.jobs, artifacts, assistant, f.events, logger)
	f.worker = NewJobWorker(f.jobs, assistant, artifacts, f.events, WorkerConfig{}, logger)
	return f
}

func TestCreateJobValidates(t *testing.T) {
	f := newJobFixture(entity.GenerationOutcome{})
	ctx := context.Background()

	if _, err := f.service.CreateJob(ctx, entity.TaskFix, entity.TaskInput{Code: " "}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("CreateJob(empty) error = %v, want ErrEmptyInput", err)
	}
	if _, err := f.service.CreateJob(ctx, entity.Task("nope"), entity.TaskInput{Code: "x"}); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("CreateJob(unknown) error = %v, want ErrUnknownTask", err)
	}

	job, err := f.service.CreateJob(ctx, entity.TaskFix, entity.TaskInput{Code: "x = 1"})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.ID == "" || job.Status != entity.JobStatusPending {
		t.Errorf("CreateJob() = %+v", job)
	}
	jobs, err := f.service.ListJobs(ctx)
	if err != nil || len(jobs) != 1 {
		t.Errorf("ListJobs() = %v, %v", jobs, err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	f := newJobFixture(entity.GenerationOutcome{})
	ctx := context.Background()

	if _, err := f.service.GetJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob() error = %v, want ErrJobNotFound", err)
	}
	if err := f.service.DeleteJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("DeleteJob() error = %v, want ErrJobNotFound", err)
	}
	if _, err := f.service.CancelJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("CancelJob() error = %v, want ErrJobNotFound", err)
	}
}

func TestCancelJob(t *testing.T) {
	f := newJobFixture(okOutcome(entity.PlainTextResult("ok", entity.ConfidenceHigh), "groq/a"))
	ctx := context.Background()

	job, err := f.service.CreateJob(ctx, entity.TaskExplain, entity.TaskInput{Code: "x"})
	if err != nil {
		t.Fatal(err)
	}
	canceled, err := f.service.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if canceled.Status != entity.JobStatusCanceled {
		t.Errorf("CancelJob().Status = %v", canceled.Status)
	}
	if _, err := f.service.CancelJob(ctx, job.ID); !errors.Is(err, ErrJobNotActive) {
		t.Errorf("second CancelJob() error = %v, want ErrJobNotActive", err)
	}

	if err := f.worker.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.gen.calls() != 0 {
		t.Errorf("canceled job was run %d times", f.gen.calls())
	}
}

func TestDeleteJobRemovesArtifacts(t *testing.T) {
	f := newJobFixture(okOutcome(entity.CodeResult("x = 2", "python", entity.ConfidenceHigh), "groq/a"))
	ctx := context.Background()

	job, err := f.service.CreateJob(ctx, entity.TaskFix, entity.TaskInput{Code: "x = 1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.worker.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if arts, err := f.service.JobArtifacts(ctx, job.ID); err != nil || len(arts) != 1 {
		t.Fatalf("JobArtifacts() = %v, %v", arts, err)
	}

	if err := f.service.DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if ids, _ := f.artifacts.ListJobIDs(ctx); len(ids) != 0 {
		t.Errorf("artifacts left after delete: %v", ids)
	}
	if _, err := f.service.GetJob(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob() after delete error = %v", err)
	}
}
