package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"fixifox/internal/domain/entity"
)

func TestWorkerProcessesJob(t *testing.T) {
	f := newJobFixture(okOutcome(entity.CodeResult("def f():\n    return 2", "python", entity.ConfidenceHigh), "groq/qwen"))
	ctx := context.Background()

	job, err := f.service.CreateJob(ctx, entity.TaskFix, entity.TaskInput{Code: "def f(): return 1"})
	if err != nil {
		t.Fatal(err)
	}
	events, cancel := f.events.Subscribe(job.ID)
	defer cancel()

	if err := f.worker.runOnce(ctx); err != nil {
		t.Fatalf("runOnce() error = %v", err)
	}

	got, err := f.service.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != entity.JobStatusDone {
		t.Errorf("status = %v, want done", got.Status)
	}
	if got.Result == nil || !got.Result.Outcome.OK || len(got.Result.Outcome.Trace) != 1 {
		t.Errorf("result = %+v", got.Result)
	}

	arts, err := f.service.JobArtifacts(ctx, job.ID)
	if err != nil || len(arts) != 1 || arts[0].Name != "fixed.py" {
		t.Errorf("JobArtifacts() = %v, %v", arts, err)
	}

	var statuses []entity.JobStatus
	for ev := range events {
		statuses = append(statuses, ev.Status)
	}
	if len(statuses) != 2 || statuses[0] != entity.JobStatusRunning || statuses[1] != entity.JobStatusDone {
		t.Errorf("events = %v, want [running done]", statuses)
	}
}

func TestWorkerFailedChain(t *testing.T) {
	trace := entity.AttemptTrace{{Backend: "groq/a", Attempt: 1, Outcome: entity.Fatal(entity.FailureRateLimited)}}
	f := newJobFixture(entity.Failed(trace, entity.FailureRateLimited, "try again shortly"))
	ctx := context.Background()

	job, err := f.service.CreateJob(ctx, entity.TaskScan, entity.TaskInput{Code: "eval(input())"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.worker.runOnce(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := f.service.GetJob(ctx, job.ID)
	if got.Status != entity.JobStatusFailed {
		t.Errorf("status = %v, want failed", got.Status)
	}
	if got.Result == nil || got.Result.Outcome.UserMessage != "try again shortly" {
		t.Errorf("result = %+v", got.Result)
	}
	if arts, _ := f.service.JobArtifacts(ctx, job.ID); len(arts) != 0 {
		t.Errorf("failed job has artifacts: %v", arts)
	}
}

func TestWorkerDrainsQueueInOrder(t *testing.T) {
	f := newJobFixture(okOutcome(entity.PlainTextResult("ok", entity.ConfidenceHigh), "gemini/flash"))
	ctx := context.Background()

	codes := []string{"a", "b", "c"}
	for _, c := range codes {
		if _, err := f.service.CreateJob(ctx, entity.TaskExplain, entity.TaskInput{Code: c}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	if err := f.worker.runOnce(ctx); err != nil {
		t.Fatal(err)
	}

	if f.gen.calls() != len(codes) {
		t.Fatalf("generator called %d times, want %d", f.gen.calls(), len(codes))
	}
	for i, req := range f.gen.requests {
		if want := "Code:\n" + codes[i]; !strings.HasSuffix(req.Prompt, want) {
			t.Errorf("request %d prompt does not end with %q", i, want)
		}
	}
	n, _ := f.jobs.CountByStatus(ctx, entity.JobStatusDone)
	if n != len(codes) {
		t.Errorf("done jobs = %d, want %d", n, len(codes))
	}
}

func TestWorkerStartStop(t *testing.T) {
	f := newJobFixture(okOutcome(entity.PlainTextResult("ok", entity.ConfidenceHigh), "gemini/flash"))
	f.worker.pollInterval = 5 * time.Millisecond
	ctx := context.Background()

	f.worker.Start(ctx)
	job, err := f.service.CreateJob(ctx, entity.TaskExplain, entity.TaskInput{Code: "x"})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := f.service.GetJob(ctx, job.ID)
		if got.Status == entity.JobStatusDone {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.worker.Stop()
	f.worker.Stop()

	got, _ := f.service.GetJob(ctx, job.ID)
	if got.Status != entity.JobStatusDone {
		t.Errorf("status = %v, want done", got.Status)
	}
}

func TestArtifactsFor(t *testing.T) {
	report := entity.ReportResult(entity.Report{
		Status: entity.ReportStatusIssues,
		Issues: []entity.Issue{{Type: "injection", Severity: entity.SeverityHigh, Description: "eval on input"}},
	}, entity.ConfidenceHigh)

	tests := []struct {
		task     entity.Task
		result   entity.ExtractionResult
		wantName string
	}{
		{entity.TaskFix, entity.CodeResult("x", "python", entity.ConfidenceHigh), "fixed.py"},
		{entity.TaskFix, entity.CodeResult("x", "", entity.ConfidenceLow), "fixed.txt"},
		{entity.TaskDiagram, entity.DiagramResult("graph TD", entity.ConfidenceHigh), "diagram.mmd"},
		{entity.TaskScan, report, "report.json"},
		{entity.TaskExplain, entity.PlainTextResult("text", entity.ConfidenceHigh), "explain.md"},
	}
	for _, tt := range tests {
		res := &entity.TaskResult{Task: tt.task, Outcome: okOutcome(tt.result, "groq/a")}
		arts, err := ArtifactsFor("j1", res)
		if err != nil || len(arts) != 1 {
			t.Errorf("ArtifactsFor(%s) = %v, %v", tt.task, arts, err)
			continue
		}
		if arts[0].Name != tt.wantName || arts[0].JobID != "j1" {
			t.Errorf("ArtifactsFor(%s) name = %q, want %q", tt.task, arts[0].Name, tt.wantName)
		}
	}

	res := &entity.TaskResult{Task: entity.TaskScan, Outcome: okOutcome(report, "groq/a")}
	arts, _ := ArtifactsFor("j1", res)
	var decoded entity.Report
	if err := json.Unmarshal([]byte(arts[0].Content), &decoded); err != nil || len(decoded.Issues) != 1 {
		t.Errorf("report.json = %q, %v", arts[0].Content, err)
	}

	failed := &entity.TaskResult{Task: entity.TaskFix, Outcome: entity.Failed(nil, entity.FailureTimeout, "x")}
	if arts, err := ArtifactsFor("j1", failed); err != nil || len(arts) != 0 {
		t.Errorf("ArtifactsFor(failed) = %v, %v", arts, err)
	}
}
