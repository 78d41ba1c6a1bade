package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fixifox/internal/domain/entity"
)

func TestChainFallsBackAfterRateLimit(t *testing.T) {
	a := &fakeBackend{name: "a", steps: []step{{err: errors.New("Error 429: rate limit reached")}}}
	b := &fakeBackend{name: "b", steps: []step{{raw: "```python\nprint(1)\n```"}}}
	chain := newTestChain(fakeResolver{"a/m": a, "b/m": b})

	req := entity.NewGenerationRequest("fix", entity.ShapeSourceCode, []string{"a/m", "b/m"}, entity.WithMaxRetries(2))
	out := chain.Run(context.Background(), req)

	if !out.OK || out.Backend != "b/m" {
		t.Fatalf("Run() = %+v, want Ok from b/m", out)
	}
	if out.Result.Kind != entity.ResultCode || out.Result.Content != "print(1)" {
		t.Errorf("Result = %+v", out.Result)
	}
	want := []entity.AttemptStatus{entity.AttemptRetryable, entity.AttemptRetryable, entity.AttemptRetryable, entity.AttemptSuccess}
	if got := statuses(out.Trace); !equalStatuses(got, want...) {
		t.Fatalf("trace statuses = %v, want %v", got, want)
	}
	for i, r := range out.Trace[:3] {
		if r.Backend != "a/m" || r.Outcome.Kind != entity.FailureRateLimited {
			t.Errorf("trace[%d] = %+v, want a/m rate_limited", i, r)
		}
	}
	if out.Trace[3].Backend != "b/m" || b.callCount() != 1 {
		t.Errorf("trace[3] = %+v, b calls = %d", out.Trace[3], b.callCount())
	}
	for i := 1; i < len(out.Trace); i++ {
		if out.Trace[i].StartedAt.Before(out.Trace[i-1].StartedAt) {
			t.Errorf("trace not ordered by start time at %d", i)
		}
	}
}

func TestChainAllUnavailable(t *testing.T) {
	unavailable := errors.New("The model does not exist or you do not have access to it")
	r := fakeResolver{
		"a/m": &fakeBackend{name: "a", steps: []step{{err: unavailable}}},
		"b/m": &fakeBackend{name: "b", steps: []step{{err: unavailable}}},
	}
	chain := newTestChain(r)

	// c/m is not registered and fails resolution the same way
	backends := []string{"a/m", "b/m", "c/m"}
	out := chain.Run(context.Background(), entity.NewGenerationRequest("p", entity.ShapeRawText, backends))

	if out.OK {
		t.Fatalf("Run() = %+v, want Failed", out)
	}
	if out.Failure != entity.FailureBackendUnavailable {
		t.Errorf("Failure = %v, want %v", out.Failure, entity.FailureBackendUnavailable)
	}
	if !strings.Contains(out.UserMessage, "different backend") {
		t.Errorf("UserMessage = %q, want a different backend suggestion", out.UserMessage)
	}
	if len(out.Trace) != len(backends) {
		t.Errorf("len(Trace) = %d, want %d", len(out.Trace), len(backends))
	}
	if strings.Contains(out.UserMessage, "does not exist") {
		t.Errorf("UserMessage leaks the raw backend error: %q", out.UserMessage)
	}
}

func TestChainLowConfidenceIsSuccess(t *testing.T) {
	a := &fakeBackend{name: "a", steps: []step{{raw: "I would rather not write code today."}}}
	b := &fakeBackend{name: "b", steps: []step{{raw: "```go\nfunc f() {}\n```"}}}
	chain := newTestChain(fakeResolver{"a/m": a, "b/m": b})

	out := chain.Run(context.Background(), entity.NewGenerationRequest("p", entity.ShapeSourceCode, []string{"a/m", "b/m"}))
	if !out.OK || out.Backend != "a/m" {
		t.Fatalf("Run() = %+v, want Ok from a/m", out)
	}
	if out.Result.Confidence != entity.ConfidenceLow || out.Result.Kind != entity.ResultPlainText {
		t.Errorf("Result = %+v, want low confidence plain text", out.Result)
	}
	if b.callCount() != 0 {
		t.Errorf("b called %d times, want 0", b.callCount())
	}
}

func TestChainBudget(t *testing.T) {
	const (
		budget    = 100 * time.Millisecond
		callSpent = 60 * time.Millisecond
	)
	slowFail := func(name string) *fakeBackend {
		return &fakeBackend{name: name, steps: []step{{err: errors.New("rate limit"), delay: callSpent}}}
	}
	r := fakeResolver{"a/m": slowFail("a"), "b/m": slowFail("b"), "c/m": slowFail("c")}
	chain := newTestChain(r)

	req := entity.NewGenerationRequest("p", entity.ShapeRawText, []string{"a/m", "b/m", "c/m"},
		entity.WithMaxRetries(0), entity.WithTimeBudget(budget, 0))

	start := time.Now()
	out := chain.Run(context.Background(), req)
	elapsed := time.Since(start)

	if out.OK {
		t.Fatalf("Run() = %+v, want Failed", out)
	}
	if limit := budget + callSpent; elapsed > limit {
		t.Errorf("Run() took %v, want at most %v", elapsed, limit)
	}
	last := out.Trace[len(out.Trace)-1]
	if last.Backend != "c/m" || last.Outcome.Status != entity.AttemptSkipped {
		t.Errorf("last record = %+v, want c/m skipped", last)
	}
}

func TestChainBudgetWithBackendIgnoringContext(t *testing.T) {
	stuck := &fakeBackend{name: "stuck", steps: []step{{raw: "too late", delay: 400 * time.Millisecond, ignoreCtx: true}}}
	next := &fakeBackend{name: "next", steps: []step{{raw: "on time"}}}
	chain := newTestChain(fakeResolver{"stuck/m": stuck, "next/m": next})

	req := entity.NewGenerationRequest("p", entity.ShapeRawText, []string{"stuck/m", "next/m"},
		entity.WithTimeBudget(50*time.Millisecond, 0))

	start := time.Now()
	out := chain.Run(context.Background(), req)
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Run() took %v with a 50ms budget", elapsed)
	}
	if out.OK {
		t.Fatalf("Run() = %+v, want Failed", out)
	}
	if out.Failure != entity.FailureTimeout {
		t.Errorf("Failure = %v, want %v", out.Failure, entity.FailureTimeout)
	}
	if next.callCount() != 0 {
		t.Errorf("next called %d times, want skipped", next.callCount())
	}
}

func TestChainPerBackendBudget(t *testing.T) {
	slow := &fakeBackend{name: "slow", steps: []step{{raw: "slow", delay: 500 * time.Millisecond}}}
	fast := &fakeBackend{name: "fast", steps: []step{{raw: "fast"}}}
	chain := newTestChain(fakeResolver{"slow/m": slow, "fast/m": fast})

	req := entity.NewGenerationRequest("p", entity.ShapeRawText, []string{"slow/m", "fast/m"},
		entity.WithMaxRetries(0), entity.WithTimeBudget(2*time.Second, 40*time.Millisecond))

	out := chain.Run(context.Background(), req)
	if !out.OK || out.Backend != "fast/m" || out.Result.Content != "fast" {
		t.Fatalf("Run() = %+v, want Ok from fast/m", out)
	}
	if out.Trace[0].Outcome.Kind != entity.FailureTimeout {
		t.Errorf("trace[0] = %+v, want timeout", out.Trace[0])
	}
}

func TestChainCanceledContext(t *testing.T) {
	a := &fakeBackend{name: "a", steps: []step{{raw: "x"}}}
	chain := newTestChain(fakeResolver{"a/m": a})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := chain.Run(ctx, entity.NewGenerationRequest("p", entity.ShapeRawText, []string{"a/m", "b/m"}))

	if out.OK || len(out.Trace) != 2 || a.callCount() != 0 {
		t.Fatalf("Run(canceled) = %+v, a calls = %d", out, a.callCount())
	}
	for _, r := range out.Trace {
		if r.Outcome.Status != entity.AttemptSkipped {
			t.Errorf("record %+v, want skipped", r)
		}
	}
	if out.UserMessage == "" {
		t.Error("missing user message")
	}
}

func TestChainNoBackends(t *testing.T) {
	chain := newTestChain(fakeResolver{})
	out := chain.Run(context.Background(), entity.NewGenerationRequest("p", entity.ShapeRawText, nil))
	if out.OK || out.Failure != entity.FailureBackendUnavailable || len(out.Trace) != 0 {
		t.Errorf("Run(no backends) = %+v", out)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		kind entity.FailureKind
		want string
	}{
		{entity.FailureRateLimited, "try again shortly"},
		{entity.FailurePayloadTooLarge, "reduce the input size"},
		{entity.FailureBackendUnavailable, "different backend"},
		{entity.FailureTimeout, "shorten your input"},
		{entity.FailureUnrecognized, "try again"},
		{entity.FailureKind("other"), "try again"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.kind); !strings.Contains(got, tt.want) {
			t.Errorf("UserMessage(%v) = %q, want it to contain %q", tt.kind, got, tt.want)
		}
	}
}
