package orchestration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
)

type step struct {
	raw   string
	err   error
	delay time.Duration
	// ignoreCtx makes the backend sleep through cancellation.
	ignoreCtx bool
}

// fakeBackend replays steps in order and repeats the last one.
type fakeBackend struct {
	name  string
	steps []step

	mu    sync.Mutex
	calls []entity.BackendCall
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Complete(ctx context.Context, call entity.BackendCall) (string, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	s := f.steps[len(f.steps)-1]
	if n < len(f.steps) {
		s = f.steps[n]
	}
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return s.raw, s.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeResolver map[string]repository.LLMBackend

func (r fakeResolver) Resolve(id string) (repository.LLMBackend, string, error) {
	b, ok := r[id]
	if !ok {
		return nil, "", fmt.Errorf("unknown backend %q: model unavailable", id)
	}
	return b, id, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() BackoffPolicy {
	return NewBackoffPolicy(time.Millisecond, time.Millisecond, 5*time.Millisecond)
}

func newTestChain(r Resolver, opts ...DispatcherOption) *FallbackChain {
	opts = append([]DispatcherOption{WithDispatcherLogger(discardLogger())}, opts...)
	d := NewDispatcher(r, fastPolicy(), opts...)
	return NewFallbackChain(d, NewResponseExtractor(), discardLogger())
}
