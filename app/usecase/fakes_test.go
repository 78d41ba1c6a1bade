package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"fixifox/internal/domain/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGenerator returns outcome for every request and records what it got.
type fakeGenerator struct {
	mu       sync.Mutex
	outcome  entity.GenerationOutcome
	requests []entity.GenerationRequest
}

func (g *fakeGenerator) Run(ctx context.Context, req entity.GenerationRequest) entity.GenerationOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	out := g.outcome
	if out.Result != nil {
		r := *out.Result
		out.Result = &r
	}
	return out
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func okOutcome(r entity.ExtractionResult, backend string) entity.GenerationOutcome {
	trace := entity.AttemptTrace{{Backend: backend, Attempt: 1, Outcome: entity.Succeeded()}}
	return entity.Ok(r, backend, trace)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]entity.GenerationOutcome
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]entity.GenerationOutcome)}
}

func (c *mapCache) Get(ctx context.Context, key string) (*entity.GenerationOutcome, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	return &out, true, nil
}

func (c *mapCache) Set(ctx context.Context, key string, outcome entity.GenerationOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = outcome
	return nil
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func promptKey(req entity.GenerationRequest) string {
	return string(req.Shape) + "|" + req.Prompt
}
