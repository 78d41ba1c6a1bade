package repository

import (
	"context"

	"fixifox/internal/domain/entity"
)

// LLMBackend is one provider reachable through a single completion call.
// Implementations return the response text or an error whose text (or
// structured kind) describes the failure.
type LLMBackend interface {
	Name() string
	Complete(ctx context.Context, call entity.BackendCall) (string, error)
}
