package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"fixifox/internal/domain/repository"
)

// Registry resolves "provider/model" ids to registered backends. The model
// part may itself contain slashes.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]repository.LLMBackend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]repository.LLMBackend)}
}

func (r *Registry) Register(provider string, backend repository.LLMBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[strings.ToLower(provider)] = backend
}

func (r *Registry) Resolve(backendID string) (repository.LLMBackend, string, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(backendID), "/")
	if !ok || provider == "" || model == "" {
		return nil, "", fmt.Errorf("unknown backend %q: expected provider/model", backendID)
	}

	r.mu.RLock()
	backend, found := r.backends[strings.ToLower(provider)]
	r.mu.RUnlock()
	if !found {
		return nil, "", fmt.Errorf("unknown backend %q: provider %s unavailable", backendID, provider)
	}
	return backend, model, nil
}

// Providers lists registered provider names in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Filter drops backend ids whose provider is not registered, keeping order.
func (r *Registry) Filter(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, _, err := r.Resolve(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
