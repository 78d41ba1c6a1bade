package orchestration

import (
	"time"

	"fixifox/internal/domain/entity"
)

type backoffRule struct {
	Retryable bool
	Base      time.Duration
}

// BackoffPolicy decides whether and how long to wait before retrying.
type BackoffPolicy struct {
	Table    map[entity.FailureKind]backoffRule
	MaxDelay time.Duration
}

// DefaultBackoffTable is the static retry table.
var DefaultBackoffTable = map[entity.FailureKind]backoffRule{
	entity.FailureTimeout:            {Retryable: true, Base: 1 * time.Second},
	entity.FailureRateLimited:        {Retryable: true, Base: 2 * time.Second},
	entity.FailureUnrecognized:       {Retryable: true, Base: 1 * time.Second},
	entity.FailurePayloadTooLarge:    {Retryable: false},
	entity.FailureBackendUnavailable: {Retryable: false},
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Table:    DefaultBackoffTable,
		MaxDelay: 10 * time.Second,
	}
}

// NewBackoffPolicy builds a policy with the default table scaled to the given
// base delays. Used by config and tests.
func NewBackoffPolicy(timeoutBase, rateLimitBase, maxDelay time.Duration) BackoffPolicy {
	table := make(map[entity.FailureKind]backoffRule, len(DefaultBackoffTable))
	for k, v := range DefaultBackoffTable {
		table[k] = v
	}
	table[entity.FailureTimeout] = backoffRule{Retryable: true, Base: timeoutBase}
	table[entity.FailureUnrecognized] = backoffRule{Retryable: true, Base: timeoutBase}
	table[entity.FailureRateLimited] = backoffRule{Retryable: true, Base: rateLimitBase}
	return BackoffPolicy{Table: table, MaxDelay: maxDelay}
}

// Retryable reports the static table entry for kind. Unknown kinds are not
// retried.
func (p BackoffPolicy) Retryable(kind entity.FailureKind) bool {
	return p.Table[kind].Retryable
}

// NextDelay returns the wait before attempt+1, or false when the failure
// observed at attempt must not be retried.
func (p BackoffPolicy) NextDelay(kind entity.FailureKind, attempt, maxRetries int) (time.Duration, bool) {
	rule, ok := p.Table[kind]
	if !ok || !rule.Retryable {
		return 0, false
	}
	if attempt >= maxRetries {
		return 0, false
	}
	delay := rule.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay, true
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay, true
}
