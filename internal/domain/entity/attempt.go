package entity

import "time"

type AttemptStatus string

const (
	AttemptSuccess   AttemptStatus = "success"
	AttemptRetryable AttemptStatus = "retryable"
	AttemptFatal     AttemptStatus = "fatal"
	AttemptSkipped   AttemptStatus = "skipped"
)

// AttemptOutcome is Success, Retryable(kind), Fatal(kind) or Skipped.
// Kind is empty for Success and Skipped.
type AttemptOutcome struct {
	Status AttemptStatus `json:"status" bson:"status"`
	Kind   FailureKind   `json:"kind,omitempty" bson:"kind,omitempty"`
}

func Succeeded() AttemptOutcome {
	return AttemptOutcome{Status: AttemptSuccess}
}

func Retryable(k FailureKind) AttemptOutcome {
	return AttemptOutcome{Status: AttemptRetryable, Kind: k}
}

func Fatal(k FailureKind) AttemptOutcome {
	return AttemptOutcome{Status: AttemptFatal, Kind: k}
}

func Skipped() AttemptOutcome {
	return AttemptOutcome{Status: AttemptSkipped}
}

func (o AttemptOutcome) IsFailure() bool {
	return o.Status == AttemptRetryable || o.Status == AttemptFatal
}

type AttemptRecord struct {
	Backend   string         `json:"backend" bson:"backend"`
	Attempt   int            `json:"attempt" bson:"attempt"`
	StartedAt time.Time      `json:"started_at" bson:"started_at"`
	Elapsed   time.Duration  `json:"elapsed_ns" bson:"elapsed_ns"`
	Outcome   AttemptOutcome `json:"outcome" bson:"outcome"`
	Error     string         `json:"error,omitempty" bson:"error,omitempty"`
}

// AttemptTrace is append-only, ordered by StartedAt.
type AttemptTrace []AttemptRecord

// LastFailureKind returns the kind of the most recent failed attempt.
func (t AttemptTrace) LastFailureKind() (FailureKind, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Outcome.IsFailure() {
			return t[i].Outcome.Kind, true
		}
	}
	return "", false
}

// Backends returns each backend id once, in first-seen order.
func (t AttemptTrace) Backends() []string {
	seen := make(map[string]struct{}, len(t))
	var out []string
	for _, r := range t {
		if _, ok := seen[r.Backend]; ok {
			continue
		}
		seen[r.Backend] = struct{}{}
		out = append(out, r.Backend)
	}
	return out
}
