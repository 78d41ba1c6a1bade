package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
)

const tracerName = "fixifox/orchestration"

// Resolver maps a backend id ("provider/model") to a backend and the model
// name it should be called with.
type Resolver interface {
	Resolve(backendID string) (repository.LLMBackend, string, error)
}

// DispatchResult is Success(Raw) when OK, Exhausted(Kind, Message) otherwise.
// Attempts holds every record produced for this backend.
type DispatchResult struct {
	OK       bool
	Raw      string
	Kind     entity.FailureKind
	Message  string
	Attempts []entity.AttemptRecord
}

type Dispatcher struct {
	resolver Resolver
	policy   BackoffPolicy
	limiter  *Limiter
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

type DispatcherOption func(*Dispatcher)

func WithLimiter(l *Limiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithClock replaces time.Now and the backoff sleep.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func NewDispatcher(resolver Resolver, policy BackoffPolicy, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		policy:   policy,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch calls one backend with retries until it answers, a failure is not
// retryable, retries run out or the deadline passes.
func (d *Dispatcher) Dispatch(ctx context.Context, backendID string, req entity.GenerationRequest, deadline time.Time) DispatchResult {
	var res DispatchResult

	backend, model, err := d.resolver.Resolve(backendID)
	if err != nil {
		kind := ClassifyError(err)
		res.Kind, res.Message = kind, err.Error()
		res.Attempts = append(res.Attempts, entity.AttemptRecord{
			Backend:   backendID,
			StartedAt: d.now(),
			Outcome:   entity.Fatal(kind),
			Error:     err.Error(),
		})
		return res
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	call := entity.BackendCall{
		Model:     model,
		System:    req.System,
		Prompt:    req.Prompt,
		Sampling:  req.Sampling,
		MaxTokens: req.MaxTokens,
	}

	res.Kind = entity.FailureTimeout
	res.Message = "deadline reached before the backend was called"

	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		if ctx.Err() != nil || !d.now().Before(deadline) {
			break
		}

		start := d.now()
		raw, err := d.attempt(ctx, backendID, attempt, backend, call)
		record := entity.AttemptRecord{
			Backend:   backendID,
			Attempt:   attempt,
			StartedAt: start,
			Elapsed:   d.now().Sub(start),
		}

		if err == nil {
			record.Outcome = entity.Succeeded()
			res.Attempts = append(res.Attempts, record)
			res.OK, res.Raw, res.Kind, res.Message = true, raw, "", ""
			return res
		}

		kind := ClassifyError(err)
		if d.policy.Retryable(kind) {
			record.Outcome = entity.Retryable(kind)
		} else {
			record.Outcome = entity.Fatal(kind)
		}
		record.Error = err.Error()
		res.Attempts = append(res.Attempts, record)
		res.Kind, res.Message = kind, err.Error()

		delay, retry := d.policy.NextDelay(kind, attempt, req.MaxRetries)
		if !retry {
			break
		}
		if d.now().Add(delay).After(deadline) {
			d.logger.Debug("retry would pass deadline", "backend", backendID, "attempt", attempt, "delay", delay)
			break
		}
		d.logger.Debug("retrying backend", "backend", backendID, "attempt", attempt, "kind", kind, "delay", delay)
		if err := d.sleep(ctx, delay); err != nil {
			break
		}
	}
	return res
}

type callResult struct {
	raw string
	err error
}

// attempt runs one backend call holding a limiter slot. The call runs in its
// own goroutine so a backend that ignores ctx is abandoned at the deadline;
// the slot is released when the call actually returns.
func (d *Dispatcher) attempt(ctx context.Context, backendID string, n int, backend repository.LLMBackend, call entity.BackendCall) (string, error) {
	ctx, span := d.tracer.Start(ctx, "orchestration.attempt", trace.WithAttributes(
		attribute.String("backend", backendID),
		attribute.Int("attempt", n),
	))
	defer span.End()

	if err := d.limiter.Acquire(ctx); err != nil {
		err = fmt.Errorf("acquire outbound slot: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	done := make(chan callResult, 1)
	go func() {
		var r callResult
		defer func() {
			if p := recover(); p != nil {
				r = callResult{err: fmt.Errorf("backend %s panicked: %v", backendID, p)}
			}
			d.limiter.Release()
			done <- r
		}()
		r.raw, r.err = backend.Complete(ctx, call)
	}()

	select {
	case r := <-done:
		if r.err != nil {
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
		}
		return r.raw, r.err
	case <-ctx.Done():
		err := fmt.Errorf("backend call abandoned: %w", ctx.Err())
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
