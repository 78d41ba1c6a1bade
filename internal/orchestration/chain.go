package orchestration

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fixifox/internal/domain/entity"
)

var userMessages = map[entity.FailureKind]string{
	entity.FailureRateLimited:        "The AI service is receiving too many requests right now. Please try again shortly.",
	entity.FailurePayloadTooLarge:    "Your input is too large for the AI service. Please reduce the input size and try again.",
	entity.FailureBackendUnavailable: "The selected AI model is unavailable right now. Please try a different backend or model.",
	entity.FailureTimeout:            "The AI service took too long to respond. Please try again, or shorten your input.",
	entity.FailureUnrecognized:       "Something went wrong while contacting the AI service. Please try again in a moment.",
}

// UserMessage returns the actionable text shown for a failed chain.
func UserMessage(kind entity.FailureKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[entity.FailureUnrecognized]
}

// FallbackChain tries the request's backends one at a time and returns the
// first answer, extracted for the requested shape.
type FallbackChain struct {
	dispatcher *Dispatcher
	extractor  *ResponseExtractor
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewFallbackChain(dispatcher *Dispatcher, extractor *ResponseExtractor, logger *slog.Logger) *FallbackChain {
	if extractor == nil {
		extractor = NewResponseExtractor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackChain{
		dispatcher: dispatcher,
		extractor:  extractor,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        dispatcher.now,
	}
}

func (c *FallbackChain) Run(ctx context.Context, req entity.GenerationRequest) entity.GenerationOutcome {
	start := c.now()
	deadline := start.Add(req.TimeBudget)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	ctx, span := c.tracer.Start(ctx, "orchestration.run", trace.WithAttributes(
		attribute.String("shape", string(req.Shape)),
		attribute.StringSlice("backends", req.Backends),
	))
	defer span.End()

	var attempts entity.AttemptTrace
	if len(req.Backends) == 0 {
		span.SetStatus(codes.Error, "no backends configured")
		return entity.Failed(attempts, entity.FailureBackendUnavailable, UserMessage(entity.FailureBackendUnavailable))
	}

	for i, backendID := range req.Backends {
		if ctx.Err() != nil || !c.now().Before(deadline) {
			attempts = append(attempts, c.skip(req.Backends[i:])...)
			c.logger.Warn("chain budget exhausted", "skipped", len(req.Backends)-i, "elapsed", c.now().Sub(start))
			break
		}

		backendDeadline := deadline
		if req.BackendBudget > 0 {
			if d := c.now().Add(req.BackendBudget); d.Before(backendDeadline) {
				backendDeadline = d
			}
		}

		res := c.dispatcher.Dispatch(ctx, backendID, req, backendDeadline)
		if len(res.Attempts) == 0 {
			attempts = append(attempts, c.skip([]string{backendID})...)
		}
		attempts = append(attempts, res.Attempts...)

		if res.OK {
			result := c.extractor.Extract(res.Raw, req.Shape)
			span.SetAttributes(
				attribute.String("backend", backendID),
				attribute.String("confidence", string(result.Confidence)),
			)
			c.logger.Info("generation succeeded",
				"backend", backendID,
				"attempts", len(attempts),
				"kind", result.Kind,
				"confidence", result.Confidence,
				"elapsed", c.now().Sub(start),
			)
			return entity.Ok(result, backendID, attempts)
		}

		c.logger.Warn("backend exhausted", "backend", backendID, "kind", res.Kind, "err", res.Message)
	}

	kind, ok := attempts.LastFailureKind()
	if !ok {
		// every backend was skipped
		kind = entity.FailureTimeout
	}
	span.SetStatus(codes.Error, string(kind))
	c.logger.Error("generation failed", "kind", kind, "attempts", len(attempts), "elapsed", c.now().Sub(start))
	return entity.Failed(attempts, kind, UserMessage(kind))
}

func (c *FallbackChain) skip(backends []string) []entity.AttemptRecord {
	now := c.now()
	out := make([]entity.AttemptRecord, 0, len(backends))
	for _, id := range backends {
		out = append(out, entity.AttemptRecord{
			Backend:   id,
			StartedAt: now,
			Outcome:   entity.Skipped(),
		})
	}
	return out
}
