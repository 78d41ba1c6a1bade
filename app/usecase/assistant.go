package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fixifox/internal/domain/entity"
	"fixifox/internal/infrastructure/metrics"
)

// Generator runs one request through the backend chain.
type Generator interface {
	Run(ctx context.Context, req entity.GenerationRequest) entity.GenerationOutcome
}

// ResultCache stores successful outcomes by request fingerprint.
type ResultCache interface {
	Get(ctx context.Context, key string) (*entity.GenerationOutcome, bool, error)
	Set(ctx context.Context, key string, outcome entity.GenerationOutcome) error
}

type AssistantConfig struct {
	// ExplainBackends serve explanations, CodeBackends everything that
	// reads or writes code.
	ExplainBackends []string
	CodeBackends    []string
	MaxTokens       int
	TimeBudget      time.Duration
	BackendBudget   time.Duration
	MaxRetries      int
}

func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{
		ExplainBackends: []string{"gemini/gemini-2.0-flash", "groq/llama3-70b-8192"},
		CodeBackends:    []string{"groq/qwen-2.5-coder-32b", "groq/llama3-70b-8192", "gemini/gemini-2.0-flash"},
		MaxTokens:       entity.DefaultMaxTokens,
		TimeBudget:      entity.DefaultTimeBudget,
		MaxRetries:      entity.DefaultMaxRetries,
	}
}

type taskProfile struct {
	prompt   entity.Prompt
	shape    entity.PayloadShape
	sampling entity.SamplingParams
	code     bool // uses the code backend chain
	// needsError requires an error message next to the code.
	needsError bool
}

var taskProfiles = map[entity.Task]taskProfile{
	entity.TaskExplain: {
		prompt:   entity.ExplainPrompt,
		shape:    entity.ShapeRawText,
		sampling: entity.SamplingParams{Temperature: 0.3},
	},
	entity.TaskExplainError: {
		prompt:   entity.ExplainErrorPrompt,
		shape:    entity.ShapeRawText,
		sampling: entity.SamplingParams{Temperature: 0.3},
	},
	entity.TaskFix: {
		prompt:   entity.FixPrompt,
		shape:    entity.ShapeSourceCode,
		sampling: entity.SamplingParams{Temperature: 0.2, TopP: 0.9},
		code:     true,
	},
	entity.TaskDiagram: {
		prompt:   entity.DiagramPrompt,
		shape:    entity.ShapeDiagramSource,
		sampling: entity.SamplingParams{Temperature: 0.3},
		code:     true,
	},
	entity.TaskDebug: {
		prompt:     entity.DebugPrompt,
		shape:      entity.ShapeRawText,
		sampling:   entity.SamplingParams{Temperature: 0.3},
		code:       true,
		needsError: true,
	},
	entity.TaskScan: {
		prompt:   entity.ScanPrompt,
		shape:    entity.ShapeStructuredReport,
		sampling: entity.SamplingParams{Temperature: 0.3},
		code:     true,
	},
}

type AssistantUsecase interface {
	Run(ctx context.Context, task entity.Task, in entity.TaskInput) (*entity.TaskResult, error)
	Validate(task entity.Task, in entity.TaskInput) error
}

var _ AssistantUsecase = (*AssistantService)(nil)

// AssistantService turns user tasks into generation requests and shapes the
// answers for display.
type AssistantService struct {
	generator Generator
	cfg       AssistantConfig
	cache     ResultCache
	cacheKey  func(entity.GenerationRequest) string
	logger    *slog.Logger
}

type AssistantOption func(*AssistantService)

// WithCache enables result caching. key must be deterministic for equal
// requests.
func WithCache(cache ResultCache, key func(entity.GenerationRequest) string) AssistantOption {
	return func(s *AssistantService) {
		s.cache = cache
		s.cacheKey = key
	}
}

func NewAssistantService(gen Generator, cfg AssistantConfig, logger *slog.Logger, opts ...AssistantOption) *AssistantService {
	s := &AssistantService{
		generator: gen,
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks task and input without running anything.
func (s *AssistantService) Validate(task entity.Task, in entity.TaskInput) error {
	p, ok := taskProfiles[task]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrEmptyInput)
	}
	if p.needsError && strings.TrimSpace(in.ErrorMessage) == "" {
		return fmt.Errorf("%w: error message is required for %s", ErrEmptyInput, task)
	}
	return nil
}

// BuildRequest renders the task prompt into a generation request.
func (s *AssistantService) BuildRequest(task entity.Task, in entity.TaskInput) (entity.GenerationRequest, error) {
	if err := s.Validate(task, in); err != nil {
		return entity.GenerationRequest{}, err
	}
	p := taskProfiles[task]

	backends := s.cfg.ExplainBackends
	if p.code {
		backends = s.cfg.CodeBackends
	}

	return entity.NewGenerationRequest(p.prompt.Render(in), p.shape, backends,
		entity.WithSystem(p.prompt.System),
		entity.WithSampling(p.sampling),
		entity.WithMaxTokens(s.cfg.MaxTokens),
		entity.WithTimeBudget(s.cfg.TimeBudget, s.cfg.BackendBudget),
		entity.WithMaxRetries(s.cfg.MaxRetries),
	), nil
}

// Run executes task synchronously. A failed chain is not an error: the
// result carries the user message and trace.
func (s *AssistantService) Run(ctx context.Context, task entity.Task, in entity.TaskInput) (*entity.TaskResult, error) {
	req, err := s.BuildRequest(task, in)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	var key string
	if s.cache != nil {
		key = s.cacheKey(req)
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("result cache get failed", "task", task, "err", err)
		}
		if ok {
			metrics.IncOutcome(string(task), "cached")
			s.logger.Info("result served from cache", "task", task)
			return &entity.TaskResult{
				Task:     task,
				Outcome:  *cached,
				Cached:   true,
				Duration: time.Since(start),
			}, nil
		}
	}

	outcome := s.generator.Run(ctx, req)
	result := &entity.TaskResult{Task: task, Outcome: outcome}
	if task == entity.TaskDiagram {
		result.Fallback = finishDiagram(&result.Outcome)
	}
	result.Duration = time.Since(start)

	s.record(task, req, result)

	if s.cache != nil && result.Outcome.OK && !result.Fallback {
		if err := s.cache.Set(ctx, key, result.Outcome); err != nil {
			s.logger.Warn("result cache set failed", "task", task, "err", err)
		}
	}

	if !result.Outcome.OK {
		s.logger.Warn("task failed",
			"task", task,
			"failure", result.Outcome.Failure,
			"backends", result.Outcome.Trace.Backends(),
		)
	}
	return result, nil
}

func (s *AssistantService) record(task entity.Task, req entity.GenerationRequest, result *entity.TaskResult) {
	out := result.Outcome
	for _, r := range out.Trace {
		metrics.IncAttempt(r.Backend, string(r.Outcome.Status), string(r.Outcome.Kind))
	}
	metrics.ObserveChainDuration(string(task), result.Duration)

	if !out.OK {
		metrics.IncOutcome(string(task), "failed")
		return
	}
	metrics.IncOutcome(string(task), "ok")
	metrics.IncConfidence(string(req.Shape), string(out.Result.Confidence))
	if len(req.Backends) > 0 && out.Backend != req.Backends[0] {
		metrics.IncFallback(string(task))
	}
}

var mermaidDirections = map[string]bool{"TD": true, "TB": true, "BT": true, "LR": true, "RL": true}

// finishDiagram forces a top-down header and swaps in the static diagram
// when nothing usable came back. It reports whether the fallback was used.
func finishDiagram(out *entity.GenerationOutcome) bool {
	if !out.OK {
		return false
	}
	r := out.Result
	if r.Kind != entity.ResultDiagram || r.Confidence != entity.ConfidenceHigh {
		fallback := entity.DiagramResult(entity.FallbackDiagram, entity.ConfidenceHigh)
		out.Result = &fallback
		return true
	}
	r.Content = topDown(r.Content)
	return false
}

func topDown(diagram string) string {
	header, rest, multiline := strings.Cut(diagram, "\n")
	fields := strings.Fields(header)
	if len(fields) == 0 || fields[0] != "graph" {
		return diagram
	}
	switch {
	case len(fields) == 1:
		fields = append(fields, "TD")
	case fields[1] == "TD":
		return diagram
	case mermaidDirections[strings.TrimRight(fields[1], ";")]:
		fields[1] = "TD"
	default:
		fields = append([]string{"graph", "TD"}, fields[1:]...)
	}
	header = strings.Join(fields, " ")
	if !multiline {
		return header
	}
	return header + "\n" + rest
}
