package entity

import "time"

// PayloadShape is the structural type a caller expects back from a backend.
type PayloadShape string

const (
	ShapeRawText          PayloadShape = "raw_text"
	ShapeSourceCode       PayloadShape = "source_code"
	ShapeDiagramSource    PayloadShape = "diagram_source"
	ShapeStructuredReport PayloadShape = "structured_report"
)

func (s PayloadShape) Valid() bool {
	switch s {
	case ShapeRawText, ShapeSourceCode, ShapeDiagramSource, ShapeStructuredReport:
		return true
	}
	return false
}

const (
	DefaultTimeBudget = 90 * time.Second
	DefaultMaxRetries = 2
	DefaultMaxTokens  = 2000
)

// SamplingParams are forwarded to the backend as-is. Zero values mean
// "backend default".
type SamplingParams struct {
	Temperature float64 `json:"temperature" bson:"temperature"`
	TopP        float64 `json:"top_p,omitempty" bson:"top_p,omitempty"`
}

// GenerationRequest describes one logical request to the fallback chain.
type GenerationRequest struct {
	Prompt    string
	System    string
	Shape     PayloadShape
	Backends  []string // primary first
	MaxTokens int
	Sampling  SamplingParams

	// TimeBudget bounds the whole chain run.
	TimeBudget time.Duration
	// BackendBudget bounds a single backend inside the chain. Zero means the
	// remaining chain budget.
	BackendBudget time.Duration
	MaxRetries    int
}

// NewGenerationRequest copies backends and fills defaults for unset limits.
func NewGenerationRequest(prompt string, shape PayloadShape, backends []string, opts ...RequestOption) GenerationRequest {
	req := GenerationRequest{
		Prompt:     prompt,
		Shape:      shape,
		Backends:   append([]string(nil), backends...),
		MaxTokens:  DefaultMaxTokens,
		TimeBudget: DefaultTimeBudget,
		MaxRetries: DefaultMaxRetries,
	}
	if !req.Shape.Valid() {
		req.Shape = ShapeRawText
	}
	for _, opt := range opts {
		opt(&req)
	}
	if req.MaxRetries < 0 {
		req.MaxRetries = 0
	}
	if req.TimeBudget <= 0 {
		req.TimeBudget = DefaultTimeBudget
	}
	if req.BackendBudget < 0 {
		req.BackendBudget = 0
	}
	return req
}

type RequestOption func(*GenerationRequest)

func WithSystem(system string) RequestOption {
	return func(r *GenerationRequest) { r.System = system }
}

func WithSampling(p SamplingParams) RequestOption {
	return func(r *GenerationRequest) { r.Sampling = p }
}

func WithMaxTokens(n int) RequestOption {
	return func(r *GenerationRequest) {
		if n > 0 {
			r.MaxTokens = n
		}
	}
}

func WithTimeBudget(total, perBackend time.Duration) RequestOption {
	return func(r *GenerationRequest) {
		r.TimeBudget = total
		r.BackendBudget = perBackend
	}
}

func WithMaxRetries(n int) RequestOption {
	return func(r *GenerationRequest) { r.MaxRetries = n }
}

// BackendCall is what a single backend invocation receives.
type BackendCall struct {
	Model     string
	System    string
	Prompt    string
	Sampling  SamplingParams
	MaxTokens int
}
