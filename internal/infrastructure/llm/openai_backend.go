package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"fixifox/internal/domain/entity"
	"fixifox/internal/domain/repository"
	"fixifox/internal/infrastructure/metrics"
)

const (
	GroqBaseURL   = "https://api.groq.com/openai/v1/"
	OpenAIBaseURL = "https://api.openai.com/v1/"
)

// OpenAIBackend talks to any OpenAI compatible chat completions API. Groq is
// the same client with a different base URL.
type OpenAIBackend struct {
	name   string
	client openai.Client
	stream bool
}

type OpenAIConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	// Stream reads the answer as server-sent deltas.
	Stream bool
}

func NewOpenAIBackend(cfg OpenAIConfig) repository.LLMBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries belong to the dispatcher
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIBackend{
		name:   name,
		client: openai.NewClient(opts...),
		stream: cfg.Stream,
	}
}

func (b *OpenAIBackend) Name() string {
	return b.name
}

func (b *OpenAIBackend) Complete(ctx context.Context, call entity.BackendCall) (string, error) {
	metrics.IncLLMRequest(b.name, call.Model)
	start := time.Now()
	defer func() { metrics.ObserveLLMLatency(b.name, time.Since(start)) }()

	params := b.params(call)
	if b.stream {
		return b.completeStream(ctx, params)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.IncError("llm", b.name+"_request")
		return "", b.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.IncError("llm", b.name+"_empty")
		return "", fmt.Errorf("%s: invalid response format: no choices", b.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (b *OpenAIBackend) params(call entity.BackendCall) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if call.System != "" {
		messages = append(messages, openai.SystemMessage(call.System))
	}
	messages = append(messages, openai.UserMessage(call.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    call.Model,
		Messages: messages,
	}
	if call.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(call.MaxTokens))
	}
	if call.Sampling.Temperature > 0 {
		params.Temperature = openai.Float(call.Sampling.Temperature)
	}
	if call.Sampling.TopP > 0 {
		params.TopP = openai.Float(call.Sampling.TopP)
	}
	return params
}

func (b *OpenAIBackend) completeStream(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			sb.WriteString(choice.Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		metrics.IncError("llm", b.name+"_stream")
		return "", b.wrapError(err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (b *OpenAIBackend) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(b.name, apiErr.StatusCode, err)
	}
	return fmt.Errorf("%s request failed: %w", b.name, err)
}
