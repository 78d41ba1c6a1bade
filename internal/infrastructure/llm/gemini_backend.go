package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"fixifox/internal/domain/entity"
	"fixifox/internal/infrastructure/metrics"
)

type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey, baseURL string) (*GeminiBackend, error) {
	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func (g *GeminiBackend) Name() string {
	return "gemini"
}

func (g *GeminiBackend) Complete(ctx context.Context, call entity.BackendCall) (string, error) {
	metrics.IncLLMRequest("gemini", call.Model)
	start := time.Now()
	defer func() { metrics.ObserveLLMLatency("gemini", time.Since(start)) }()

	config := &genai.GenerateContentConfig{}
	if call.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: call.System}},
		}
	}
	if call.Sampling.Temperature > 0 {
		temp := float32(call.Sampling.Temperature)
		config.Temperature = &temp
	}
	if call.Sampling.TopP > 0 {
		topP := float32(call.Sampling.TopP)
		config.TopP = &topP
	}
	if call.MaxTokens > 0 {
		config.MaxOutputTokens = int32(call.MaxTokens)
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: call.Prompt}},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, call.Model, contents, config)
	if err != nil {
		metrics.IncError("llm", "gemini_request")
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", statusError("gemini", apiErr.Code, err)
		}
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	var content strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			content.WriteString(part.Text)
		}
		// first candidate only
		break
	}
	if content.Len() == 0 {
		metrics.IncError("llm", "gemini_empty")
		return "", fmt.Errorf("gemini returned no text for model %s", call.Model)
	}
	return strings.TrimSpace(content.String()), nil
}
