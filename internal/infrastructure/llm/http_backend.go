package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fixifox/internal/domain/entity"
	"fixifox/internal/infrastructure/metrics"
)

// HTTPBackend posts plain chat completion requests to an endpoint that
// speaks the OpenAI wire format but needs custom auth, such as a self-hosted
// gateway.
type HTTPBackend struct {
	name       string
	url        string
	apiKey     string
	authHeader string
	client     *http.Client
	logger     *slog.Logger
}

type HTTPConfig struct {
	Name   string
	URL    string
	APIKey string
	// AuthHeader defaults to Authorization.
	AuthHeader string
	Timeout    time.Duration
}

func NewHTTPBackend(cfg HTTPConfig, logger *slog.Logger) *HTTPBackend {
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPBackend{
		name:       cfg.Name,
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		authHeader: cfg.AuthHeader,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (g *HTTPBackend) Name() string {
	return g.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *HTTPBackend) Complete(ctx context.Context, call entity.BackendCall) (string, error) {
	metrics.IncLLMRequest(g.name, call.Model)
	start := time.Now()
	defer func() { metrics.ObserveLLMLatency(g.name, time.Since(start)) }()

	request := chatRequest{Model: call.Model, MaxTokens: call.MaxTokens}
	if call.System != "" {
		request.Messages = append(request.Messages, chatMessage{Role: "system", Content: call.System})
	}
	request.Messages = append(request.Messages, chatMessage{Role: "user", Content: call.Prompt})
	if t := call.Sampling.Temperature; t > 0 {
		request.Temperature = &t
	}
	if p := call.Sampling.TopP; p > 0 {
		request.TopP = &p
	}

	response, err := g.makeRequest(ctx, request)
	if err != nil {
		return "", err
	}

	content, err := parseResponse(response)
	if err != nil {
		metrics.IncError("llm", "parse_response")
		return "", fmt.Errorf("failed to parse %s response: %w", g.name, err)
	}
	return content, nil
}

func (g *HTTPBackend) makeRequest(ctx context.Context, request chatRequest) (*chatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		metrics.IncError("llm", "marshal_request")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewBuffer(jsonData))
	if err != nil {
		metrics.IncError("llm", "create_request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(g.authHeader, "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncError("llm", "http_do")
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Warn("close body", "backend", g.name, "err", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.IncError("llm", fmt.Sprintf("api_error_%d", resp.StatusCode))
		return nil, statusError(g.name, resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		metrics.IncError("llm", "decode_response")
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &response, nil
}

func parseResponse(response *chatResponse) (string, error) {
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("invalid response format: no choices")
	}
	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("invalid response format: no content")
	}
	return content, nil
}
