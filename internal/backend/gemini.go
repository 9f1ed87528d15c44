// Package backend talks to the generative-language API. The rest of the
// system treats it as an opaque completion dependency behind the Client and
// Chat interfaces.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AgentHub/internal/orchestrator"
)

// DefaultBaseURL is the generative-language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client starts chat sessions and generates images.
type Client interface {
	StartChat(model, systemPrompt string) Chat
	GenerateImage(ctx context.Context, model, prompt string) (string, error)
}

// Chat is one stateful completion session. Send appends the user parts to
// the session history, calls the model and records its reply.
type Chat interface {
	Send(ctx context.Context, parts []orchestrator.Part) (string, error)
}

// GeminiClient is the REST client for the generative-language API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// GeminiOption customizes a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(u string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTelemetry attaches a tracer and meter for API call spans and usage
// counters.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) GeminiOption {
	return func(c *GeminiClient) {
		c.tracer = tracer
		c.meter = meter
	}
}

// NewGeminiClient creates a client for the given API key.
func NewGeminiClient(apiKey string, logger *slog.Logger, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartChat opens a session for the model with an optional system prompt.
func (c *GeminiClient) StartChat(model, systemPrompt string) Chat {
	return &geminiChat{client: c, model: model, systemPrompt: systemPrompt}
}

type geminiChat struct {
	client       *GeminiClient
	model        string
	systemPrompt string

	mu      sync.Mutex
	history []GeminiContent
}

func (ch *geminiChat) Send(ctx context.Context, parts []orchestrator.Part) (string, error) {
	userParts := make([]GeminiPart, 0, len(parts))
	for _, p := range parts {
		userParts = append(userParts, GeminiPart{Text: p.Text})
	}

	ch.mu.Lock()
	contents := append(append([]GeminiContent{}, ch.history...), GeminiContent{Role: "user", Parts: userParts})
	ch.mu.Unlock()

	req := GeminiRequest{Contents: contents}
	if ch.systemPrompt != "" {
		req.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: ch.systemPrompt}}}
	}

	text, err := ch.client.generate(ctx, ch.model, req)
	if err != nil {
		return "", err
	}

	ch.mu.Lock()
	ch.history = append(contents, GeminiContent{Role: "model", Parts: []GeminiPart{{Text: text}}})
	ch.mu.Unlock()
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, model string, reqBody GeminiRequest) (string, error) {
	resp, err := c.call(ctx, model, reqBody, "completion_api_call")
	if err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", fmt.Errorf("empty response from model %s", model)
}

// GenerateImage asks an image-capable model for a picture and returns it as
// a data URL.
func (c *GeminiClient) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	req := GeminiRequest{
		Contents: []GeminiContent{{Role: "user", Parts: []GeminiPart{{Text: prompt}}}},
		GenerationConfig: &GeminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}

	resp, err := c.call(ctx, model, req, "image_api_call")
	if err != nil {
		return "", err
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return fmt.Sprintf("data:%s;base64,%s", part.InlineData.MimeType, part.InlineData.Data), nil
			}
		}
	}
	return "", fmt.Errorf("no image in response from model %s", model)
}

func (c *GeminiClient) call(ctx context.Context, model string, reqBody GeminiRequest, spanName string) (*GeminiResponse, error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, spanName)
		defer span.End()
	}
	start := time.Now()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp GeminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.recordUsage(ctx, model, &apiResp, time.Since(start))
	return &apiResp, nil
}

func (c *GeminiClient) recordUsage(ctx context.Context, model string, resp *GeminiResponse, elapsed time.Duration) {
	c.logger.Info("model call completed",
		"model", model,
		"promptTokens", resp.UsageMetadata.PromptTokenCount,
		"candidateTokens", resp.UsageMetadata.CandidatesTokenCount,
		"durationMs", elapsed.Milliseconds(),
	)
	if c.meter == nil {
		return
	}
	if hist, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	); err == nil {
		hist.Record(ctx, float64(elapsed.Milliseconds()))
	}
	if counter, err := c.meter.Int64Counter(
		"llm.usage.total_tokens",
		metric.WithDescription("LLM usage metric: total tokens"),
	); err == nil {
		counter.Add(ctx, int64(resp.UsageMetadata.TotalTokenCount))
	}
}
