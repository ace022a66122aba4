// Package aiquery generates inclusive PubMed search queries from free-text
// research topics using an OpenRouter-hosted chat model.
package aiquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/observability"
)

// Default values for the OpenRouter provider.
const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "anthropic/claude-4.5-sonnet"
	DefaultTemperature = 0.4
	DefaultTopP        = 0.8
	DefaultTimeout     = 60 * time.Second
	DefaultMaxRetries  = 2
	defaultRetryDelay  = 2 * time.Second

	maxResponseBytes = 10 << 20

	sourceName = "OpenRouter"
)

// chatRequest represents the OpenRouter chat completions request body.
// OpenRouter exposes an OpenAI-compatible API surface.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p,omitempty"`
}

// chatMessage represents a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the chat completions response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
}

// chatChoice represents a single completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// apiErrorResponse represents an error response body from the API.
type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

// Config holds the parameters needed to create an OpenRouter query generator.
type Config struct {
	// APIKey is the OpenRouter API key.
	APIKey string
	// Model is the model identifier (e.g. "anthropic/claude-4.5-sonnet").
	Model string
	// BaseURL is the API base URL (empty means the OpenRouter default).
	BaseURL string
	// SiteURL is sent as the HTTP-Referer header for OpenRouter attribution.
	SiteURL string
	// SiteName is sent as the X-Title header for OpenRouter attribution.
	SiteName string
	// Temperature is the sampling temperature.
	Temperature float64
	// TopP is the nucleus sampling parameter.
	TopP float64
	// Timeout is the timeout for API calls.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}

// Generator produces PubMed search queries from research topics.
type Generator struct {
	config     Config
	httpClient *http.Client
	retryDelay time.Duration
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// SetMetrics attaches a metrics registry. Recording is skipped when
// none is attached.
func (g *Generator) SetMetrics(m *observability.Metrics) {
	g.metrics = m
}

// NewGenerator creates a query generator backed by the OpenRouter chat
// completions API.
func NewGenerator(cfg Config, logger zerolog.Logger) *Generator {
	cfg.applyDefaults()

	return &Generator{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryDelay: defaultRetryDelay,
		logger:     logger.With().Str("component", "query_generator").Logger(),
	}
}

// Enabled reports whether the generator has an API key configured. Callers
// should fall back to deterministic query construction when it does not.
func (g *Generator) Enabled() bool {
	return g.config.APIKey != ""
}

// Model returns the model identifier being used.
func (g *Generator) Model() string {
	return g.config.Model
}

// Generate asks the model for an inclusive PubMed query covering the topic.
// Transient API errors (429 and 5xx) are retried with a linear backoff.
func (g *Generator) Generate(ctx context.Context, topic string) (string, error) {
	if topic == "" {
		return "", domain.NewValidationError("topic", "must not be empty")
	}
	if !g.Enabled() {
		return "", fmt.Errorf("%s API key not configured: %w", sourceName, domain.ErrServiceUnavailable)
	}

	chatReq := chatRequest{
		Model: g.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(topic)},
		},
		Temperature: g.config.Temperature,
		TopP:        g.config.TopP,
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("query generation cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
			g.logger.Warn().Int("attempt", attempt+1).Err(lastErr).Msg("retrying query generation")
		}

		result, err := g.doRequest(ctx, chatReq)
		if err == nil {
			if g.metrics != nil {
				g.metrics.RecordQueryGeneration(g.config.Model)
			}
			return result, nil
		}
		if !isTransient(err) {
			if g.metrics != nil {
				g.metrics.RecordQueryGenerationFailed(g.config.Model)
			}
			return "", err
		}
		lastErr = err
	}

	if g.metrics != nil {
		g.metrics.RecordQueryGenerationFailed(g.config.Model)
	}
	return "", fmt.Errorf("query generation exhausted %d retries: %w", g.config.MaxRetries, lastErr)
}

// doRequest performs a single chat completions call and extracts the query.
func (g *Generator) doRequest(ctx context.Context, chatReq chatRequest) (string, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	endpoint := g.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	if g.config.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", g.config.SiteURL)
	}
	if g.config.SiteName != "" {
		httpReq.Header.Set("X-Title", g.config.SiteName)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", sourceName)
	}

	query := cleanResponse(chatResp.Choices[0].Message.Content)
	if query == "" {
		return "", fmt.Errorf("%s returned an empty query", sourceName)
	}

	return query, nil
}

// parseAPIError converts a non-200 response into an ExternalAPIError.
func parseAPIError(statusCode int, body []byte) error {
	message := string(body)

	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return domain.NewExternalAPIError(sourceName, statusCode, message, nil)
}

// isTransient reports whether the error is worth retrying.
func isTransient(err error) bool {
	var apiErr *domain.ExternalAPIError
	if !errors.As(err, &apiErr) {
		// Network-level failures are retried.
		return true
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}
