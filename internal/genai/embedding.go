package genai

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

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/ratelimit"
)

const (
	// DefaultEmbeddingDimensions is the vector size of the default
	// sentence-embedding model served by the gateway.
	DefaultEmbeddingDimensions = 384

	defaultEmbeddingRPM         = 600
	defaultEmbeddingMaxAttempts = 3
	defaultEmbeddingTimeout     = 30 * time.Second
	defaultEmbeddingInitial     = 500 * time.Millisecond
	defaultEmbeddingMaxDelay    = 5 * time.Second
)

// EmbeddingRecorder receives embedding request outcomes. *metrics.Metrics satisfies it.
type EmbeddingRecorder interface {
	RecordEmbedding(status string, duration float64)
}

// EmbeddingConfig configures the embedding gateway client.
type EmbeddingConfig struct {
	URL               string
	Dimensions        int
	RequestsPerMinute float64
	MaxAttempts       int
	Timeout           time.Duration
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	Recorder          EmbeddingRecorder
}

// EmbeddingClient calls the embedding gateway: POST {texts} returning
// {embeddings, model_id, dimensions}.
type EmbeddingClient struct {
	url         string
	dimensions  int
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
	retry       RetryConfig
	recorder    EmbeddingRecorder
}

// NewEmbeddingClient creates a gateway client. Zero fields take defaults.
func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultEmbeddingDimensions
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultEmbeddingRPM
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultEmbeddingMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEmbeddingTimeout
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultEmbeddingInitial
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultEmbeddingMaxDelay
	}

	return &EmbeddingClient{
		url:         cfg.URL,
		dimensions:  cfg.Dimensions,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: ratelimit.NewPerMinute(cfg.RequestsPerMinute),
		retry: RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
		},
		recorder: cfg.Recorder,
	}
}

type embeddingRequest struct {
	Texts []string `json:"texts"`
}

type embeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	ModelID    string      `json:"model_id"`
	Dimensions int         `json:"dimensions"`
}

// gatewayError carries whether a failed attempt is worth retrying and how
// long the gateway asked us to wait.
type gatewayError struct {
	err        error
	retryable  bool
	retryAfter time.Duration
}

func (e *gatewayError) Error() string { return e.err.Error() }
func (e *gatewayError) Unwrap() error { return e.err }

// Embed returns one vector per input text, in order. Any failure,
// including an empty vector, wraps apperrors.ErrEmbeddingUnavailable.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("%w: gateway URL not configured", apperrors.ErrEmbeddingUnavailable)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	var lastErr error

	for attempt := range c.retry.MaxAttempts {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			lastErr = fmt.Errorf("rate limit wait: %w", err)
			break
		}

		vectors, err := c.embedOnce(ctx, texts)
		if err == nil {
			c.record("success", start)
			return vectors, nil
		}
		lastErr = err

		var gwErr *gatewayError
		if !errors.As(err, &gwErr) || !gwErr.retryable || attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := max(CalculateBackoff(attempt+1, c.retry.InitialDelay, c.retry.MaxDelay), gwErr.retryAfter)
		slog.DebugContext(ctx, "retrying embedding request",
			"attempt", attempt+1,
			"backoff", delay,
			"error", err)
		if err := Sleep(ctx, delay); err != nil {
			break
		}
	}

	c.record("error", start)
	return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbeddingUnavailable, lastErr)
}

// EmbedOne embeds a single text.
func (c *EmbeddingClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", apperrors.ErrEmbeddingUnavailable)
	}
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *EmbeddingClient) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &gatewayError{err: fmt.Errorf("execute request: %w", err), retryable: ctx.Err() == nil}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &gatewayError{
			err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			retryAfter: ParseRetryAfter(resp.Header),
		}
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gateway returned %d embeddings for %d texts", len(decoded.Embeddings), len(texts))
	}
	for i, v := range decoded.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
	}
	if decoded.Dimensions > 0 && decoded.Dimensions != c.dimensions {
		slog.WarnContext(ctx, "embedding dimension differs from configuration",
			"model_id", decoded.ModelID,
			"got", decoded.Dimensions,
			"want", c.dimensions)
	}

	return decoded.Embeddings, nil
}

func (c *EmbeddingClient) record(status string, start time.Time) {
	if c.recorder != nil {
		c.recorder.RecordEmbedding(status, time.Since(start).Seconds())
	}
}

// Dimensions returns the configured vector size.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// IsConfigured returns true if the gateway URL is set.
func (c *EmbeddingClient) IsConfigured() bool {
	return c != nil && c.url != ""
}
