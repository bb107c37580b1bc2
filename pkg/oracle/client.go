// Package oracle talks to the external language model that arbitrates
// uncertain matches.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/scoutalgo/clover/pkg/matching"
	"github.com/scoutalgo/clover/pkg/metrics"
	"github.com/scoutalgo/clover/pkg/tracing"
)

const (
	// DefaultTimeout is the per-attempt request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (1MB)
	MaxResponseSize = 1024 * 1024
)

// ErrRetryable marks transport failures and 5xx/429 responses
var ErrRetryable = errors.New("retryable oracle failure")

// Config holds oracle client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Temperature float64
	MaxTokens   int
	// MatchThreshold is quoted in the prompt as the confidence that means "match"
	MatchThreshold int
}

// DefaultConfig returns default oracle configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.openai.com/v1",
		Model:          "gpt-4o-mini",
		Timeout:        DefaultTimeout,
		MaxAttempts:    3,
		Backoff:        time.Second,
		Temperature:    0.1,
		MaxTokens:      500,
		MatchThreshold: 60,
	}
}

// Client is an OpenAI-compatible chat completions oracle
type Client struct {
	http   *http.Client
	logger ectologger.Logger
	config Config
}

// NewClient creates a new oracle client
func NewClient(config Config, logger ectologger.Logger) *Client {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		logger: logger,
		config: config,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// verdictPayload is the JSON object the model is asked to produce
type verdictPayload struct {
	MatchedID  *string `json:"matched_id"`
	Confidence *int    `json:"confidence"`
	Verdict    string  `json:"verdict"`
	Rationale  string  `json:"rationale"`
}

// Arbitrate asks the model which candidate, if any, is the query product
func (c *Client) Arbitrate(ctx context.Context, req matching.OracleRequest) (*matching.OracleResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "oracle.Client.Arbitrate")
	defer span.End()

	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(c.config.MatchThreshold)},
			{Role: "user", Content: userPrompt(req)},
		},
		Temperature:    c.config.Temperature,
		MaxTokens:      c.config.MaxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode oracle request: %w", err)
	}

	start := time.Now()
	resp, err := c.arbitrate(ctx, req, body)
	metrics.OracleCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OracleCallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.OracleCallsTotal.WithLabelValues("ok").Inc()
	return resp, nil
}

func (c *Client) arbitrate(ctx context.Context, req matching.OracleRequest, body []byte) (*matching.OracleResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * c.config.Backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		content, err := c.post(ctx, body)
		if err == nil {
			return parseVerdict(content)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrRetryable) {
			return nil, err
		}
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"attempt":      attempt,
			"max_attempts": c.config.MaxAttempts,
			"query_id":     req.Query.ID,
		}).Warn("Oracle call failed, retrying")
	}
	return nil, fmt.Errorf("oracle failed after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrRetryable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %v", ErrRetryable, err)
	}
	if len(raw) > MaxResponseSize {
		return "", fmt.Errorf("response body too large: %d bytes (max %d)", len(raw), MaxResponseSize)
	}

	c.logger.WithContext(ctx).Debugf("Oracle POST %s -> %d (%s)", url, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrRetryable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", fmt.Errorf("%w: %v", matching.ErrMalformedOracleResponse, err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", matching.ErrMalformedOracleResponse)
	}
	return chat.Choices[0].Message.Content, nil
}

func parseVerdict(content string) (*matching.OracleResponse, error) {
	var payload verdictPayload
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", matching.ErrMalformedOracleResponse, err)
	}
	if payload.Confidence == nil || *payload.Confidence < 0 || *payload.Confidence > 100 {
		return nil, fmt.Errorf("%w: confidence out of range", matching.ErrMalformedOracleResponse)
	}

	resp := &matching.OracleResponse{
		Confidence: *payload.Confidence,
		Verdict:    strings.ToLower(strings.TrimSpace(payload.Verdict)),
		Rationale:  payload.Rationale,
	}
	if payload.MatchedID != nil {
		resp.MatchedID = *payload.MatchedID
	}
	if resp.Verdict == matching.OracleVerdictMatch && resp.MatchedID == "" {
		return nil, fmt.Errorf("%w: match without id", matching.ErrMalformedOracleResponse)
	}
	return resp, nil
}

// stripFences removes a markdown code fence some models wrap JSON in
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
