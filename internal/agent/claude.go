package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/ops"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-5-20250929"
)

// Options configure a Client. Zero values pick defaults.
type Options struct {
	BaseURL string
	Stats   *LLMStats
	Logger  *slog.Logger
	// Backoff overrides the wait between retries.
	Backoff func(attempt int) time.Duration
}

// Client calls the Anthropic Messages API to propose edit batches.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	stats      *LLMStats
	log        *slog.Logger
	backoff    func(attempt int) time.Duration
}

func NewClient(apiKey, model string, opts Options) *Client {
	if model == "" {
		model = DefaultModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Stats == nil {
		opts.Stats = NewLLMStats(time.Hour)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Backoff == nil {
		opts.Backoff = Backoff
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		stats:   opts.Stats,
		log:     opts.Logger,
		backoff: opts.Backoff,
	}
}

// Model returns the model name sent with each request.
func (c *Client) Model() string { return c.model }

// Stats returns the latency tracker for this client.
func (c *Client) Stats() *LLMStats { return c.stats }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ProposeEdits asks the model for one operation batch that carries out
// req.Instruction. The batch is shape-checked and screened but not applied;
// the caller submits it against req.Version. A nil batch means the model
// proposed no change.
func (c *Client) ProposeEdits(ctx context.Context, req Request) (ops.Batch, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return nil, fmt.Errorf("instruction is required")
	}
	prompt := BuildEditPrompt(req)
	if n := EstimateTokens(prompt); n > MaxPromptTokens {
		return nil, domain.NewValidationError(domain.InvariantShape,
			"document too large for the agent: ~%d tokens, limit %d", n, MaxPromptTokens)
	}
	log := c.log.With("doc_id", req.DocumentID, "model", c.model)

	var raw string
	var lastErr error
	for attempt := range MaxRetries {
		raw, lastErr = c.complete(ctx, EditSystemPrompt, prompt)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		log.Warn("retryable agent error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	batch, err := parseBatch(raw)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		log.Info("agent proposed no changes")
		return nil, nil
	}
	if err := ValidateProposal(batch); err != nil {
		log.Warn("agent proposal rejected", "error", err)
		return nil, err
	}
	log.Info("agent proposal", "operations", len(batch))
	return batch, nil
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 8192,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}
	defer resp.Body.Close()
	c.stats.Record(time.Since(start).Milliseconds(), resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("claude api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response from claude")
	}
	return apiResp.Content[0].Text, nil
}

// parseBatch accepts either {"operations":[...]} or a bare array.
func parseBatch(text string) (ops.Batch, error) {
	text = stripCodeBlock(text)
	var batch ops.Batch
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &batch); err != nil {
			return nil, fmt.Errorf("parse operations: %w (raw: %s)", err, truncate(text, 200))
		}
		return batch, nil
	}
	var wrapped struct {
		Operations ops.Batch `json:"operations"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, fmt.Errorf("parse operations: %w (raw: %s)", err, truncate(text, 200))
	}
	return wrapped.Operations, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
