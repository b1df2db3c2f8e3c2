package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// GeminiConfig holds the Gemini client configuration.
type GeminiConfig struct {
	BaseURL         string
	APIKey          string
	Temperature     float32
	MaxOutputTokens int
	Timeout         time.Duration // per-request deadline
	MaxRetries      int           // in-place retries on a plain rate limit
	RetryBackoff    time.Duration // base backoff, doubled per attempt
	RequestsPerSec  float64       // outbound pacing, 0 = unlimited
}

// DefaultGeminiConfig returns the default configuration.
func DefaultGeminiConfig() *GeminiConfig {
	return &GeminiConfig{
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta/models",
		Temperature:     0.7,
		MaxOutputTokens: 1024,
		Timeout:         30 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    time.Second,
	}
}

// GeminiClient sends conversation turns to the generateContent endpoint,
// selecting among candidate models starting at the sticky cursor.
type GeminiClient struct {
	config     *GeminiConfig
	candidates *Candidates
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGeminiClient creates a Gemini client bound to a shared candidate list.
func NewGeminiClient(cfg *GeminiConfig, candidates *Candidates) (*GeminiClient, error) {
	if cfg == nil {
		cfg = DefaultGeminiConfig()
	}
	if cfg.APIKey == "" {
		return nil, &GenerateError{Kind: KindNoCredential}
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &GenerateError{Kind: KindMalformedEndpoint, Err: fmt.Errorf("base url %q", cfg.BaseURL)}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	return &GeminiClient{
		config:     cfg,
		candidates: candidates,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}, nil
}

// Wire types for the generateContent protocol. Decoding checks field presence
// explicitly so absent candidates, block reasons and safety stops surface as
// named error kinds instead of generic parse failures.

type generateRequest struct {
	Contents         []wireContent    `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates     []wireCandidate `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
}

type wireCandidate struct {
	Content      *wireContent `json:"content"`
	FinishReason string       `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// Send implements Generator.
//
// The new user text is appended speculatively, then candidates are tried in
// order starting at the sticky cursor with wraparound. Quota-class failures
// move to the next candidate; anything terminal rolls the speculative entry
// back and fails the turn.
func (c *GeminiClient) Send(ctx context.Context, conv *Conversation, userText string) (string, error) {
	mark := conv.Len()
	conv.append(Message{Role: RoleUser, Text: userText})

	models := c.candidates.Models()
	start := c.candidates.Cursor()

	var lastQuotaErr error
	for i := 0; i < len(models); i++ {
		idx := (start + i) % len(models)
		model := models[idx]

		reply, err := c.generate(ctx, model, conv.messages)
		if err == nil {
			c.candidates.Advance(idx)
			conv.append(Message{Role: RoleModel, Text: reply})
			return reply, nil
		}

		if KindOf(err) == KindQuotaExhausted {
			lastQuotaErr = err
			slog.Warn("model candidate unusable, failing over", "model", model, "error", err)
			continue
		}

		conv.truncate(mark)
		return "", err
	}

	conv.truncate(mark)
	return "", &GenerateError{Kind: KindAllCandidatesExhausted, Err: lastQuotaErr}
}

// generate performs the round trip for one candidate, retrying plain rate
// limits in place with exponential backoff. An exhausted retry budget is
// treated as quota exhaustion so the caller moves on.
func (c *GeminiClient) generate(ctx context.Context, model string, messages []Message) (string, error) {
	backoff := c.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &GenerateError{Kind: KindNetworkFailure, Model: model, Err: err}
		}

		reply, err := c.doRequest(ctx, model, messages)
		if err == nil {
			return reply, nil
		}
		if KindOf(err) != KindRateLimited {
			return "", err
		}

		lastErr = err
		if attempt < c.config.MaxRetries {
			slog.Debug("rate limited, backing off", "model", model, "attempt", attempt+1, "wait", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", &GenerateError{Kind: KindNetworkFailure, Model: model, Err: ctx.Err()}
			}
			backoff *= 2
		}
	}

	// Retry budget exhausted on a plain rate limit.
	return "", &GenerateError{Kind: KindQuotaExhausted, Model: model, Err: lastErr}
}

func (c *GeminiClient) doRequest(ctx context.Context, model string, messages []Message) (string, error) {
	body, err := json.Marshal(c.buildRequest(messages))
	if err != nil {
		return "", &GenerateError{Kind: KindDecodingFailure, Model: model, Err: err}
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), model, url.QueryEscape(c.config.APIKey))

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &GenerateError{Kind: KindMalformedEndpoint, Model: model, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts are classified like any other transport failure.
		return "", &GenerateError{Kind: KindNetworkFailure, Model: model, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &GenerateError{Kind: KindNetworkFailure, Model: model, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := classifyStatus(resp.StatusCode, string(respBody))
		return "", &GenerateError{Kind: kind, Model: model, StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	return decodeReply(model, respBody)
}

func (c *GeminiClient) buildRequest(messages []Message) *generateRequest {
	contents := make([]wireContent, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, wireContent{
			Role:  m.Role,
			Parts: []wirePart{{Text: m.Text}},
		})
	}
	return &generateRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     c.config.Temperature,
			MaxOutputTokens: c.config.MaxOutputTokens,
		},
	}
}

// decodeReply extracts candidates[0].content.parts[0].text, surfacing safety
// blocks and missing fields as their named kinds.
func decodeReply(model string, body []byte) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &GenerateError{Kind: KindDecodingFailure, Model: model, Err: err}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &GenerateError{Kind: KindBlockedBySafety, Model: model, Body: resp.PromptFeedback.BlockReason}
	}
	if len(resp.Candidates) == 0 {
		return "", &GenerateError{Kind: KindEmptyReply, Model: model}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", &GenerateError{Kind: KindBlockedBySafety, Model: model, Body: candidate.FinishReason}
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", &GenerateError{Kind: KindEmptyReply, Model: model}
	}

	text := candidate.Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", &GenerateError{Kind: KindEmptyReply, Model: model}
	}
	return text, nil
}

func truncateBody(body []byte) string {
	const maxLen = 512
	if len(body) > maxLen {
		return string(body[:maxLen])
	}
	return string(body)
}

var _ Generator = (*GeminiClient)(nil)
