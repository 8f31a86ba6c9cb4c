// Package gemini implements domain.TextGenerator on top of the Gemini
// generateContent API with credential rotation.
package gemini

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

	"github.com/fairyhunter13/recipe-extractor/internal/adapter/ai"
	"github.com/fairyhunter13/recipe-extractor/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/recipe-extractor/internal/adapter/observability"
	"github.com/fairyhunter13/recipe-extractor/internal/config"
	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	obsctx "github.com/fairyhunter13/recipe-extractor/internal/observability"
	"github.com/fairyhunter13/recipe-extractor/internal/service/keyrotation"
)

const (
	apiKeyHeader = "x-goog-api-key"
	maxErrorBody = 4 << 10
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = "UNKNOWN"
	}
	return fmt.Sprintf("gemini: status %d (%s): %s", e.Status, code, e.Message)
}

// Client generates JSON documents from prompts. The credential is sent per
// request in a header, so concurrent calls never share credential state.
type Client struct {
	baseURL string
	model   string
	hc      *http.Client
	keys    *keyrotation.Manager
	policy  keyrotation.Policy
	cleaner *ai.ResponseCleaner
	// countTokens sizes prompts for logging and metrics.
	countTokens func(text, model string) int
}

var _ domain.TextGenerator = (*Client)(nil)

// New constructs a client from configuration.
func New(cfg config.Config, keys *keyrotation.Manager) *Client {
	rc := cfg.GetRetryConfig(config.ServiceGemini)
	return &Client{
		baseURL: strings.TrimRight(cfg.GeminiBaseURL, "/"),
		model:   cfg.GeminiModel,
		hc: &http.Client{
			Timeout:   cfg.GeminiTimeout,
			Transport: observability.HTTPTransport(config.ServiceGemini, nil),
		},
		keys: keys,
		policy: keyrotation.Policy{
			Service:      config.ServiceGemini,
			ConfigKey:    config.EnvGeminiAPIKeys,
			MaxRetries:   rc.MaxRetries,
			InitialDelay: rc.InitialDelay,
			Multiplier:   rc.Multiplier,
			MaxDelay:     rc.MaxDelay,
		},
		cleaner:     ai.NewResponseCleaner(),
		countTokens: tokencount.Count,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateJSON sends prompt to the model and returns its answer as a JSON
// object or array. A well-formed response whose text is not such a document
// fails the attempt with domain.ErrInvalidJSON and is retried like any other
// failure.
func (c *Client) GenerateJSON(ctx domain.Context, prompt string) (json.RawMessage, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt required", domain.ErrInvalidArgument)
	}
	var req generateRequest
	req.Contents = []content{{Role: "user", Parts: []part{{Text: prompt}}}}
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.Temperature = 0.2
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("op=gemini.GenerateJSON: marshal: %w", err)
	}

	promptTokens := c.countTokens(prompt, c.model)
	observability.PromptTokens.WithLabelValues(c.model).Observe(float64(promptTokens))
	obsctx.LoggerFromContext(ctx).Debug("generation request",
		slog.String("model", c.model),
		slog.Int("prompt_tokens", promptTokens))

	out, err := keyrotation.Do(ctx, c.keys, c.policy, func(ctx context.Context, key string) (json.RawMessage, error) {
		text, err := c.generate(ctx, body, key)
		if err != nil {
			return nil, err
		}
		cleaned, err := c.cleaner.CleanAndValidateJSON(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidJSON, err)
		}
		return json.RawMessage(cleaned), nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=gemini.GenerateJSON: %w", err)
	}
	return out, nil
}

// generate performs one attempt and returns the first candidate's text.
func (c *Client) generate(ctx context.Context, body []byte, key string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, key)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			apiErr.Message = env.Error.Message
			apiErr.Code = env.Error.Status
		}
		slog.Debug("gemini api error",
			slog.Int("status", apiErr.Status),
			slog.String("code", apiErr.Code))
		return "", apiErr
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
