package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/recipe-extractor/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/recipe-extractor/internal/config"
	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	"github.com/fairyhunter13/recipe-extractor/internal/service/keyrotation"
)

func textResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
			"finishReason": "STOP",
		}},
	})
	return string(b)
}

const exhaustedJSON = `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`

type keyLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *keyLog) add(k string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, k)
	return len(l.keys)
}

func (l *keyLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func newTestClient(t *testing.T, h http.HandlerFunc, keys string) (*Client, *keyrotation.Manager) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		AppEnv:           "test",
		GeminiAPIKeys:    keys,
		GeminiBaseURL:    srv.URL,
		GeminiModel:      "gemini-1.5-flash",
		GeminiMaxRetries: 2,
		GeminiTimeout:    5 * time.Second,
	}
	mgr := keyrotation.NewManager(cfg, keyrotation.RoundRobin)
	c := New(cfg, mgr)
	c.countTokens = func(text, _ string) int { return tokencount.Estimate(text) }
	return c, mgr
}

func TestGenerateJSON_Success(t *testing.T) {
	log := &keyLog{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		log.add(r.Header.Get(apiKeyHeader))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("key"))

		body, _ := io.ReadAll(r.Body)
		var req generateRequest
		if !assert.NoError(t, json.Unmarshal(body, &req)) {
			return
		}
		assert.Equal(t, "extract please", req.Contents[0].Parts[0].Text)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)

		_, _ = w.Write([]byte(textResponse("```json\n{\"title\":\"Pancakes\"}\n```")))
	}, "g-key-1,g-key-2")

	out, err := c.GenerateJSON(context.Background(), "extract please")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Pancakes"}`, string(out))
	assert.Equal(t, []string{"g-key-1"}, log.all())
}

func TestGenerateJSON_ResourceExhaustedRotates(t *testing.T) {
	log := &keyLog{}
	c, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if log.add(r.Header.Get(apiKeyHeader)) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(exhaustedJSON))
			return
		}
		_, _ = w.Write([]byte(textResponse(`[1,2,3]`)))
	}, "g1,g2")

	out, err := c.GenerateJSON(context.Background(), "p")
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(out))
	assert.Equal(t, []string{"g1", "g2"}, log.all())
	assert.Equal(t, 1, mgr.Statistics().Services[config.ServiceGemini].Failed)
}

func TestGenerateJSON_OverloadedDemotes(t *testing.T) {
	c, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(apiKeyHeader) == "g1" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"The model is overloaded. Please try again later.","status":"UNAVAILABLE"}}`))
			return
		}
		_, _ = w.Write([]byte(textResponse(`{}`)))
	}, "g1,g2")

	_, err := c.GenerateJSON(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.Statistics().Services[config.ServiceGemini].Failed)
}

func TestGenerateJSON_UnauthorizedRetriesWithoutDemotion(t *testing.T) {
	log := &keyLog{}
	c, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		log.add(r.Header.Get(apiKeyHeader))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	}, "g1,g2")

	_, err := c.GenerateJSON(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamExhausted)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Code)
	assert.Equal(t, []string{"g1", "g2", "g1"}, log.all())
	assert.Equal(t, 0, mgr.Statistics().Services[config.ServiceGemini].Failed)
}

func TestGenerateJSON_InvalidJSONCountsAgainstBudget(t *testing.T) {
	log := &keyLog{}
	c, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := log.add(r.Header.Get(apiKeyHeader))
		if n < 3 {
			_, _ = w.Write([]byte(textResponse("Sorry, I can't find a recipe here.")))
			return
		}
		_, _ = w.Write([]byte(textResponse(`{"title":"ok"}`)))
	}, "g1")

	out, err := c.GenerateJSON(context.Background(), "p")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"ok"}`, string(out))
	assert.Len(t, log.all(), 3)
	assert.Equal(t, 0, mgr.Statistics().Services[config.ServiceGemini].Failed)
}

func TestGenerateJSON_InvalidJSONExhausts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(textResponse("not json")))
	}, "g1")

	_, err := c.GenerateJSON(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrUpstreamExhausted)
	assert.ErrorIs(t, err, domain.ErrInvalidJSON)
}

func TestGenerateJSON_EmptyCandidates(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}, "g1")

	_, err := c.GenerateJSON(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerateJSON_NoCredential(t *testing.T) {
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("upstream must not be called")
	}, "")

	_, err := c.GenerateJSON(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrNoCredential)
	assert.Contains(t, err.Error(), config.EnvGeminiAPIKeys)
}

func TestGenerateJSON_EmptyPrompt(t *testing.T) {
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("upstream must not be called")
	}, "g1")

	_, err := c.GenerateJSON(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGenerateJSON_ConcurrentCallsUseOwnCredential(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		b, _ := json.Marshal(map[string]string{"key": key})
		_, _ = w.Write([]byte(textResponse(string(b))))
	}, "g1,g2,g3")

	var wg sync.WaitGroup
	results := make([]string, 9)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := c.GenerateJSON(context.Background(), "p")
			if !assert.NoError(t, err) {
				return
			}
			var got map[string]string
			_ = json.Unmarshal(out, &got)
			results[i] = got["key"]
		}(i)
	}
	wg.Wait()

	counts := map[string]int{}
	for _, k := range results {
		counts[k]++
	}
	assert.Equal(t, map[string]int{"g1": 3, "g2": 3, "g3": 3}, counts)
}

func TestAPIError_Error(t *testing.T) {
	assert.Equal(t, "gemini: status 429 (RESOURCE_EXHAUSTED): slow down",
		(&APIError{Status: 429, Code: "RESOURCE_EXHAUSTED", Message: "slow down"}).Error())
	assert.Equal(t, "gemini: status 500 (UNKNOWN): boom", (&APIError{Status: 500, Message: "boom"}).Error())
}
