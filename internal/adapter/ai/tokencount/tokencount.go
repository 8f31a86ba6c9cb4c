// Package tokencount estimates prompt sizes for text-generation requests.
//
// Counts use tiktoken-go encodings as an approximation for every model
// family; when no encoding can be loaded the estimate falls back to roughly
// four characters per token.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
	// load is replaced in tests to avoid fetching encoding files.
	load func(model string) (*tiktoken.Tiktoken, error)
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
		load:          loadEncoding,
	}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

func loadEncoding(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return enc, nil
	}
	slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
	return tiktoken.GetEncoding("cl100k_base")
}

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}
	enc, err := c.load(normalized)
	if err != nil {
		return nil, err
	}
	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName maps a model id to a tiktoken model name.
func normalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.HasPrefix(model, "gpt-4o"):
		return "gpt-4o"
	default:
		// gemini, gemma and everything else: cl100k_base is close enough
		return "gpt-4"
	}
}

// Estimate approximates the token count of text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Count returns the number of tokens in text for model. It never fails:
// when no encoding is available it returns Estimate(text).
func (c *Counter) Count(text, model string) int {
	enc, err := c.encoding(model)
	if err != nil {
		slog.Warn("token encoding unavailable, using estimate", slog.String("model", model), slog.Any("error", err))
		return Estimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Count uses the default counter.
func Count(text, model string) int {
	return DefaultCounter.Count(text, model)
}
