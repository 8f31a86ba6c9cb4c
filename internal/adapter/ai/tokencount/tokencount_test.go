package tokencount

import (
	"errors"
	"testing"

	tiktoken "github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"gemini-1.5-flash", "gpt-4"},
		{"models/gemini-1.5-pro", "gpt-4"},
		{"GPT-3.5-turbo-0125", "gpt-3.5-turbo"},
		{"openai/gpt-4o-mini", "gpt-4o"},
		{"gemma-2-9b", "gpt-4"},
		{"", "gpt-4"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, normalizeModelName(tt.in))
		})
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("hi"))
	assert.Equal(t, 25, Estimate(string(make([]byte, 100))))
}

func TestCount_FallsBackToEstimate(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	loads := 0
	c.load = func(string) (*tiktoken.Tiktoken, error) {
		loads++
		return nil, errors.New("offline")
	}

	text := "Extract the recipe from this video description please."
	assert.Equal(t, Estimate(text), c.Count(text, "gemini-1.5-flash"))
	assert.Equal(t, 1, loads)

	// failures are not cached
	c.Count(text, "gemini-1.5-flash")
	assert.Equal(t, 2, loads)
}

func TestCount_Tiktoken(t *testing.T) {
	if testing.Short() {
		t.Skip("loads encoding data")
	}
	t.Parallel()

	n := NewCounter().Count("The quick brown fox jumps over the lazy dog.", "gemini-1.5-flash")
	assert.GreaterOrEqual(t, n, 8)
	assert.LessOrEqual(t, n, 12)
}
