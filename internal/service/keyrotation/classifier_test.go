package keyrotation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsQuotaExceededError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"quota exceeded phrase", errors.New("Quota exceeded for quota metric"), true},
		{"youtube reason", errors.New("googleapi: Error 403: quotaExceeded"), true},
		{"rate limit reason", errors.New("rateLimitExceeded"), true},
		{"user rate limit", errors.New("reason: userRateLimitExceeded"), true},
		{"daily limit", errors.New("dailyLimitExceeded: try tomorrow"), true},
		{"model overloaded", errors.New("503: The model is overloaded. Please try again later."), true},
		{"resource exhausted", errors.New("429 RESOURCE_EXHAUSTED: Resource has been exhausted (e.g. check quota)."), true},
		{"wrapped", fmt.Errorf("op=youtube.Video: %w", errors.New("QUOTA EXCEEDED")), true},
		{"network", errors.New("Network error"), false},
		{"unauthorized", errors.New("Unauthorized"), false},
		{"invalid key", errors.New("API key not valid. Please pass a valid API key."), false},
		{"plain rate limited", errors.New("rate limited"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaExceededError(tt.err))
		})
	}
}
