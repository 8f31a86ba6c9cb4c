// Package config defines per-service retry configuration.
package config

import (
	"time"
)

// Service names shared by the credential pools and the wrappers.
const (
	ServiceYouTube = "youtube"
	ServiceGemini  = "gemini"
)

// RetryConfig holds the retry policy for one upstream service.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// Multiplier grows the delay after each retry.
	Multiplier float64
	// MaxDelay caps a single delay.
	MaxDelay time.Duration
}

// GetRetryConfig returns the retry policy for a service.
// In test environments, uses much shorter delays for faster test execution.
func (c Config) GetRetryConfig(service string) RetryConfig {
	var rc RetryConfig
	switch service {
	case ServiceGemini:
		rc = RetryConfig{MaxRetries: c.GeminiMaxRetries, InitialDelay: c.GeminiRetryInitialDelay, Multiplier: c.GeminiRetryMultiplier, MaxDelay: c.RetryMaxDelay}
	default:
		rc = RetryConfig{MaxRetries: c.YouTubeMaxRetries, InitialDelay: c.YouTubeRetryInitialDelay, Multiplier: c.YouTubeRetryMultiplier, MaxDelay: c.RetryMaxDelay}
	}
	if rc.MaxRetries < 0 {
		rc.MaxRetries = 0
	}
	if rc.Multiplier < 1 {
		rc.Multiplier = 1
	}
	if c.IsTest() {
		rc.InitialDelay = 10 * time.Millisecond
		rc.MaxDelay = 100 * time.Millisecond
	}
	return rc
}
