// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// Credential pools. The comma-separated list wins over the legacy single key.
	YouTubeAPIKeys string `env:"YOUTUBE_API_KEYS"`
	YouTubeAPIKey  string `env:"YOUTUBE_API_KEY"`
	YouTubeBaseURL string `env:"YOUTUBE_BASE_URL" envDefault:"https://www.googleapis.com/youtube/v3"`
	GeminiAPIKeys  string `env:"GEMINI_API_KEYS"`
	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	GeminiBaseURL  string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel    string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	// RotationStrategy is one of SEQUENTIAL, RANDOM, ROUND_ROBIN. Unknown values fall back to ROUND_ROBIN.
	RotationStrategy string `env:"API_KEY_ROTATION_STRATEGY" envDefault:"ROUND_ROBIN"`

	// Per-service retry policies
	YouTubeMaxRetries        int           `env:"YOUTUBE_MAX_RETRIES" envDefault:"3"`
	YouTubeRetryInitialDelay time.Duration `env:"YOUTUBE_RETRY_INITIAL_DELAY" envDefault:"1s"`
	YouTubeRetryMultiplier   float64       `env:"YOUTUBE_RETRY_MULTIPLIER" envDefault:"2.0"`
	GeminiMaxRetries         int           `env:"GEMINI_MAX_RETRIES" envDefault:"2"`
	GeminiRetryInitialDelay  time.Duration `env:"GEMINI_RETRY_INITIAL_DELAY" envDefault:"1s"`
	GeminiRetryMultiplier    float64       `env:"GEMINI_RETRY_MULTIPLIER" envDefault:"1.5"`
	RetryMaxDelay            time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`

	YouTubeTimeout time.Duration `env:"YOUTUBE_TIMEOUT" envDefault:"15s"`
	GeminiTimeout  time.Duration `env:"GEMINI_TIMEOUT" envDefault:"60s"`

	// RedisURL enables the video metadata cache when set.
	RedisURL      string        `env:"REDIS_URL"`
	VideoCacheTTL time.Duration `env:"VIDEO_CACHE_TTL" envDefault:"6h"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"recipe-extractor"`

	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	// AdminPasswordHash is an argon2id hash; it takes precedence over AdminPassword.
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	// ExtractRatePerMin bounds extractions per client across instances; needs REDIS_URL.
	ExtractRatePerMin     int           `env:"EXTRACT_RATE_PER_MIN" envDefault:"10"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Environment variable names for the credential pools, used in error messages.
const (
	EnvYouTubeAPIKeys = "YOUTUBE_API_KEYS"
	EnvYouTubeAPIKey  = "YOUTUBE_API_KEY"
	EnvGeminiAPIKeys  = "GEMINI_API_KEYS"
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
)

// AdminEnabled returns true if admin features should be enabled
func (c Config) AdminEnabled() bool {
	return c.AdminUsername != "" && (c.AdminPassword != "" || c.AdminPasswordHash != "")
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// CredentialSource returns the raw multi-value list and legacy single value
// configured for a named service. Unknown services have neither.
func (c Config) CredentialSource(service string) (list, legacy string) {
	switch service {
	case ServiceYouTube:
		return c.YouTubeAPIKeys, c.YouTubeAPIKey
	case ServiceGemini:
		return c.GeminiAPIKeys, c.GeminiAPIKey
	}
	return "", ""
}
