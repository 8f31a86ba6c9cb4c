// Command server starts the recipe extractor HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/recipe-extractor/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/recipe-extractor/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/recipe-extractor/internal/adapter/httpserver"
	"github.com/fairyhunter13/recipe-extractor/internal/adapter/observability"
	"github.com/fairyhunter13/recipe-extractor/internal/adapter/youtube"
	"github.com/fairyhunter13/recipe-extractor/internal/app"
	"github.com/fairyhunter13/recipe-extractor/internal/config"
	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	"github.com/fairyhunter13/recipe-extractor/internal/service/keyrotation"
	"github.com/fairyhunter13/recipe-extractor/internal/service/ratelimiter"
	"github.com/fairyhunter13/recipe-extractor/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	strategy, ok := keyrotation.ParseStrategy(cfg.RotationStrategy)
	if !ok {
		slog.Warn("unknown rotation strategy, using ROUND_ROBIN", slog.String("value", cfg.RotationStrategy))
	}
	keys := keyrotation.NewManager(cfg, strategy)

	// Pools load on first use; only the raw configuration is inspected here.
	for _, svc := range []struct{ name, env string }{
		{config.ServiceYouTube, config.EnvYouTubeAPIKeys},
		{config.ServiceGemini, config.EnvGeminiAPIKeys},
	} {
		if list, legacy := cfg.CredentialSource(svc.name); !hasCredential(list, legacy) {
			slog.Warn("no credential configured; calls will fail",
				slog.String("upstream", svc.name),
				slog.String("config_key", svc.env))
		}
	}

	// Redis is optional: it backs the video cache and the shared extraction limit.
	var (
		rdb        *redis.Client
		videoCache domain.VideoCache
		limiter    ratelimiter.Limiter
		redisCheck func(context.Context) error
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close redis client", slog.Any("error", err))
			}
		}()
		videoCache = cache.NewVideoCache(rdb, cfg.VideoCacheTTL)
		limiter = ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			app.ExtractBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.ExtractRatePerMin),
		})
		redisCheck = app.BuildRedisCheck(app.PingRedis(rdb))
		slog.Info("redis enabled", slog.String("addr", opts.Addr), slog.Duration("video_cache_ttl", cfg.VideoCacheTTL))
	} else {
		slog.Info("redis not configured; video cache and shared rate limit disabled")
	}

	recipes := usecase.NewRecipeService(youtube.New(cfg, keys), gemini.New(cfg, keys), videoCache)
	srv := httpserver.NewServer(cfg, recipes, keys, redisCheck)
	handler := app.BuildRouter(cfg, srv, limiter)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting",
			slog.Int("port", cfg.Port),
			slog.String("strategy", strategy.String()),
			slog.Bool("admin_enabled", cfg.AdminEnabled()))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

// hasCredential reports whether a raw credential list or legacy value holds
// at least one non-blank entry.
func hasCredential(list, legacy string) bool {
	if strings.TrimSpace(legacy) != "" {
		return true
	}
	for _, k := range strings.Split(list, ",") {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}
