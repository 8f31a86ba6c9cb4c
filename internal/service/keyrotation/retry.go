package keyrotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/recipe-extractor/internal/adapter/observability"
	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	obsctx "github.com/fairyhunter13/recipe-extractor/internal/observability"
)

// Policy configures Do for one upstream service.
type Policy struct {
	// Service names the credential pool.
	Service string
	// ConfigKey names the configuration entry reported when no credential exists.
	ConfigKey string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// Multiplier grows the wait after every retry.
	Multiplier float64
	// MaxDelay caps a single wait; zero means uncapped.
	MaxDelay time.Duration
	// IsCredentialFault decides whether a failed attempt demotes its credential.
	// Defaults to IsQuotaExceededError.
	IsCredentialFault func(error) bool
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Service, domain.ErrUpstreamExhausted, e.Attempts, e.Err)
}

// Unwrap exposes both the exhaustion sentinel and the last upstream error.
func (e *ExhaustedError) Unwrap() []error { return []error{domain.ErrUpstreamExhausted, e.Err} }

func (p Policy) backOff() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.InitialDelay
	expo.Multiplier = p.Multiplier
	if expo.Multiplier < 1 {
		expo.Multiplier = 1
	}
	// deterministic delay *= multiplier, bounded only by the retry count
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	if p.MaxDelay > 0 {
		expo.MaxInterval = p.MaxDelay
	} else {
		expo.MaxInterval = time.Duration(1<<63 - 1)
	}
	return expo
}

// Do runs call with credentials drawn from m until it succeeds or the retry
// budget is spent. Every attempt selects a fresh credential. Failures the
// policy attributes to the credential demote it before the next attempt;
// other failures are retried without demotion.
//
// A missing credential fails immediately with domain.ErrNoCredential.
// Cancellation of ctx fails immediately with domain.ErrCanceled and never
// demotes. Otherwise the last error is returned inside an *ExhaustedError.
func Do[T any](ctx context.Context, m *Manager, p Policy, call func(ctx context.Context, key string) (T, error)) (T, error) {
	isFault := p.IsCredentialFault
	if isFault == nil {
		isFault = IsQuotaExceededError
	}
	lg := obsctx.LoggerFromContext(ctx).With(
		"upstream", p.Service,
		"call_id", uuid.NewString(),
	)
	tr := otel.Tracer("keyrotation")

	var (
		zero     T
		attempts int
		lastErr  error
	)
	op := func() (T, error) {
		attempt := attempts
		attempts++

		key, ok := m.Select(p.Service)
		if !ok {
			lg.Error("no credential configured", "config_key", p.ConfigKey)
			return zero, backoff.Permanent(fmt.Errorf("%w: %s: set %s", domain.ErrNoCredential, p.Service, p.ConfigKey))
		}

		actx, span := tr.Start(ctx, p.Service+".attempt")
		span.SetAttributes(
			attribute.String("keyrotation.service", p.Service),
			attribute.Int("keyrotation.attempt", attempt),
			attribute.String("keyrotation.key_prefix", MaskKey(key)),
		)
		start := time.Now()
		res, err := call(actx, key)
		observability.UpstreamAttemptDuration.WithLabelValues(p.Service).Observe(time.Since(start).Seconds())
		if err == nil {
			span.End()
			observability.UpstreamAttemptsTotal.WithLabelValues(p.Service, "success").Inc()
			if attempt > 0 {
				lg.Info("upstream call succeeded after retry", "attempt", attempt, "key_prefix", MaskKey(key))
			}
			return res, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()

		if ctx.Err() != nil {
			observability.UpstreamAttemptsTotal.WithLabelValues(p.Service, "canceled").Inc()
			return zero, backoff.Permanent(ctx.Err())
		}

		lastErr = err
		if isFault(err) {
			observability.UpstreamAttemptsTotal.WithLabelValues(p.Service, "credential_fault").Inc()
			lg.Warn("credential fault, demoting",
				"attempt", attempt,
				"key_prefix", MaskKey(key),
				"error", err)
			m.MarkFailed(p.Service, key, err)
		} else {
			observability.UpstreamAttemptsTotal.WithLabelValues(p.Service, "error").Inc()
			lg.Warn("upstream attempt failed",
				"attempt", attempt,
				"key_prefix", MaskKey(key),
				"error", err)
		}
		return zero, err
	}

	notify := func(_ error, wait time.Duration) {
		lg.Info("retrying upstream call", "attempts", attempts, "max_retries", p.MaxRetries, "backoff", wait)
	}

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(retries)), ctx)
	res, err := backoff.RetryNotifyWithData(op, bo, notify)
	if err == nil {
		return res, nil
	}

	switch {
	case errors.Is(err, domain.ErrNoCredential):
		return zero, err
	case ctx.Err() != nil:
		lg.Info("upstream call canceled", "attempts", attempts)
		return zero, fmt.Errorf("%w: %s: %w", domain.ErrCanceled, p.Service, ctx.Err())
	}

	if lastErr == nil {
		lastErr = err
	}
	lg.Error("upstream call failed after retries", "attempts", attempts, "error", lastErr)
	return zero, &ExhaustedError{Service: p.Service, Attempts: attempts, Err: lastErr}
}
