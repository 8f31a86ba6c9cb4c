package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWithLoggerAndLoggerFromContext(t *testing.T) {
	lg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	baseCtx := context.Background()

	ctxWithLogger := ContextWithLogger(baseCtx, lg)
	assert.NotEqual(t, baseCtx, ctxWithLogger)
	assert.Same(t, lg, LoggerFromContext(ctxWithLogger))

	// nil logger leaves the context untouched
	assert.Equal(t, baseCtx, ContextWithLogger(baseCtx, nil))

	assert.NotNil(t, LoggerFromContext(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.NotNil(t, LoggerFromContext(nil))
}

func TestContextWithRequestIDAndRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	ctxWithID := ContextWithRequestID(ctx, "req-123")

	assert.Equal(t, "req-123", RequestIDFromContext(ctxWithID))
	assert.Equal(t, "", RequestIDFromContext(ctx))
	assert.Equal(t, ctx, ContextWithRequestID(ctx, ""))
}

func TestLoggerFromContext_TagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := ContextWithRequestID(context.Background(), "req-xyz")
	LoggerFromContext(ctx).Info("retrying")

	assert.Contains(t, buf.String(), "request_id=req-xyz")
}
