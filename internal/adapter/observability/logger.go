package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fairyhunter13/recipe-extractor/internal/config"
)

// secretAttrKeys are attribute names whose values are credentials.
var secretAttrKeys = map[string]struct{}{
	"key":           {},
	"api_key":       {},
	"credential":    {},
	"authorization": {},
}

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{ReplaceAttr: redactSecrets}
	// In dev, show debug level; in prod, default to info
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}

// redactSecrets keeps credentials out of the logs even if a caller passes
// one by mistake; only a short prefix survives.
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretAttrKeys[strings.ToLower(a.Key)]; !ok {
		return a
	}
	v := a.Value.String()
	if len(v) > 4 {
		v = v[:4] + "..."
	} else {
		v = strings.Repeat("*", len(v))
	}
	return slog.String(a.Key, v)
}
