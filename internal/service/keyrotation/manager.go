package keyrotation

import (
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/recipe-extractor/internal/adapter/observability"
)

// Source returns the raw comma-separated credential list and the legacy
// single credential configured for a service.
type Source interface {
	CredentialSource(service string) (list, legacy string)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(service string) (list, legacy string)

// CredentialSource implements Source.
func (f SourceFunc) CredentialSource(service string) (string, string) { return f(service) }

// pool is the rotation state of one service. keys is immutable after load.
type pool struct {
	keys     []string
	cursor   int
	failed   map[string]struct{}
	lastUsed time.Time
}

func (p *pool) available() []string {
	if len(p.failed) == 0 {
		return p.keys
	}
	out := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		if _, bad := p.failed[k]; !bad {
			out = append(out, k)
		}
	}
	return out
}

// Manager owns one credential pool per service. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	source   Source
	strategy Strategy
	pools    map[string]*pool
	now      func() time.Time
	intn     func(n int) int
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for last-used timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRandom overrides the random index source used by the Random strategy.
func WithRandom(intn func(n int) int) Option {
	return func(m *Manager) { m.intn = intn }
}

// NewManager creates a Manager. Pools are loaded lazily from source on first use.
func NewManager(source Source, strategy Strategy, opts ...Option) *Manager {
	m := &Manager{
		source:   source,
		strategy: strategy,
		pools:    make(map[string]*pool),
		now:      time.Now,
		intn:     rand.IntN,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Strategy returns the process-wide rotation strategy.
func (m *Manager) Strategy() Strategy { return m.strategy }

// ParseKeys splits a comma-separated list into credentials, trimming
// whitespace and dropping empty and duplicate entries. The legacy value is
// used only when the list yields nothing.
func ParseKeys(list, legacy string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, part := range strings.Split(list, ",") {
		k := strings.TrimSpace(part)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			slog.Warn("duplicate credential in list ignored", slog.String("key_prefix", MaskKey(k)))
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		if k := strings.TrimSpace(legacy); k != "" {
			keys = []string{k}
		}
	}
	return keys
}

// poolLocked returns the pool for service, loading it on first use. m.mu must be held.
func (m *Manager) poolLocked(service string) *pool {
	if p, ok := m.pools[service]; ok {
		return p
	}
	var list, legacy string
	if m.source != nil {
		list, legacy = m.source.CredentialSource(service)
	}
	p := &pool{keys: ParseKeys(list, legacy), failed: make(map[string]struct{})}
	m.pools[service] = p
	slog.Info("credential pool loaded",
		slog.String("upstream", service),
		slog.Int("keys", len(p.keys)),
		slog.Bool("legacy", strings.TrimSpace(list) == "" && len(p.keys) > 0),
		slog.String("strategy", m.strategy.String()))
	observability.CredentialPoolAvailable.WithLabelValues(service).Set(float64(len(p.keys)))
	return p
}

// Size returns the number of credentials configured for service, loading
// the pool if needed.
func (m *Manager) Size(service string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.poolLocked(service).keys)
}

// Select returns the next credential for service, or ok=false when the
// service has no credential configured. When every credential has been
// demoted the failed set is cleared and the first configured credential is
// returned, so a configured pool never refuses service.
func (m *Manager) Select(service string) (key string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.poolLocked(service)
	if len(p.keys) == 0 {
		return "", false
	}

	avail := p.available()
	if len(avail) == 0 {
		slog.Warn("all credentials failed, resetting pool",
			slog.String("upstream", service),
			slog.Int("keys", len(p.keys)))
		clear(p.failed)
		// keys[0] is handed out now, so rotation continues with keys[1]
		p.cursor = 1 % len(p.keys)
		p.lastUsed = m.now()
		observability.CredentialPoolResetsTotal.WithLabelValues(service, "exhausted").Inc()
		observability.CredentialPoolAvailable.WithLabelValues(service).Set(float64(len(p.keys)))
		observability.CredentialSelectionsTotal.WithLabelValues(service, m.strategy.String()).Inc()
		return p.keys[0], true
	}

	switch m.strategy {
	case Sequential:
		key = avail[0]
	case Random:
		key = avail[m.intn(len(avail))]
	default:
		if p.cursor >= len(avail) || p.cursor < 0 {
			p.cursor = 0
		}
		key = avail[p.cursor]
		p.cursor = (p.cursor + 1) % len(avail)
	}
	p.lastUsed = m.now()
	observability.CredentialSelectionsTotal.WithLabelValues(service, m.strategy.String()).Inc()
	slog.Debug("credential selected",
		slog.String("upstream", service),
		slog.String("key_prefix", MaskKey(key)),
		slog.Int("available", len(avail)),
		slog.String("strategy", m.strategy.String()))
	return key, true
}

// MarkFailed demotes key in the service's pool until the next reset.
// Re-marking is a no-op. Unknown services and keys outside the pool are
// ignored. cause is only logged; classification is the caller's job.
func (m *Manager) MarkFailed(service, key string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[service]
	if !ok {
		return
	}
	if !slices.Contains(p.keys, key) {
		slog.Warn("mark failed for unknown credential ignored",
			slog.String("upstream", service),
			slog.String("key_prefix", MaskKey(key)))
		return
	}
	if _, already := p.failed[key]; already {
		return
	}
	p.failed[key] = struct{}{}
	// the available subsequence changed; restart rotation at its head
	p.cursor = 0

	attrs := []any{
		slog.String("upstream", service),
		slog.String("key_prefix", MaskKey(key)),
		slog.Int("failed", len(p.failed)),
		slog.Int("total", len(p.keys)),
	}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
	}
	slog.Warn("credential marked failed", attrs...)
	observability.CredentialDemotionsTotal.WithLabelValues(service).Inc()
	observability.CredentialPoolAvailable.WithLabelValues(service).Set(float64(len(p.keys) - len(p.failed)))
}

// ResetFailed clears the failed set of one service.
func (m *Manager) ResetFailed(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[service]; ok {
		m.resetLocked(service, p)
	}
}

// ResetAllFailed clears the failed set of every known service.
func (m *Manager) ResetAllFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.pools {
		m.resetLocked(name, p)
	}
}

func (m *Manager) resetLocked(service string, p *pool) {
	n := len(p.failed)
	clear(p.failed)
	p.cursor = 0
	slog.Info("credential failures reset", slog.String("upstream", service), slog.Int("cleared", n))
	observability.CredentialPoolResetsTotal.WithLabelValues(service, "manual").Inc()
	observability.CredentialPoolAvailable.WithLabelValues(service).Set(float64(len(p.keys)))
}

// PoolStats is a read-only snapshot of one pool.
type PoolStats struct {
	Total      int        `json:"total"`
	Failed     int        `json:"failed"`
	Available  int        `json:"available"`
	Cursor     int        `json:"cursor"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// Statistics is a read-only snapshot of every known pool.
type Statistics struct {
	Services map[string]PoolStats `json:"services"`
	Strategy string               `json:"strategy"`
}

// Statistics returns a snapshot of the loaded pools. Pools that have not
// been loaded yet are not listed.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Statistics{Services: make(map[string]PoolStats, len(m.pools)), Strategy: m.strategy.String()}
	for name, p := range m.pools {
		ps := PoolStats{
			Total:     len(p.keys),
			Failed:    len(p.failed),
			Available: len(p.keys) - len(p.failed),
			Cursor:    p.cursor,
		}
		if !p.lastUsed.IsZero() {
			t := p.lastUsed
			ps.LastUsedAt = &t
		}
		st.Services[name] = ps
	}
	return st
}

// MaskKey returns a log-safe prefix of a credential.
func MaskKey(key string) string {
	const visible = 8
	if len(key) <= visible {
		return strings.Repeat("*", len(key))
	}
	return key[:visible] + "..."
}
