package keyring

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Key Rotation Manager — per-service credential pools with cooldowns
// ---------------------------------------------------------------------------

// FailureKind classifies a provider failure for cooldown purposes.
type FailureKind int

const (
	// FailureTransient covers rate limits, timeouts and 5xx responses.
	// Short base cooldown; the caller may retry immediately on another key.
	FailureTransient FailureKind = iota
	// FailureQuota covers exhausted daily/monthly plans. Long base cooldown;
	// the caller must not retry the request immediately.
	FailureQuota
)

// ErrNoKeyAvailable signals that every credential in a pool is cooling down
// or over budget. The operation can be retried later, it has not hard-failed.
var ErrNoKeyAvailable = errors.New("no key available")

// NoKeyError carries the earliest time at which a credential frees up.
type NoKeyError struct {
	Service string
	RetryAt time.Time
}

func (e *NoKeyError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("keyring: no key available for %s", e.Service)
	}
	return fmt.Sprintf("keyring: no key available for %s until %s", e.Service, e.RetryAt.Format(time.RFC3339))
}

func (e *NoKeyError) Is(target error) bool { return target == ErrNoKeyAvailable }

// Config controls cooldown behavior.
type Config struct {
	TransientCooldown time.Duration `yaml:"transient_cooldown"`
	QuotaCooldown     time.Duration `yaml:"quota_cooldown"`
	MaxCooldown       time.Duration `yaml:"max_cooldown"`
}

// DefaultConfig returns the standard cooldown schedule.
func DefaultConfig() Config {
	return Config{
		TransientCooldown: 5 * time.Minute,
		QuotaCooldown:     1 * time.Hour,
		MaxCooldown:       6 * time.Hour,
	}
}

type keyState struct {
	value         string
	usageCount    int64
	errorCount    int64
	cooldownUntil time.Time
	lastCooldown  time.Duration
	lastUsed      time.Time

	// Daily budget window.
	dayStart time.Time
	dayCount int
}

type pool struct {
	service    string
	keys       []*keyState // rotation order is registration order
	dailyLimit int         // 0 = unlimited
}

// Manager is the only shared mutable state between concurrent analyses.
// All access is guarded by a single mutex; operations are short.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	pools    map[string]*pool
	lastWarn map[string]time.Time

	now func() time.Time
}

// New creates a key manager with no pools registered.
func New(cfg Config, log zerolog.Logger) *Manager {
	if cfg.TransientCooldown <= 0 {
		cfg.TransientCooldown = DefaultConfig().TransientCooldown
	}
	if cfg.QuotaCooldown <= 0 {
		cfg.QuotaCooldown = DefaultConfig().QuotaCooldown
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = DefaultConfig().MaxCooldown
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		pools:    make(map[string]*pool),
		lastWarn: make(map[string]time.Time),
		now:      time.Now,
	}
}

// RegisterPool installs the ordered credential pool for a service. Empty key
// values are dropped. Re-registering replaces the pool.
func (m *Manager) RegisterPool(service string, keys []string, dailyLimit int) {
	states := make([]*keyState, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		states = append(states, &keyState{value: k})
	}

	m.mu.Lock()
	m.pools[service] = &pool{service: service, keys: states, dailyLimit: dailyLimit}
	m.mu.Unlock()

	m.log.Info().
		Str("component", "keyring").
		Str("service", service).
		Int("keys", len(states)).
		Int("daily_limit", dailyLimit).
		Msg("keyring: pool registered")
}

// Acquire returns the first credential in the service pool whose cooldown has
// expired and whose daily budget is not spent, incrementing its usage count.
// When every credential is unavailable it returns a NoKeyError carrying the
// earliest retry time.
func (m *Manager) Acquire(service string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pools[service]
	if p == nil || len(p.keys) == 0 {
		return "", &NoKeyError{Service: service}
	}

	now := m.now()
	var earliest time.Time
	for _, k := range p.keys {
		if now.Before(k.cooldownUntil) {
			if earliest.IsZero() || k.cooldownUntil.Before(earliest) {
				earliest = k.cooldownUntil
			}
			continue
		}
		if p.dailyLimit > 0 {
			m.rollDay(k, now)
			if k.dayCount >= p.dailyLimit {
				nextDay := k.dayStart.Add(24 * time.Hour)
				if earliest.IsZero() || nextDay.Before(earliest) {
					earliest = nextDay
				}
				continue
			}
			k.dayCount++
		}
		k.usageCount++
		k.lastUsed = now
		return k.value, nil
	}

	m.warnExhausted(service, now, earliest)
	return "", &NoKeyError{Service: service, RetryAt: earliest}
}

// ReportFailure places a credential on cooldown. When the previous cooldown
// had not yet expired the duration doubles, otherwise it restarts at the base
// for the failure kind. The duration never exceeds MaxCooldown.
func (m *Manager) ReportFailure(service, key string, kind FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.findKey(service, key)
	if k == nil {
		return
	}

	base := m.cfg.TransientCooldown
	if kind == FailureQuota {
		base = m.cfg.QuotaCooldown
	}

	now := m.now()
	next := base
	if k.lastCooldown > 0 && now.Before(k.cooldownUntil) {
		next = k.lastCooldown * 2
	}
	if next > m.cfg.MaxCooldown {
		next = m.cfg.MaxCooldown
	}

	k.errorCount++
	k.lastCooldown = next
	k.cooldownUntil = now.Add(next)

	m.log.Warn().
		Str("component", "keyring").
		Str("service", service).
		Str("key", hashKey(key)).
		Dur("cooldown", next).
		Int("kind", int(kind)).
		Msg("keyring: credential cooling down")
}

// ReportSuccess clears any cooldown state on the credential.
func (m *Manager) ReportSuccess(service, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if k := m.findKey(service, key); k != nil {
		k.cooldownUntil = time.Time{}
		k.lastCooldown = 0
	}
}

func (m *Manager) findKey(service, key string) *keyState {
	p := m.pools[service]
	if p == nil {
		return nil
	}
	for _, k := range p.keys {
		if k.value == key {
			return k
		}
	}
	return nil
}

func (m *Manager) rollDay(k *keyState, now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if !k.dayStart.Equal(day) {
		k.dayStart = day
		k.dayCount = 0
	}
}

// Exhausted-pool warnings are suppressed for an hour per service.
func (m *Manager) warnExhausted(service string, now, retryAt time.Time) {
	if last, ok := m.lastWarn[service]; ok && now.Sub(last) < time.Hour {
		return
	}
	m.lastWarn[service] = now
	m.log.Warn().
		Str("component", "keyring").
		Str("service", service).
		Time("retry_at", retryAt).
		Msg("keyring: all credentials cooling down")
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// PoolStats summarizes one service pool.
type PoolStats struct {
	Service    string    `json:"service"`
	TotalKeys  int       `json:"total_keys"`
	Available  int       `json:"available"`
	Cooling    int       `json:"cooling"`
	UsageTotal int64     `json:"usage_total"`
	ErrorTotal int64     `json:"error_total"`
	NextFreeAt time.Time `json:"next_free_at,omitempty"`
}

// Stats returns per-service pool statistics.
func (m *Manager) Stats() map[string]PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make(map[string]PoolStats, len(m.pools))
	for service, p := range m.pools {
		st := PoolStats{Service: service, TotalKeys: len(p.keys)}
		for _, k := range p.keys {
			st.UsageTotal += k.usageCount
			st.ErrorTotal += k.errorCount
			if now.Before(k.cooldownUntil) {
				st.Cooling++
				if st.NextFreeAt.IsZero() || k.cooldownUntil.Before(st.NextFreeAt) {
					st.NextFreeAt = k.cooldownUntil
				}
			} else {
				st.Available++
			}
		}
		out[service] = st
	}
	return out
}

// KeySnapshot is a persistence-safe view of one credential; the raw key value
// is replaced by a hash.
type KeySnapshot struct {
	Service       string
	KeyHash       string
	UsageCount    int64
	ErrorCount    int64
	LastUsed      time.Time
	CooldownUntil time.Time
}

// Snapshot returns the ledger view of every pool for persistence.
func (m *Manager) Snapshot() []KeySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []KeySnapshot
	for service, p := range m.pools {
		for _, k := range p.keys {
			out = append(out, KeySnapshot{
				Service:       service,
				KeyHash:       hashKey(k.value),
				UsageCount:    k.usageCount,
				ErrorCount:    k.errorCount,
				LastUsed:      k.lastUsed,
				CooldownUntil: k.cooldownUntil,
			})
		}
	}
	return out
}

// Exhausted reports services whose pools have no available credential.
func (m *Manager) Exhausted() []string {
	stats := m.Stats()
	var out []string
	for service, st := range stats {
		if st.TotalKeys > 0 && st.Available == 0 {
			out = append(out, service)
		}
	}
	return out
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
