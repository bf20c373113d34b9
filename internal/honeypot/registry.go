package honeypot

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// Conviction registry — every confirmed honeypot teaches the next check
// ---------------------------------------------------------------------------

// minFingerprintHex is the smallest bytecode (hex chars) worth fingerprinting.
const minFingerprintHex = 16

// Detection is one convicted token in the registry.
type Detection struct {
	Token       string       `json:"token"`
	Chain       chains.Chain `json:"chain"`
	RiskScore   int          `json:"risk_score"`
	Critical    bool         `json:"critical"`
	Tags        []string     `json:"tags,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	HitCount    int          `json:"hit_count"`
	FirstSeen   time.Time    `json:"first_seen"`
	LastSeen    time.Time    `json:"last_seen"`
}

// RegistryConfig bounds the registry.
type RegistryConfig struct {
	MaxEntries int
	RecentSize int
}

// DefaultRegistryConfig returns production defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{MaxEntries: 2000, RecentSize: 100}
}

// RegistryStats summarizes registry state.
type RegistryStats struct {
	Convictions int64          `json:"convictions"`
	Known       int            `json:"known_tokens"`
	CloneHits   int64          `json:"clone_hits"`
	TagCounts   map[string]int `json:"tag_counts,omitempty"`
}

// Registry is the permanent memory of convicted tokens. A conviction never
// expires; serial deployers reuse bytecode, so each entry's fingerprint also
// convicts byte-identical redeployments before they trade.
type Registry struct {
	cfg RegistryConfig
	log zerolog.Logger

	mu      sync.RWMutex
	byToken map[string]*Detection
	byPrint map[string]string
	recent  []Detection
	tagHits map[string]int

	onConviction func(Detection)

	convictions atomic.Int64
	cloneHits   atomic.Int64
}

func NewRegistry(cfg RegistryConfig, log zerolog.Logger) *Registry {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 2000
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 100
	}
	return &Registry{
		cfg:     cfg,
		log:     log,
		byToken: make(map[string]*Detection),
		byPrint: make(map[string]string),
		recent:  make([]Detection, 0, cfg.RecentSize),
		tagHits: make(map[string]int),
	}
}

// SetOnConviction registers a callback fired on every recorded conviction.
func (r *Registry) SetOnConviction(fn func(Detection)) {
	r.mu.Lock()
	r.onConviction = fn
	r.mu.Unlock()
}

func registryKey(token string, chain chains.Chain) string {
	return strings.ToLower(token) + "@" + string(chain)
}

// Record remembers a honeypot verdict. Clean results are ignored. Returns
// whether the result was recorded.
func (r *Registry) Record(res *Result) bool {
	if res == nil || !res.Honeypot {
		return false
	}

	key := registryKey(res.Token, res.Chain)

	r.mu.Lock()
	det, exists := r.byToken[key]
	if exists {
		det.HitCount++
		det.LastSeen = res.CheckedAt
		det.RiskScore = res.RiskScore
		det.Critical = res.Critical
		det.Tags = append([]string(nil), res.Tags...)
	} else {
		if len(r.byToken) >= r.cfg.MaxEntries {
			r.mu.Unlock()
			r.log.Warn().Str("component", "honeypot").
				Str("token", res.Token).
				Msg("honeypot: registry at capacity, conviction not retained")
			return false
		}
		det = &Detection{
			Token:       res.Token,
			Chain:       res.Chain,
			RiskScore:   res.RiskScore,
			Critical:    res.Critical,
			Tags:        append([]string(nil), res.Tags...),
			Fingerprint: res.Fingerprint,
			HitCount:    1,
			FirstSeen:   res.CheckedAt,
			LastSeen:    res.CheckedAt,
		}
		r.byToken[key] = det
		if det.Fingerprint != "" {
			r.byPrint[det.Fingerprint] = key
		}
	}
	for _, tag := range res.Tags {
		r.tagHits[tag]++
	}
	if len(r.recent) >= r.cfg.RecentSize {
		r.recent = r.recent[1:]
	}
	r.recent = append(r.recent, *det)
	cb := r.onConviction
	snapshot := *det
	r.mu.Unlock()

	r.convictions.Add(1)
	r.log.Info().Str("component", "honeypot").
		Str("token", res.Token).
		Str("chain", string(res.Chain)).
		Int("risk_score", res.RiskScore).
		Strs("tags", res.Tags).
		Msg("honeypot: conviction recorded")

	if cb != nil {
		cb(snapshot)
	}
	return true
}

// Known returns the stored conviction for a token, if any.
func (r *Registry) Known(token string, chain chains.Chain) (*Detection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	det, ok := r.byToken[registryKey(token, chain)]
	if !ok {
		return nil, false
	}
	cp := *det
	return &cp, true
}

// MatchesKnownRug reports whether a bytecode fingerprint matches any
// convicted token, convicting redeployed clones without a fresh simulation.
func (r *Registry) MatchesKnownRug(fingerprint string) (*Detection, bool) {
	if fingerprint == "" {
		return nil, false
	}
	r.mu.RLock()
	key, ok := r.byPrint[fingerprint]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	cp := *r.byToken[key]
	r.mu.RUnlock()

	r.cloneHits.Add(1)
	r.log.Warn().Str("component", "honeypot").
		Str("original_token", cp.Token).
		Str("fingerprint", fingerprint).
		Msg("honeypot: bytecode matches convicted token")
	return &cp, true
}

// Recent returns up to n convictions, newest first.
func (r *Registry) Recent(n int) []Detection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.recent) {
		n = len(r.recent)
	}
	out := make([]Detection, 0, n)
	for i := len(r.recent) - 1; i >= len(r.recent)-n; i-- {
		out = append(out, r.recent[i])
	}
	return out
}

// Stats returns registry counters and tag frequencies.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	known := len(r.byToken)
	tags := make(map[string]int, len(r.tagHits))
	for k, v := range r.tagHits {
		tags[k] = v
	}
	r.mu.RUnlock()

	return RegistryStats{
		Convictions: r.convictions.Load(),
		Known:       known,
		CloneHits:   r.cloneHits.Load(),
		TagCounts:   tags,
	}
}

// fingerprintBytecode reduces contract bytecode to a stable 16-byte hex
// fingerprint. Too-short bytecode yields no fingerprint.
func fingerprintBytecode(code string) string {
	norm := strings.ToLower(strings.TrimPrefix(code, "0x"))
	if len(norm) < minFingerprintHex {
		return ""
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:16])
}
