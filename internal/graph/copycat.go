package graph

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Copycat detection — Jaccard similarity over trade timing buckets
// ---------------------------------------------------------------------------

// CopycatConfig tunes the similarity threshold.
type CopycatConfig struct {
	Threshold  float64 `yaml:"threshold"`
	MinOverlap int     `yaml:"min_overlap"`
}

// DefaultCopycatConfig returns production defaults.
func DefaultCopycatConfig() CopycatConfig {
	return CopycatConfig{Threshold: 0.6, MinOverlap: 3}
}

// CopycatMatch names the wallet another wallet is shadowing.
type CopycatMatch struct {
	Wallet     string  `json:"wallet"`
	Similarity float64 `json:"similarity"`
	Overlap    int     `json:"overlap"`
}

// CopycatStats counts detector activity.
type CopycatStats struct {
	Observed int   `json:"observed"`
	Matches  int64 `json:"matches"`
}

// BucketKey maps a completed trade to its timing bucket: same token bought
// in the same UTC hour lands in the same bucket. EVM token addresses are
// case-folded; base58 mints pass through.
func BucketKey(token string, boughtAt time.Time) string {
	if strings.HasPrefix(token, "0x") || strings.HasPrefix(token, "0X") {
		token = strings.ToLower(token)
	}
	return token + "@" + boughtAt.UTC().Format("2006-01-02T15")
}

// Jaccard returns the intersection-over-union of two bucket sets along
// with the intersection size.
func Jaccard(a, b map[string]bool) (float64, int) {
	overlap := 0
	for k := range a {
		if b[k] {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	if union == 0 {
		return 0, 0
	}
	return float64(overlap) / float64(union), overlap
}

// CopycatDetector accumulates the trade buckets of every wallet observed in
// a scan run and flags wallets whose buckets closely track an earlier one.
// One detector per run; it is shared across workers and safe for concurrent
// use.
type CopycatDetector struct {
	cfg CopycatConfig
	log zerolog.Logger

	mu      sync.Mutex
	buckets map[string]map[string]bool

	matches atomic.Int64
}

func NewCopycatDetector(cfg CopycatConfig, log zerolog.Logger) *CopycatDetector {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = 0.6
	}
	if cfg.MinOverlap <= 0 {
		cfg.MinOverlap = 3
	}
	return &CopycatDetector{
		cfg:     cfg,
		log:     log,
		buckets: make(map[string]map[string]bool),
	}
}

// Observe registers a wallet's buckets and returns the most similar wallet
// observed before it, when similarity and overlap clear the thresholds.
// Similarity is symmetric, so whichever wallet arrives second reports the
// match.
func (d *CopycatDetector) Observe(wallet string, buckets map[string]bool) (*CopycatMatch, bool) {
	own := make(map[string]bool, len(buckets))
	for k := range buckets {
		own[k] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var best *CopycatMatch
	for other, theirs := range d.buckets {
		if other == wallet {
			continue
		}
		sim, overlap := Jaccard(own, theirs)
		if sim < d.cfg.Threshold || overlap < d.cfg.MinOverlap {
			continue
		}
		if best == nil || sim > best.Similarity ||
			(sim == best.Similarity && other < best.Wallet) {
			best = &CopycatMatch{Wallet: other, Similarity: sim, Overlap: overlap}
		}
	}
	d.buckets[wallet] = own

	if best == nil {
		return nil, false
	}
	d.matches.Add(1)
	d.log.Debug().Str("component", "graph").
		Str("wallet", wallet).
		Str("tracks", best.Wallet).
		Float64("similarity", best.Similarity).
		Int("overlap", best.Overlap).
		Msg("graph: copycat pattern detected")
	return best, true
}

// Stats returns detector counters.
func (d *CopycatDetector) Stats() CopycatStats {
	d.mu.Lock()
	observed := len(d.buckets)
	d.mu.Unlock()
	return CopycatStats{Observed: observed, Matches: d.matches.Load()}
}
