package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// Consensus detection — distinct watched wallets buying the same token
// ---------------------------------------------------------------------------

// Consensus is emitted when enough distinct watched wallets buy the same
// token within the window.
type Consensus struct {
	ID          string          `json:"id"`
	Token       string          `json:"token"`
	TokenSymbol string          `json:"token_symbol,omitempty"`
	Chain       chains.Chain    `json:"chain"`
	Wallets     []string        `json:"wallets"`
	TotalUSD    decimal.Decimal `json:"total_usd"`
	DetectedAt  time.Time       `json:"detected_at"`
}

// ConsensusFunc receives each consensus alert.
type ConsensusFunc func(Consensus)

type consensusBuy struct {
	wallet   string
	valueUSD decimal.Decimal
	at       time.Time
}

// consensusTracker accumulates buy evidence per token. One wallet counts
// once per token no matter how many buys it makes; an alerted token stays
// quiet until its window passes.
type consensusTracker struct {
	window time.Duration
	min    int

	mu      sync.Mutex
	buys    map[string][]consensusBuy
	alerted map[string]time.Time
}

func newConsensusTracker(window time.Duration, min int) *consensusTracker {
	return &consensusTracker{
		window:  window,
		min:     min,
		buys:    make(map[string][]consensusBuy),
		alerted: make(map[string]time.Time),
	}
}

// observe records a buy and returns a Consensus when the token crosses the
// distinct-wallet threshold. Sells are ignored.
func (t *consensusTracker) observe(a Activity) *Consensus {
	if a.Action != ActionBuy {
		return nil
	}
	now := a.ObservedAt
	if now.IsZero() {
		now = time.Now()
	}
	key := a.Token + "@" + string(a.Chain)

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.window)
	kept := t.buys[key][:0]
	seen := false
	for _, b := range t.buys[key] {
		if b.at.Before(cutoff) {
			continue
		}
		if b.wallet == a.Wallet {
			seen = true
		}
		kept = append(kept, b)
	}
	if !seen {
		kept = append(kept, consensusBuy{wallet: a.Wallet, valueUSD: a.ValueUSD, at: now})
	}
	t.buys[key] = kept

	if len(kept) < t.min {
		return nil
	}
	if last, ok := t.alerted[key]; ok && now.Sub(last) < t.window {
		return nil
	}
	t.alerted[key] = now

	wallets := make([]string, 0, len(kept))
	total := decimal.Zero
	for _, b := range kept {
		wallets = append(wallets, b.wallet)
		total = total.Add(b.valueUSD)
	}
	sort.Strings(wallets)

	return &Consensus{
		ID:          uuid.NewString(),
		Token:       a.Token,
		TokenSymbol: a.TokenSymbol,
		Chain:       a.Chain,
		Wallets:     wallets,
		TotalUSD:    total,
		DetectedAt:  now,
	}
}

// prune drops stale evidence and expired alert suppressions.
func (t *consensusTracker) prune(now time.Time) {
	cutoff := now.Add(-t.window)

	t.mu.Lock()
	defer t.mu.Unlock()

	for key, buys := range t.buys {
		kept := buys[:0]
		for _, b := range buys {
			if !b.at.Before(cutoff) {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			delete(t.buys, key)
			continue
		}
		t.buys[key] = kept
	}
	for key, at := range t.alerted {
		if at.Before(cutoff) {
			delete(t.alerted, key)
		}
	}
}
