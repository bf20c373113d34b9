package store

import (
	"time"

	"github.com/warden-labs/warden/internal/chains"
)

// TraderRecord is the persisted form of a scored trader wallet. Metric
// columns are flattened for querying; monetary values are stored as floats,
// exact decimals live only in the analysis path.
type TraderRecord struct {
	Address        string       `json:"address"`
	Chain          chains.Chain `json:"chain"`
	Score          float64      `json:"score"`
	WinRate        float64      `json:"win_rate"`
	AvgROI         float64      `json:"avg_roi"`
	MaxMultiplier  float64      `json:"max_multiplier"`
	TotalVolumeUSD float64      `json:"total_volume_usd"`
	TradeCount     int          `json:"trade_count"`
	Classification string       `json:"classification"`
	Flags          []string     `json:"flags"`
	SampleToken    string       `json:"sample_token,omitempty"`
	FirstSeen      time.Time    `json:"first_seen"`
	LastScored     time.Time    `json:"last_scored"`
}

// TokenCheckRecord is one honeypot verdict at a point in time. Verdicts are
// append-only so a token's history stays auditable.
type TokenCheckRecord struct {
	Token     string       `json:"token"`
	Chain     chains.Chain `json:"chain"`
	Honeypot  bool         `json:"is_honeypot"`
	RiskScore int          `json:"risk_score"`
	Factors   []string     `json:"factors"`
	CheckedAt time.Time    `json:"checked_at"`
}

// TradeRecord is one completed buy or sell leg attributed to a wallet.
type TradeRecord struct {
	Wallet      string       `json:"wallet"`
	Chain       chains.Chain `json:"chain"`
	Token       string       `json:"token"`
	TokenSymbol string       `json:"token_symbol,omitempty"`
	Side        string       `json:"side"`
	ValueUSD    float64      `json:"value_usd"`
	ROI         float64      `json:"roi,omitempty"`
	TxHash      string       `json:"tx_hash"`
	BlockHeight int64        `json:"block_height,omitempty"`
	TradedAt    time.Time    `json:"traded_at"`
}

// MoonshotRecord is an exceptional realized multiple on a single position.
type MoonshotRecord struct {
	Wallet      string       `json:"wallet"`
	Chain       chains.Chain `json:"chain"`
	Token       string       `json:"token"`
	TokenSymbol string       `json:"token_symbol,omitempty"`
	Multiplier  float64      `json:"multiplier"`
	BuyUSD      float64      `json:"buy_usd"`
	SellUSD     float64      `json:"sell_usd"`
	RealizedAt  time.Time    `json:"realized_at"`
}

// WatchEntry is a wallet under live observation.
type WatchEntry struct {
	Address      string       `json:"address"`
	Chain        chains.Chain `json:"chain"`
	Label        string       `json:"label,omitempty"`
	Score        float64      `json:"score"`
	AddedAt      time.Time    `json:"added_at"`
	LastActivity *time.Time   `json:"last_activity,omitempty"`
}

// AlertRecord is a durable notification row.
type AlertRecord struct {
	ID        int64     `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail,omitempty"`
	Wallet    string    `json:"wallet,omitempty"`
	Token     string    `json:"token,omitempty"`
	Chain     string    `json:"chain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyEvent is one credential lifecycle event, keyed by key hash only.
type KeyEvent struct {
	Service         string    `json:"service"`
	KeyHash         string    `json:"key_hash"`
	Event           string    `json:"event"`
	CooldownSeconds int64     `json:"cooldown_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScanRun records one discovery sweep.
type ScanRun struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Chains     string     `json:"chains"`
	Candidates int        `json:"candidates"`
	Qualified  int        `json:"qualified"`
	Rejected   int        `json:"rejected"`
	Errors     int        `json:"errors"`
}
