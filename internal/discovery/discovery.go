// Package discovery runs the trader discovery pipeline: it seeds candidate
// wallets from recent on-chain activity, scores their realized trading
// performance, gates out compromised or manipulated addresses and publishes
// the survivors as ranked, classified trader profiles.
package discovery

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/cache"
	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/gateway"
	"github.com/warden-labs/warden/internal/graph"
	"github.com/warden-labs/warden/internal/honeypot"
	"github.com/warden-labs/warden/internal/performance"
	"github.com/warden-labs/warden/internal/store"
)

// ErrScanActive is returned when Run is called while another scan holds the
// scanner. Runs are serialized; overlapping timers should skip, not queue.
var ErrScanActive = errors.New("discovery: scan already in progress")

// Risk flags attached to discovered wallets. The first four disqualify a
// wallet from the ranked output; copycat behavior only costs score.
const (
	FlagSecurityRisk     = "security_risk"
	FlagHoneypotDetected = "honeypot_detected"
	FlagLiquidityRisk    = "liquidity_risk"
	FlagDevWallet        = "dev_wallet"
	FlagCopycat          = "copycat_behavior"
)

var disqualifying = []string{
	FlagSecurityRisk,
	FlagHoneypotDetected,
	FlagLiquidityRisk,
	FlagDevWallet,
}

// Source is the slice of the data gateway the scanner needs.
type Source interface {
	RecentTransactions(ctx context.Context, chain chains.Chain, limit int) ([]gateway.Transaction, error)
	WalletTransfers(ctx context.Context, address string, chain chains.Chain) ([]gateway.Transfer, error)
	AddressSecurity(ctx context.Context, address string, chain chains.Chain) (*gateway.AddressSecurity, error)
}

// TokenChecker delivers a safety verdict for one token. Satisfied by
// *honeypot.Simulator.
type TokenChecker interface {
	Check(ctx context.Context, token string, chain chains.Chain) (*honeypot.Result, error)
}

// Persister is the slice of the store the scanner writes through.
// Satisfied by *store.Store.
type Persister interface {
	UpsertTrader(rec store.TraderRecord) error
	TopTraders(minScore float64, limit int) ([]store.TraderRecord, error)
	InsertTokenCheck(rec store.TokenCheckRecord) error
	UpsertMoonshot(rec store.MoonshotRecord) error
	StartScanRun(startedAt time.Time, chainList string) (int64, error)
	FinishScanRun(id int64, finishedAt time.Time, candidates, qualified, rejected, errs int) error
}

// Config tunes a scanner. Zero values fall back to defaults.
type Config struct {
	BatchCap           int                 // hard cap on candidates per run
	Concurrency        int                 // parallel candidate analyses
	MinScore           float64             // qualification floor
	MaxResults         int                 // ranked output cap
	Chains             []chains.Chain      // chains scanned by default
	SeedWallets        []string            // operator-pinned candidates
	SeedTxLimit        int                 // recent transactions pulled per chain
	HighPerformerScore float64             // floor for re-scanning stored traders
	HighPerformerLimit int                 // stored traders pulled per run
	WalletTTL          time.Duration       // cache TTL for wallet profiles
	TokenTTL           time.Duration       // cache TTL for token verdicts
	Copycat            graph.CopycatConfig // per-run copycat detector tuning
}

// DefaultConfig matches the production scan settings.
func DefaultConfig() Config {
	return Config{
		BatchCap:           2000,
		Concurrency:        10,
		MinScore:           70,
		MaxResults:         50,
		Chains:             []chains.Chain{chains.Ethereum, chains.BSC},
		SeedTxLimit:        100,
		HighPerformerScore: 80,
		HighPerformerLimit: 100,
		WalletTTL:          time.Hour,
		TokenTTL:           10 * time.Minute,
		Copycat:            graph.DefaultCopycatConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchCap <= 0 {
		c.BatchCap = def.BatchCap
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MinScore <= 0 {
		c.MinScore = def.MinScore
	}
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if len(c.Chains) == 0 {
		c.Chains = def.Chains
	}
	if c.SeedTxLimit <= 0 {
		c.SeedTxLimit = def.SeedTxLimit
	}
	if c.HighPerformerScore <= 0 {
		c.HighPerformerScore = def.HighPerformerScore
	}
	if c.HighPerformerLimit <= 0 {
		c.HighPerformerLimit = def.HighPerformerLimit
	}
	if c.WalletTTL <= 0 {
		c.WalletTTL = def.WalletTTL
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = def.TokenTTL
	}
	return c
}

// Candidate is one wallet queued for analysis.
type Candidate struct {
	Address string       `json:"address"`
	Chain   chains.Chain `json:"chain"`
}

// DiscoveredWallet is the full profile produced for one analyzed candidate.
type DiscoveredWallet struct {
	Address        string       `json:"address"`
	Chain          chains.Chain `json:"chain"`
	Score          float64      `json:"score"`
	Classification string       `json:"classification,omitempty"`

	WinRate        float64         `json:"win_rate"`
	AvgROI         float64         `json:"avg_roi"`
	MaxMultiplier  float64         `json:"max_multiplier"`
	TotalVolumeUSD decimal.Decimal `json:"total_volume_usd"`
	TradeCount     int             `json:"trade_count"`
	RecentActivity int             `json:"recent_activity_count"`

	SampleToken      string  `json:"sample_token,omitempty"`
	SampleSymbol     string  `json:"sample_symbol,omitempty"`
	SampleMultiplier float64 `json:"sample_multiplier,omitempty"`

	Centrality     float64 `json:"centrality"`
	ComponentSize  int     `json:"component_size"`
	FundingSources int     `json:"funding_sources"`
	InsiderScore   int     `json:"insider_score"`
	InsiderLevel   string  `json:"insider_level,omitempty"`

	RiskFlags    []string  `json:"risk_flags,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

func (w *DiscoveredWallet) flag(name string) {
	if w.HasFlag(name) {
		return
	}
	w.RiskFlags = append(w.RiskFlags, name)
}

// HasFlag reports whether the named risk flag is set.
func (w *DiscoveredWallet) HasFlag(name string) bool {
	for _, f := range w.RiskFlags {
		if f == name {
			return true
		}
	}
	return false
}

// Qualifiable reports whether the wallet is free of disqualifying flags.
// Score still has to clear the floor for the wallet to rank.
func (w *DiscoveredWallet) Qualifiable() bool {
	for _, f := range disqualifying {
		if w.HasFlag(f) {
			return false
		}
	}
	return true
}

// RunOptions override scanner defaults for a single run.
type RunOptions struct {
	Limit        int            // ranked output cap, 0 keeps the default
	MinScore     float64        // qualification floor, 0 keeps the default
	Chains       []chains.Chain // chains to scan, empty keeps the default
	ForceRefresh bool           // bypass cached profiles and verdicts
}

// RunResult is the outcome of one scan run.
type RunResult struct {
	RunID      string                 `json:"run_id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Chains     []chains.Chain         `json:"chains"`
	Candidates int                    `json:"candidates"`
	Analyzed   int                    `json:"analyzed"`
	Qualified  int                    `json:"qualified"`
	Rejected   int                    `json:"rejected"`
	Errors     int                    `json:"errors"`
	Wallets    []DiscoveredWallet     `json:"wallets"`
	Moonshots  []store.MoonshotRecord `json:"moonshots,omitempty"`
}

// Stats counts scanner activity across runs.
type Stats struct {
	Runs         int64 `json:"runs"`
	Analyzed     int64 `json:"analyzed"`
	Qualified    int64 `json:"qualified"`
	Rejected     int64 `json:"rejected"`
	Errors       int64 `json:"errors"`
	CacheHits    int64 `json:"cache_hits"`
	Insufficient int64 `json:"insufficient_data"`
}

// Deps bundles the collaborators a scanner needs.
type Deps struct {
	Source  Source
	Checker TokenChecker
	Perf    *performance.Analyzer
	Graph   *graph.Analyzer
	Cache   cache.Cache
	Store   Persister
}

// Scanner drives discovery runs. One scanner serves the whole process;
// concurrent Run calls beyond the first fail with ErrScanActive.
type Scanner struct {
	cfg     Config
	src     Source
	checker TokenChecker
	perf    *performance.Analyzer
	graphs  *graph.Analyzer
	cache   cache.Cache
	db      Persister
	log     zerolog.Logger

	running      atomic.Bool
	runs         atomic.Int64
	analyzed     atomic.Int64
	qualified    atomic.Int64
	rejected     atomic.Int64
	errored      atomic.Int64
	cacheHits    atomic.Int64
	insufficient atomic.Int64
}

// New builds a scanner from its collaborators.
func New(cfg Config, deps Deps, log zerolog.Logger) *Scanner {
	return &Scanner{
		cfg:     cfg.withDefaults(),
		src:     deps.Source,
		checker: deps.Checker,
		perf:    deps.Perf,
		graphs:  deps.Graph,
		cache:   deps.Cache,
		db:      deps.Store,
		log:     log.With().Str("component", "discovery").Logger(),
	}
}

// Running reports whether a scan run is currently in flight.
func (s *Scanner) Running() bool {
	return s.running.Load()
}

// Stats returns cumulative counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		Runs:         s.runs.Load(),
		Analyzed:     s.analyzed.Load(),
		Qualified:    s.qualified.Load(),
		Rejected:     s.rejected.Load(),
		Errors:       s.errored.Load(),
		CacheHits:    s.cacheHits.Load(),
		Insufficient: s.insufficient.Load(),
	}
}

func chainList(cs []chains.Chain) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
