// Package monitor watches persisted watchlist entries for fresh on-chain
// activity. A poll loop sweeps every entry on an interval and is the ground
// truth; when the indexer exposes a websocket feed, pushed transfers arrive
// between polls and the dedup layer absorbs the overlap.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/gateway"
	"github.com/warden-labs/warden/internal/store"
)

// ErrAlreadyRunning is returned by Start when the monitor is active.
var ErrAlreadyRunning = errors.New("monitor: already running")

// Activity sources.
const (
	SourcePoll = "poll"
	SourceFeed = "websocket"
)

// Activity actions, from the watched wallet's perspective.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Activity is one fresh transfer observed on a watched wallet.
type Activity struct {
	ID          string          `json:"id"`
	Wallet      string          `json:"wallet"`
	Label       string          `json:"label,omitempty"`
	Chain       chains.Chain    `json:"chain"`
	Action      string          `json:"action"`
	Token       string          `json:"token"`
	TokenSymbol string          `json:"token_symbol,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	TxHash      string          `json:"tx_hash"`
	BlockHeight int64           `json:"block_height,omitempty"`
	Source      string          `json:"source"`
	ObservedAt  time.Time       `json:"observed_at"`
}

// ActivityFunc receives each emitted activity event.
type ActivityFunc func(Activity)

// FeedEvent is one pushed transfer for a subscribed wallet.
type FeedEvent struct {
	Wallet   string           `json:"wallet"`
	Chain    chains.Chain     `json:"chain"`
	Transfer gateway.Transfer `json:"transfer"`
}

// Source supplies a wallet's recent transfers. *gateway.Gateway satisfies it.
type Source interface {
	WalletTransfers(ctx context.Context, address string, chain chains.Chain) ([]gateway.Transfer, error)
}

// Roster supplies the wallets under observation and receives activity
// stamps. *store.Store satisfies it.
type Roster interface {
	Watchlist() ([]store.WatchEntry, error)
	TouchWatchActivity(address string, chain chains.Chain, at time.Time) error
}

// Sink receives durable rows for observed activity. *store.BatchWriter
// satisfies it.
type Sink interface {
	WriteTrade(t store.TradeRecord) error
	WriteAlert(a store.AlertRecord) error
}

// TransferFeed is the optional live push channel of an indexer provider.
// The returned channel closes when the subscription ends for good.
type TransferFeed interface {
	SubscribeTransfers(ctx context.Context, wallets []string) (<-chan FeedEvent, error)
}

// Config tunes the watchlist monitor.
type Config struct {
	// PollInterval is the sweep cadence over the watchlist.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Lookback bounds how far the first sweep of an entry reaches.
	Lookback time.Duration `yaml:"lookback"`

	// SeenLimit caps the transfer dedup set.
	SeenLimit int `yaml:"seen_limit"`

	// ConsensusWindow is the span within which distinct wallets buying the
	// same token count toward a consensus alert.
	ConsensusWindow time.Duration `yaml:"consensus_window"`

	// ConsensusMinWallets is the distinct-wallet threshold for consensus.
	ConsensusMinWallets int `yaml:"consensus_min_wallets"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:        60 * time.Second,
		Lookback:            time.Hour,
		SeenLimit:           8192,
		ConsensusWindow:     15 * time.Minute,
		ConsensusMinWallets: 3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
	if c.SeenLimit <= 0 {
		c.SeenLimit = def.SeenLimit
	}
	if c.ConsensusWindow <= 0 {
		c.ConsensusWindow = def.ConsensusWindow
	}
	if c.ConsensusMinWallets <= 0 {
		c.ConsensusMinWallets = def.ConsensusMinWallets
	}
	return c
}

// Deps bundles the monitor's collaborators. Sink and Feed may be nil.
type Deps struct {
	Source Source
	Roster Roster
	Sink   Sink
	Feed   TransferFeed
}

// Monitor sweeps the watchlist and emits activity events.
type Monitor struct {
	cfg    Config
	src    Source
	roster Roster
	sink   Sink
	feed   TransferFeed
	log    zerolog.Logger

	cbMu        sync.RWMutex
	onActivity  ActivityFunc
	onConsensus ConsensusFunc

	mu      sync.Mutex
	cursors map[string]time.Time
	seen    map[string]struct{}
	order   []string

	consensus *consensusTracker
	running   atomic.Bool

	polls      atomic.Int64
	errs       atomic.Int64
	transfers  atomic.Int64
	activities atomic.Int64
	feedEvents atomic.Int64
	alerts     atomic.Int64
	watched    atomic.Int64
}

// New creates a monitor. Zero config fields fall back to defaults.
func New(cfg Config, deps Deps, log zerolog.Logger) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:       cfg,
		src:       deps.Source,
		roster:    deps.Roster,
		sink:      deps.Sink,
		feed:      deps.Feed,
		log:       log.With().Str("component", "monitor").Logger(),
		cursors:   make(map[string]time.Time),
		seen:      make(map[string]struct{}),
		consensus: newConsensusTracker(cfg.ConsensusWindow, cfg.ConsensusMinWallets),
	}
}

// SetOnActivity sets the callback invoked for each activity event.
func (m *Monitor) SetOnActivity(fn ActivityFunc) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onActivity = fn
}

// SetOnConsensus sets the callback invoked for each consensus alert.
func (m *Monitor) SetOnConsensus(fn ConsensusFunc) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onConsensus = fn
}

// Start runs the poll loop and, when a feed is configured, the live
// subscription. Blocks until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	m.log.Info().
		Dur("poll_interval", m.cfg.PollInterval).
		Bool("live_feed", m.feed != nil).
		Msg("monitor: starting watchlist monitor")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.pollLoop(ctx)
	}()

	if m.feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.feedLoop(ctx)
		}()
	}

	wg.Wait()
	m.log.Info().Msg("monitor: stopped")
	return nil
}

func (m *Monitor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := m.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error().Err(err).Msg("monitor: poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll sweeps every watchlist entry once. Per-entry fetch failures are
// counted and skipped; only a roster failure aborts the sweep.
func (m *Monitor) Poll(ctx context.Context) error {
	m.polls.Add(1)
	m.consensus.prune(time.Now())

	entries, err := m.roster.Watchlist()
	if err != nil {
		m.errs.Add(1)
		return fmt.Errorf("load watchlist: %w", err)
	}
	m.watched.Store(int64(len(entries)))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.checkEntry(ctx, entry)
	}
	return nil
}

func (m *Monitor) checkEntry(ctx context.Context, entry store.WatchEntry) {
	transfers, err := m.src.WalletTransfers(ctx, entry.Address, entry.Chain)
	if err != nil {
		m.errs.Add(1)
		m.log.Warn().Err(err).
			Str("wallet", entry.Address).
			Str("chain", string(entry.Chain)).
			Msg("monitor: transfer fetch failed")
		return
	}

	key := watchKey(entry.Address, entry.Chain)
	m.mu.Lock()
	cursor, ok := m.cursors[key]
	if !ok {
		cursor = time.Now().Add(-m.cfg.Lookback)
		m.cursors[key] = cursor
	}
	m.mu.Unlock()

	var latest time.Time
	for _, tr := range transfers {
		m.transfers.Add(1)
		if tr.Timestamp.After(latest) {
			latest = tr.Timestamp
		}
		if tr.Timestamp.Before(cursor) {
			continue
		}
		m.handleTransfer(entry, tr, SourcePoll)
	}

	if !latest.IsZero() {
		m.advanceCursor(key, latest)
		if latest.After(cursor) {
			if err := m.roster.TouchWatchActivity(entry.Address, entry.Chain, latest); err != nil {
				m.log.Warn().Err(err).Str("wallet", entry.Address).Msg("monitor: activity stamp failed")
			}
		}
	}
}

// handleTransfer runs one transfer through dedup and, when new, emits the
// activity event, records consensus evidence and persists rows.
func (m *Monitor) handleTransfer(entry store.WatchEntry, tr gateway.Transfer, source string) {
	if tr.TxHash == "" || tr.Token == "" {
		return
	}

	dedupKey := watchKey(entry.Address, entry.Chain) + "|" + tr.TxHash + "|" + tr.Token + "|" + string(tr.Direction)
	m.mu.Lock()
	if _, dup := m.seen[dedupKey]; dup {
		m.mu.Unlock()
		return
	}
	if len(m.seen) >= m.cfg.SeenLimit {
		delete(m.seen, m.order[0])
		m.order = m.order[1:]
	}
	m.seen[dedupKey] = struct{}{}
	m.order = append(m.order, dedupKey)
	m.mu.Unlock()

	action := ActionSell
	if tr.Direction == gateway.DirectionIn {
		action = ActionBuy
	}

	a := Activity{
		ID:          uuid.NewString(),
		Wallet:      entry.Address,
		Label:       entry.Label,
		Chain:       entry.Chain,
		Action:      action,
		Token:       tr.Token,
		TokenSymbol: tr.TokenSymbol,
		Amount:      tr.Amount,
		ValueUSD:    tr.ValueUSD,
		TxHash:      tr.TxHash,
		BlockHeight: tr.BlockHeight,
		Source:      source,
		ObservedAt:  tr.Timestamp,
	}
	m.activities.Add(1)

	m.log.Info().
		Str("wallet", entry.Address).
		Str("chain", string(entry.Chain)).
		Str("action", action).
		Str("token", tr.Token).
		Str("value_usd", tr.ValueUSD.String()).
		Str("source", source).
		Msg("monitor: watched wallet activity")

	m.cbMu.RLock()
	onActivity := m.onActivity
	onConsensus := m.onConsensus
	m.cbMu.RUnlock()

	if onActivity != nil {
		onActivity(a)
	}

	if c := m.consensus.observe(a); c != nil {
		m.alerts.Add(1)
		m.log.Info().
			Str("token", c.Token).
			Str("chain", string(c.Chain)).
			Int("wallets", len(c.Wallets)).
			Str("total_usd", c.TotalUSD.String()).
			Msg("monitor: consensus buy detected")
		if onConsensus != nil {
			onConsensus(*c)
		}
		m.persistConsensus(*c)
	}

	m.persistActivity(a)
}

func (m *Monitor) persistActivity(a Activity) {
	if m.sink == nil {
		return
	}
	trade := store.TradeRecord{
		Wallet:      a.Wallet,
		Chain:       a.Chain,
		Token:       a.Token,
		TokenSymbol: a.TokenSymbol,
		Side:        a.Action,
		ValueUSD:    a.ValueUSD.InexactFloat64(),
		TxHash:      a.TxHash,
		BlockHeight: a.BlockHeight,
		TradedAt:    a.ObservedAt,
	}
	if err := m.sink.WriteTrade(trade); err != nil {
		m.log.Warn().Err(err).Str("tx", a.TxHash).Msg("monitor: trade row dropped")
	}
	alert := store.AlertRecord{
		Kind:      "watch_activity",
		Severity:  "info",
		Title:     fmt.Sprintf("%s %s %s", displayName(a.Wallet, a.Label), a.Action, tokenName(a)),
		Detail:    fmt.Sprintf("$%.2f at block %d via %s", a.ValueUSD.InexactFloat64(), a.BlockHeight, a.Source),
		Wallet:    a.Wallet,
		Token:     a.Token,
		Chain:     string(a.Chain),
		CreatedAt: time.Now(),
	}
	if err := m.sink.WriteAlert(alert); err != nil {
		m.log.Warn().Err(err).Str("tx", a.TxHash).Msg("monitor: alert row dropped")
	}
}

func (m *Monitor) persistConsensus(c Consensus) {
	if m.sink == nil {
		return
	}
	alert := store.AlertRecord{
		Kind:     "consensus_buy",
		Severity: "warn",
		Title:    fmt.Sprintf("%d wallets bought %s", len(c.Wallets), c.TokenSymbol),
		Detail: fmt.Sprintf("$%.2f combined within %s: %s",
			c.TotalUSD.InexactFloat64(), m.cfg.ConsensusWindow, strings.Join(c.Wallets, ", ")),
		Token:     c.Token,
		Chain:     string(c.Chain),
		CreatedAt: c.DetectedAt,
	}
	if err := m.sink.WriteAlert(alert); err != nil {
		m.log.Warn().Err(err).Str("token", c.Token).Msg("monitor: consensus alert dropped")
	}
}

// feedLoop subscribes the current watchlist to the live feed and consumes
// pushed events. The feed owns reconnection; a closed channel means the
// subscription is over and polling alone covers the watchlist.
func (m *Monitor) feedLoop(ctx context.Context) {
	entries, err := m.roster.Watchlist()
	if err != nil {
		m.errs.Add(1)
		m.log.Warn().Err(err).Msg("monitor: feed subscription skipped, watchlist unavailable")
		return
	}

	byKey := make(map[string]store.WatchEntry, len(entries))
	wallets := make([]string, 0, len(entries))
	for _, e := range entries {
		byKey[watchKey(e.Address, e.Chain)] = e
		wallets = append(wallets, e.Address)
	}

	ch, err := m.feed.SubscribeTransfers(ctx, wallets)
	if err != nil {
		m.log.Warn().Err(err).Msg("monitor: live feed unavailable, poll covers the watchlist")
		return
	}
	m.log.Info().Int("wallets", len(wallets)).Msg("monitor: live feed subscribed")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				m.log.Warn().Msg("monitor: live feed closed, poll covers the watchlist")
				return
			}
			m.feedEvents.Add(1)
			entry, watched := byKey[watchKey(ev.Wallet, ev.Chain)]
			if !watched {
				continue
			}
			m.transfers.Add(1)
			m.handleTransfer(entry, ev.Transfer, SourceFeed)
			if !ev.Transfer.Timestamp.IsZero() {
				m.advanceCursor(watchKey(ev.Wallet, ev.Chain), ev.Transfer.Timestamp)
				if err := m.roster.TouchWatchActivity(entry.Address, entry.Chain, ev.Transfer.Timestamp); err != nil {
					m.log.Warn().Err(err).Str("wallet", entry.Address).Msg("monitor: activity stamp failed")
				}
			}
		}
	}
}

func (m *Monitor) advanceCursor(key string, ts time.Time) {
	m.mu.Lock()
	if ts.After(m.cursors[key]) {
		m.cursors[key] = ts
	}
	m.mu.Unlock()
}

// Stats reports cumulative monitor counters.
type Stats struct {
	Polls      int64 `json:"polls"`
	Errors     int64 `json:"errors"`
	Transfers  int64 `json:"transfers_seen"`
	Activities int64 `json:"activities"`
	FeedEvents int64 `json:"feed_events"`
	Consensus  int64 `json:"consensus_alerts"`
	Watched    int64 `json:"watched"`
}

func (m *Monitor) Stats() Stats {
	return Stats{
		Polls:      m.polls.Load(),
		Errors:     m.errs.Load(),
		Transfers:  m.transfers.Load(),
		Activities: m.activities.Load(),
		FeedEvents: m.feedEvents.Load(),
		Consensus:  m.alerts.Load(),
		Watched:    m.watched.Load(),
	}
}

// watchKey normalizes an entry to one dedup identity. EVM addresses are
// case-insensitive, base58 addresses are not.
func watchKey(address string, chain chains.Chain) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		address = strings.ToLower(address)
	}
	return address + "@" + string(chain)
}

func displayName(address, label string) string {
	if label != "" {
		return label
	}
	if len(address) > 8 {
		return address[:8]
	}
	return address
}

func tokenName(a Activity) string {
	if a.TokenSymbol != "" {
		return a.TokenSymbol
	}
	if len(a.Token) > 8 {
		return a.Token[:8]
	}
	return a.Token
}
