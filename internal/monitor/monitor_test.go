package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/gateway"
	"github.com/warden-labs/warden/internal/store"
)

func addr(i int) string {
	return fmt.Sprintf("0x%040d", i)
}

func tokenAddr(i int) string {
	return fmt.Sprintf("0x%040x", 0xfeed0000+i)
}

func transfer(tx, token, symbol string, dir gateway.Direction, usd float64, block int64, ts time.Time) gateway.Transfer {
	return gateway.Transfer{
		TxHash:       tx,
		Token:        token,
		TokenSymbol:  symbol,
		Direction:    dir,
		Counterparty: fmt.Sprintf("0x%040x", 0xcafe0000),
		Amount:       decimal.NewFromInt(1000),
		ValueUSD:     decimal.NewFromFloat(usd),
		BlockHeight:  block,
		Timestamp:    ts,
	}
}

func watch(address string, chain chains.Chain, label string) store.WatchEntry {
	return store.WatchEntry{Address: address, Chain: chain, Label: label, AddedAt: time.Now().Add(-24 * time.Hour)}
}

type memRoster struct {
	mu      sync.Mutex
	entries []store.WatchEntry
	touches map[string]time.Time
	listErr error
}

func newMemRoster(entries ...store.WatchEntry) *memRoster {
	return &memRoster{entries: entries, touches: make(map[string]time.Time)}
}

func (r *memRoster) add(e store.WatchEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *memRoster) Watchlist() ([]store.WatchEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]store.WatchEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

func (r *memRoster) TouchWatchActivity(address string, chain chains.Chain, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches[address+"@"+string(chain)] = at
	return nil
}

func (r *memRoster) touched(address string, chain chains.Chain) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.touches[address+"@"+string(chain)]
	return at, ok
}

type memSink struct {
	mu     sync.Mutex
	trades []store.TradeRecord
	alerts []store.AlertRecord
}

func (s *memSink) WriteTrade(t store.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

func (s *memSink) WriteAlert(a store.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *memSink) tradeRows() []store.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}

func (s *memSink) alertsOfKind(kind string) []store.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.AlertRecord
	for _, a := range s.alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type stubFeed struct {
	mu     sync.Mutex
	ch     chan FeedEvent
	subs   [][]string
	subErr error
}

func newStubFeed() *stubFeed {
	return &stubFeed{ch: make(chan FeedEvent, 16)}
}

func (f *stubFeed) SubscribeTransfers(_ context.Context, wallets []string) (<-chan FeedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subs = append(f.subs, wallets)
	return f.ch, nil
}

func (f *stubFeed) emit(ev FeedEvent) {
	f.ch <- ev
}

func (f *stubFeed) subscriptions() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.subs))
	copy(out, f.subs)
	return out
}

type testRig struct {
	indexer *gateway.StubIndexer
	roster  *memRoster
	sink    *memSink
	feed    *stubFeed
}

func newTestRig(entries ...store.WatchEntry) *testRig {
	return &testRig{
		indexer: gateway.NewStubIndexer(),
		roster:  newMemRoster(entries...),
		sink:    &memSink{},
	}
}

func (r *testRig) monitor(cfg Config) *Monitor {
	deps := Deps{Source: r.indexer, Roster: r.roster, Sink: r.sink}
	if r.feed != nil {
		deps.Feed = r.feed
	}
	return New(cfg, deps, zerolog.Nop())
}

func collectActivities(m *Monitor) *activityLog {
	al := &activityLog{}
	m.SetOnActivity(func(a Activity) {
		al.mu.Lock()
		al.items = append(al.items, a)
		al.mu.Unlock()
	})
	return al
}

type activityLog struct {
	mu    sync.Mutex
	items []Activity
}

func (l *activityLog) all() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Activity, len(l.items))
	copy(out, l.items)
	return out
}

func TestPollEmitsActivity(t *testing.T) {
	now := time.Now()
	entry := watch(addr(1), chains.Ethereum, "whale")
	rig := newTestRig(entry)
	rig.indexer.AddTransfers(addr(1),
		transfer("0xaa01", tokenAddr(0), "PEPE", gateway.DirectionIn, 1500, 100, now.Add(-5*time.Minute)),
		transfer("0xaa02", tokenAddr(0), "PEPE", gateway.DirectionOut, 3000, 120, now.Add(-2*time.Minute)),
	)

	mon := rig.monitor(Config{})
	got := collectActivities(mon)

	require.NoError(t, mon.Poll(context.Background()))

	acts := got.all()
	require.Len(t, acts, 2)

	buy := acts[0]
	_, err := uuid.Parse(buy.ID)
	assert.NoError(t, err)
	assert.Equal(t, addr(1), buy.Wallet)
	assert.Equal(t, "whale", buy.Label)
	assert.Equal(t, chains.Ethereum, buy.Chain)
	assert.Equal(t, ActionBuy, buy.Action)
	assert.Equal(t, tokenAddr(0), buy.Token)
	assert.Equal(t, "PEPE", buy.TokenSymbol)
	assert.True(t, buy.ValueUSD.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "0xaa01", buy.TxHash)
	assert.Equal(t, SourcePoll, buy.Source)

	assert.Equal(t, ActionSell, acts[1].Action)

	trades := rig.sink.tradeRows()
	require.Len(t, trades, 2)
	assert.Equal(t, "buy", trades[0].Side)
	assert.Equal(t, "sell", trades[1].Side)
	assert.Equal(t, 1500.0, trades[0].ValueUSD)

	alerts := rig.sink.alertsOfKind("watch_activity")
	require.Len(t, alerts, 2)
	assert.Equal(t, "whale buy PEPE", alerts[0].Title)
	assert.Equal(t, "info", alerts[0].Severity)
	assert.Contains(t, alerts[0].Detail, "block 100")

	at, ok := rig.roster.touched(addr(1), chains.Ethereum)
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(-2*time.Minute), at, time.Second)

	st := mon.Stats()
	assert.Equal(t, int64(1), st.Polls)
	assert.Equal(t, int64(2), st.Transfers)
	assert.Equal(t, int64(2), st.Activities)
	assert.Equal(t, int64(1), st.Watched)
	assert.Equal(t, int64(0), st.Errors)
}

func TestPollSkipsTransfersBeforeLookback(t *testing.T) {
	now := time.Now()
	entry := watch(addr(1), chains.Ethereum, "")
	rig := newTestRig(entry)
	rig.indexer.AddTransfers(addr(1),
		transfer("0xaa01", tokenAddr(0), "OLD", gateway.DirectionIn, 900, 50, now.Add(-2*time.Hour)),
	)

	mon := rig.monitor(Config{Lookback: time.Hour})
	got := collectActivities(mon)

	require.NoError(t, mon.Poll(context.Background()))

	assert.Empty(t, got.all())
	_, ok := rig.roster.touched(addr(1), chains.Ethereum)
	assert.False(t, ok, "stale transfers must not stamp activity")
	assert.Equal(t, int64(1), mon.Stats().Transfers)
	assert.Equal(t, int64(0), mon.Stats().Activities)
}

func TestPollDedupsAcrossSweeps(t *testing.T) {
	now := time.Now()
	entry := watch(addr(1), chains.Ethereum, "")
	rig := newTestRig(entry)
	rig.indexer.AddTransfers(addr(1),
		transfer("0xaa01", tokenAddr(0), "PEPE", gateway.DirectionIn, 1500, 100, now.Add(-5*time.Minute)),
		transfer("0xaa02", tokenAddr(0), "PEPE", gateway.DirectionOut, 3000, 120, now.Add(-2*time.Minute)),
	)

	mon := rig.monitor(Config{})
	got := collectActivities(mon)

	require.NoError(t, mon.Poll(context.Background()))
	require.NoError(t, mon.Poll(context.Background()))

	assert.Len(t, got.all(), 2, "a repeated sweep must not re-emit")
	assert.Len(t, rig.sink.tradeRows(), 2)
	assert.Equal(t, int64(2), mon.Stats().Activities)
}

func TestPollContinuesAfterFetchFailure(t *testing.T) {
	now := time.Now()
	rig := newTestRig(
		watch(addr(1), chains.Ethereum, ""),
		watch(addr(2), chains.Ethereum, ""),
	)
	rig.indexer.AddTransfers(addr(2),
		transfer("0xbb01", tokenAddr(1), "WIF", gateway.DirectionIn, 700, 200, now.Add(-time.Minute)),
	)
	rig.indexer.SetFailNext()

	mon := rig.monitor(Config{})
	got := collectActivities(mon)

	require.NoError(t, mon.Poll(context.Background()))

	acts := got.all()
	require.Len(t, acts, 1)
	assert.Equal(t, addr(2), acts[0].Wallet)
	assert.Equal(t, int64(1), mon.Stats().Errors)
}

func TestPollAbortsWhenRosterFails(t *testing.T) {
	rig := newTestRig()
	rig.roster.listErr = errors.New("database locked")

	mon := rig.monitor(Config{})
	err := mon.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load watchlist")
	assert.Equal(t, int64(1), mon.Stats().Errors)
}

func TestConsensusBuyAlert(t *testing.T) {
	now := time.Now()
	rig := newTestRig(
		watch(addr(1), chains.Ethereum, "a"),
		watch(addr(2), chains.Ethereum, "b"),
		watch(addr(3), chains.Ethereum, "c"),
	)
	token := tokenAddr(7)
	rig.indexer.AddTransfers(addr(1), transfer("0xcc01", token, "MOON", gateway.DirectionIn, 100, 300, now.Add(-3*time.Minute)))
	rig.indexer.AddTransfers(addr(2), transfer("0xcc02", token, "MOON", gateway.DirectionIn, 200, 301, now.Add(-2*time.Minute)))
	rig.indexer.AddTransfers(addr(3), transfer("0xcc03", token, "MOON", gateway.DirectionIn, 300, 302, now.Add(-time.Minute)))

	mon := rig.monitor(Config{})
	var consensus []Consensus
	var mu sync.Mutex
	mon.SetOnConsensus(func(c Consensus) {
		mu.Lock()
		consensus = append(consensus, c)
		mu.Unlock()
	})

	require.NoError(t, mon.Poll(context.Background()))

	mu.Lock()
	require.Len(t, consensus, 1)
	c := consensus[0]
	mu.Unlock()

	_, err := uuid.Parse(c.ID)
	assert.NoError(t, err)
	assert.Equal(t, token, c.Token)
	assert.Equal(t, "MOON", c.TokenSymbol)
	assert.Equal(t, []string{addr(1), addr(2), addr(3)}, c.Wallets)
	assert.True(t, c.TotalUSD.Equal(decimal.NewFromInt(600)))

	alerts := rig.sink.alertsOfKind("consensus_buy")
	require.Len(t, alerts, 1)
	assert.Equal(t, "3 wallets bought MOON", alerts[0].Title)
	assert.Equal(t, "warn", alerts[0].Severity)
	assert.Equal(t, int64(1), mon.Stats().Consensus)

	// A fourth buyer inside the window must not re-alert.
	rig.roster.add(watch(addr(4), chains.Ethereum, "d"))
	rig.indexer.AddTransfers(addr(4), transfer("0xcc04", token, "MOON", gateway.DirectionIn, 400, 303, now))
	require.NoError(t, mon.Poll(context.Background()))

	assert.Len(t, rig.sink.alertsOfKind("consensus_buy"), 1)
	assert.Equal(t, int64(1), mon.Stats().Consensus)
}

func TestConsensusNeedsDistinctWallets(t *testing.T) {
	now := time.Now()

	t.Run("one wallet buying repeatedly", func(t *testing.T) {
		rig := newTestRig(watch(addr(1), chains.Ethereum, ""))
		token := tokenAddr(8)
		rig.indexer.AddTransfers(addr(1),
			transfer("0xdd01", token, "SPAM", gateway.DirectionIn, 100, 400, now.Add(-3*time.Minute)),
			transfer("0xdd02", token, "SPAM", gateway.DirectionIn, 100, 401, now.Add(-2*time.Minute)),
			transfer("0xdd03", token, "SPAM", gateway.DirectionIn, 100, 402, now.Add(-time.Minute)),
		)

		mon := rig.monitor(Config{})
		require.NoError(t, mon.Poll(context.Background()))
		assert.Empty(t, rig.sink.alertsOfKind("consensus_buy"))
	})

	t.Run("sells never count", func(t *testing.T) {
		rig := newTestRig(
			watch(addr(1), chains.Ethereum, ""),
			watch(addr(2), chains.Ethereum, ""),
			watch(addr(3), chains.Ethereum, ""),
		)
		token := tokenAddr(9)
		rig.indexer.AddTransfers(addr(1), transfer("0xee01", token, "DUMP", gateway.DirectionOut, 100, 500, now.Add(-3*time.Minute)))
		rig.indexer.AddTransfers(addr(2), transfer("0xee02", token, "DUMP", gateway.DirectionOut, 100, 501, now.Add(-2*time.Minute)))
		rig.indexer.AddTransfers(addr(3), transfer("0xee03", token, "DUMP", gateway.DirectionOut, 100, 502, now.Add(-time.Minute)))

		mon := rig.monitor(Config{})
		require.NoError(t, mon.Poll(context.Background()))
		assert.Empty(t, rig.sink.alertsOfKind("consensus_buy"))
	})
}

func TestStartDeliversFeedEvents(t *testing.T) {
	now := time.Now()
	entry := watch(addr(1), chains.Ethereum, "whale")
	rig := newTestRig(entry)
	rig.feed = newStubFeed()

	mon := rig.monitor(Config{PollInterval: time.Hour})
	acts := make(chan Activity, 8)
	mon.SetOnActivity(func(a Activity) { acts <- a })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mon.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(rig.feed.subscriptions()) == 1
	}, 2*time.Second, 10*time.Millisecond, "feed never subscribed")
	assert.Equal(t, []string{addr(1)}, rig.feed.subscriptions()[0])

	assert.ErrorIs(t, mon.Start(ctx), ErrAlreadyRunning)

	tr := transfer("0xff01", tokenAddr(3), "LIVE", gateway.DirectionIn, 2500, 600, now)
	rig.feed.emit(FeedEvent{Wallet: addr(1), Chain: chains.Ethereum, Transfer: tr})

	select {
	case a := <-acts:
		assert.Equal(t, SourceFeed, a.Source)
		assert.Equal(t, addr(1), a.Wallet)
		assert.Equal(t, "whale", a.Label)
		assert.Equal(t, "0xff01", a.TxHash)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed activity")
	}

	require.Eventually(t, func() bool {
		_, ok := rig.roster.touched(addr(1), chains.Ethereum)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "feed event never stamped activity")
	at, _ := rig.roster.touched(addr(1), chains.Ethereum)
	assert.WithinDuration(t, now, at, time.Second)

	// The same transfer surfacing through a poll must not re-emit.
	rig.indexer.AddTransfers(addr(1), tr)
	require.NoError(t, mon.Poll(ctx))
	assert.Equal(t, int64(1), mon.Stats().Activities)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestStartPollsWhenFeedUnavailable(t *testing.T) {
	now := time.Now()
	entry := watch(addr(1), chains.Ethereum, "")
	rig := newTestRig(entry)
	rig.feed = newStubFeed()
	rig.feed.subErr = errors.New("connection refused")
	rig.indexer.AddTransfers(addr(1),
		transfer("0xab01", tokenAddr(4), "POLL", gateway.DirectionIn, 800, 700, now.Add(-time.Minute)),
	)

	mon := rig.monitor(Config{PollInterval: time.Hour})
	acts := make(chan Activity, 8)
	mon.SetOnActivity(func(a Activity) { acts <- a })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mon.Start(ctx) }()

	select {
	case a := <-acts:
		assert.Equal(t, SourcePoll, a.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("poll never produced the activity")
	}
	assert.Equal(t, int64(0), mon.Stats().FeedEvents)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestFeedIgnoresUnwatchedWallets(t *testing.T) {
	now := time.Now()
	rig := newTestRig(watch(addr(1), chains.Ethereum, ""))
	rig.feed = newStubFeed()

	mon := rig.monitor(Config{PollInterval: time.Hour})
	acts := make(chan Activity, 8)
	mon.SetOnActivity(func(a Activity) { acts <- a })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mon.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(rig.feed.subscriptions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rig.feed.emit(FeedEvent{Wallet: addr(99), Chain: chains.Ethereum,
		Transfer: transfer("0xba01", tokenAddr(5), "GHOST", gateway.DirectionIn, 100, 800, now)})
	rig.feed.emit(FeedEvent{Wallet: addr(1), Chain: chains.Ethereum,
		Transfer: transfer("0xba02", tokenAddr(5), "REAL", gateway.DirectionIn, 100, 801, now)})

	select {
	case a := <-acts:
		assert.Equal(t, "0xba02", a.TxHash)
	case <-time.After(2 * time.Second):
		t.Fatal("watched event never arrived")
	}
	assert.Equal(t, int64(2), mon.Stats().FeedEvents)
	assert.Equal(t, int64(1), mon.Stats().Activities)

	cancel()
	<-done
}

func TestSeenLimitEvictsOldestKeys(t *testing.T) {
	now := time.Now()
	entry := watch(addr(1), chains.Ethereum, "")
	rig := newTestRig(entry)

	mon := rig.monitor(Config{SeenLimit: 2})
	got := collectActivities(mon)

	t1 := transfer("0xca01", tokenAddr(6), "A", gateway.DirectionIn, 10, 900, now)
	t2 := transfer("0xca02", tokenAddr(6), "A", gateway.DirectionIn, 10, 901, now)
	t3 := transfer("0xca03", tokenAddr(6), "A", gateway.DirectionIn, 10, 902, now)

	mon.handleTransfer(entry, t1, SourcePoll)
	mon.handleTransfer(entry, t1, SourcePoll) // duplicate, suppressed
	mon.handleTransfer(entry, t2, SourcePoll)
	mon.handleTransfer(entry, t3, SourcePoll) // evicts t1's key
	mon.handleTransfer(entry, t1, SourcePoll) // re-emitted after eviction

	assert.Len(t, got.all(), 4)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	def := DefaultConfig()
	assert.Equal(t, def.PollInterval, cfg.PollInterval)
	assert.Equal(t, def.Lookback, cfg.Lookback)
	assert.Equal(t, def.SeenLimit, cfg.SeenLimit)
	assert.Equal(t, def.ConsensusWindow, cfg.ConsensusWindow)
	assert.Equal(t, def.ConsensusMinWallets, cfg.ConsensusMinWallets)

	custom := Config{PollInterval: 5 * time.Second, ConsensusMinWallets: 2}.withDefaults()
	assert.Equal(t, 5*time.Second, custom.PollInterval)
	assert.Equal(t, 2, custom.ConsensusMinWallets)
	assert.Equal(t, def.Lookback, custom.Lookback)
}
