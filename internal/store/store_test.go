package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/chains"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTrader(addr string, score float64) TraderRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return TraderRecord{
		Address:        addr,
		Chain:          chains.Ethereum,
		Score:          score,
		WinRate:        78.5,
		AvgROI:         3.2,
		MaxMultiplier:  120,
		TotalVolumeUSD: 85_000,
		TradeCount:     42,
		Classification: "safe",
		Flags:          []string{"high_performer"},
		SampleToken:    "0x7000000000000000000000000000000000000001",
		FirstSeen:      now,
		LastScored:     now,
	}
}

func TestTraderUpsertPreservesFirstSeen(t *testing.T) {
	s := newTestStore(t)
	tr := testTrader("0xDE00000000000000000000000000000000000A01", 85)
	require.NoError(t, s.UpsertTrader(tr))

	rescored := tr
	rescored.Score = 91
	rescored.LastScored = tr.LastScored.Add(time.Hour)
	require.NoError(t, s.UpsertTrader(rescored))

	got, err := s.GetTrader(tr.Address, chains.Ethereum)
	require.NoError(t, err)
	assert.Equal(t, 91.0, got.Score)
	assert.Equal(t, []string{"high_performer"}, got.Flags)
	assert.WithinDuration(t, tr.FirstSeen, got.FirstSeen, time.Second)
	assert.WithinDuration(t, rescored.LastScored, got.LastScored, time.Second)
}

func TestTopTradersOrdering(t *testing.T) {
	s := newTestStore(t)

	a := testTrader("0xDE00000000000000000000000000000000000A01", 90)
	b := testTrader("0xDE00000000000000000000000000000000000A02", 85)
	b.TotalVolumeUSD = 200_000
	c := testTrader("0xDE00000000000000000000000000000000000A03", 85)
	c.TotalVolumeUSD = 50_000
	low := testTrader("0xDE00000000000000000000000000000000000A04", 40)
	for _, tr := range []TraderRecord{c, low, a, b} {
		require.NoError(t, s.UpsertTrader(tr))
	}

	top, err := s.TopTraders(80, 10)
	require.NoError(t, err)
	require.Len(t, top, 3, "below-threshold traders are filtered out")
	assert.Equal(t, a.Address, top[0].Address)
	assert.Equal(t, b.Address, top[1].Address, "volume breaks the score tie")
	assert.Equal(t, c.Address, top[2].Address)
}

func TestTokenCheckLatestWins(t *testing.T) {
	s := newTestStore(t)
	token := "0x7000000000000000000000000000000000000001"
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.InsertTokenCheck(TokenCheckRecord{
		Token: token, Chain: chains.BSC, Honeypot: false, RiskScore: 2,
		Factors: []string{"low liquidity: $40000"}, CheckedAt: base.Add(-time.Hour),
	}))
	require.NoError(t, s.InsertTokenCheck(TokenCheckRecord{
		Token: token, Chain: chains.BSC, Honeypot: true, RiskScore: 9,
		Factors: []string{"sell simulation reverted"}, CheckedAt: base,
	}))

	latest, err := s.LatestTokenCheck(token, chains.BSC)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Honeypot)
	assert.Equal(t, 9, latest.RiskScore)
	assert.Equal(t, []string{"sell simulation reverted"}, latest.Factors)

	missing, err := s.LatestTokenCheck("0x7000000000000000000000000000000000000099", chains.BSC)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertTradesIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	batch := []TradeRecord{
		{Wallet: "0xW", Chain: chains.Ethereum, Token: "0xT", Side: "buy",
			ValueUSD: 100, TxHash: "0x1", TradedAt: now.Add(-time.Minute)},
		{Wallet: "0xW", Chain: chains.Ethereum, Token: "0xT", Side: "sell",
			ValueUSD: 500, ROI: 5, TxHash: "0x2", TradedAt: now},
	}
	require.NoError(t, s.InsertTrades(batch))
	require.NoError(t, s.InsertTrades(batch), "replaying a batch must be harmless")

	trades, err := s.TradesForWallet("0xW", chains.Ethereum, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "sell", trades[0].Side, "newest first")
	assert.Equal(t, 5.0, trades[0].ROI)
}

func TestMoonshotKeepsLargestMultiple(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	m := MoonshotRecord{Wallet: "0xW", Chain: chains.Ethereum, Token: "0xT",
		Multiplier: 220, BuyUSD: 3_500, SellUSD: 770_000, RealizedAt: now}
	require.NoError(t, s.UpsertMoonshot(m))

	smaller := m
	smaller.Multiplier = 80
	require.NoError(t, s.UpsertMoonshot(smaller))

	top, err := s.TopMoonshots(100, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 220.0, top[0].Multiplier)

	none, err := s.TopMoonshots(500, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWatchlistLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	w := WatchEntry{Address: "0xDE00000000000000000000000000000000000A01",
		Chain: chains.Ethereum, Label: "alpha", Score: 88, AddedAt: now}
	require.NoError(t, s.UpsertWatch(w))

	entries, err := s.Watchlist()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].LastActivity)

	require.NoError(t, s.TouchWatchActivity(w.Address, w.Chain, now.Add(time.Minute)))
	entries, err = s.Watchlist()
	require.NoError(t, err)
	require.NotNil(t, entries[0].LastActivity)

	require.NoError(t, s.RemoveWatch(w.Address, w.Chain))
	entries, err = s.Watchlist()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAlertsAndKeyEvents(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.InsertAlert(AlertRecord{
		Kind: "honeypot_detected", Severity: "warn", Title: "honeypot on sampled token",
		Token: "0xT", Chain: "ethereum", CreatedAt: now,
	}))
	alerts, err := s.RecentAlerts(5)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "honeypot_detected", alerts[0].Kind)

	require.NoError(t, s.InsertKeyEvent(KeyEvent{
		Service: "indexer", KeyHash: "a1b2c3d4e5f60718", Event: "cooldown",
		CooldownSeconds: 300, CreatedAt: now,
	}))
	events, err := s.RecentKeyEvents("indexer", 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(300), events[0].CooldownSeconds)
}

func TestScanRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	started := time.Now().UTC().Truncate(time.Second)

	id, err := s.StartScanRun(started, "ethereum,bsc")
	require.NoError(t, err)
	require.NoError(t, s.FinishScanRun(id, started.Add(time.Minute), 1500, 12, 1488, 3))

	runs, err := s.RecentScanRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1500, runs[0].Candidates)
	assert.Equal(t, 12, runs[0].Qualified)
	require.NotNil(t, runs[0].FinishedAt)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats["scan_runs"])
}

func TestBatchWriterFlushAndClose(t *testing.T) {
	s := newTestStore(t)
	w := NewBatchWriter(s, 100, time.Minute, zerolog.Nop())
	now := time.Now().UTC().Truncate(time.Second)

	for i, hash := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, w.WriteTrade(TradeRecord{
			Wallet: "0xW", Chain: chains.Ethereum, Token: "0xT", Side: "buy",
			ValueUSD: float64(100 * (i + 1)), TxHash: hash, TradedAt: now,
		}))
	}
	require.NoError(t, w.WriteAlert(AlertRecord{
		Kind: "scan_complete", Severity: "info", Title: "sweep done", CreatedAt: now,
	}))

	st := w.Stats()
	assert.Equal(t, 3, st.PendingTrades)
	assert.Equal(t, 1, st.PendingAlerts)

	require.NoError(t, w.Flush())
	trades, err := s.TradesForWallet("0xW", chains.Ethereum, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 3)

	require.NoError(t, w.Close())
	err = w.WriteTrade(TradeRecord{Wallet: "0xW", TxHash: "0x9"})
	assert.Error(t, err, "closed writer rejects rows")
}
