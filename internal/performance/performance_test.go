package performance

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/gateway"
)

var seq int64

func leg(token string, dir gateway.Direction, usd float64, at time.Time) gateway.Transfer {
	return legAmt(token, dir, usd, 1000, at)
}

func legAmt(token string, dir gateway.Direction, usd, amount float64, at time.Time) gateway.Transfer {
	seq++
	return gateway.Transfer{
		TxHash:      fmt.Sprintf("0x%06d", seq),
		Token:       token,
		TokenSymbol: "TKN",
		Direction:   dir,
		Amount:      decimal.NewFromFloat(amount),
		ValueUSD:    decimal.NewFromFloat(usd),
		BlockHeight: seq,
		Timestamp:   at,
	}
}

func TestAnalyzeTwoRoundTrips(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	transfers := []gateway.Transfer{
		leg("0xT1", gateway.DirectionIn, 100, base),
		leg("0xT1", gateway.DirectionOut, 500, base.Add(time.Hour)),
		leg("0xT2", gateway.DirectionIn, 200, base.Add(2*time.Hour)),
		leg("0xT2", gateway.DirectionOut, 150, base.Add(3*time.Hour)),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 50.0, m.WinRate)
	assert.Equal(t, 5.0, m.MaxMultiplier)
	assert.InDelta(t, 2.875, m.AvgROI, 1e-9)
	assert.Equal(t, "300", m.TotalVolumeUSD.String())
	assert.Equal(t, 1, m.ProfitableTrades)
	assert.Equal(t, 2, m.UniqueTokens)
	assert.Equal(t, 0, m.OpenPositions)
	assert.Equal(t, base.Add(3*time.Hour), m.LastTradeAt)
}

func TestAnalyzeSellScoredAgainstOpeningBuy(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	transfers := []gateway.Transfer{
		leg("0xT1", gateway.DirectionIn, 100, base),
		leg("0xT1", gateway.DirectionIn, 200, base.Add(time.Minute)),
		leg("0xT1", gateway.DirectionOut, 500, base.Add(time.Hour)),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)
	require.Len(t, m.Trades, 1)
	assert.Equal(t, "100", m.Trades[0].BuyUSD.String(), "roi is measured against the opening buy")
	assert.Equal(t, 5.0, m.Trades[0].ROI)
	assert.Equal(t, 1, m.OpenPositions, "half the held amount is still open")
	assert.Equal(t, "100", m.TotalVolumeUSD.String(), "adds while open do not re-count volume")
}

func TestAnalyzeScaleOutProducesMultipleTrades(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	transfers := []gateway.Transfer{
		legAmt("0xT1", gateway.DirectionIn, 100, 1000, base),
		legAmt("0xT1", gateway.DirectionOut, 300, 500, base.Add(time.Hour)),
		legAmt("0xT1", gateway.DirectionOut, 400, 500, base.Add(2*time.Hour)),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)
	require.Len(t, m.Trades, 2)
	assert.Equal(t, 3.0, m.Trades[0].ROI)
	assert.Equal(t, 4.0, m.Trades[1].ROI)
	assert.Equal(t, 0, m.OpenPositions, "the position closed when the amount hit zero")
	assert.Equal(t, "100", m.TotalVolumeUSD.String())
	assert.Equal(t, 100.0, m.WinRate)
	assert.Equal(t, 1, m.UniqueTokens)
}

func TestAnalyzeUnorderedInputIsSorted(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	buy := leg("0xT1", gateway.DirectionIn, 100, base)
	sell := leg("0xT1", gateway.DirectionOut, 300, base.Add(time.Hour))

	// Sell first in the slice; block order restores the real sequence.
	m, err := a.Analyze("0xW", []gateway.Transfer{sell, buy})
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 3.0, m.MaxMultiplier)
	assert.Equal(t, 0, m.UnmatchedSells)
}

func TestAnalyzeSellWithoutBuyIsNotScored(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	transfers := []gateway.Transfer{
		leg("0xAIR", gateway.DirectionOut, 900, base),
		leg("0xT1", gateway.DirectionIn, 100, base.Add(time.Hour)),
		leg("0xT1", gateway.DirectionOut, 200, base.Add(2*time.Hour)),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.UnmatchedSells)
	assert.Equal(t, 2.0, m.MaxMultiplier, "the airdrop sale never inflates the multiple")
}

func TestAnalyzeNoCompletedTrades(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	_, err := a.Analyze("0xW", []gateway.Transfer{
		leg("0xT1", gateway.DirectionIn, 100, base),
	})
	assert.ErrorIs(t, err, ErrInsufficientData, "a holder with no exits is unknown, not zero")

	_, err = a.Analyze("0xW", nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestAnalyzeSkipsValuelessLegs(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	transfers := []gateway.Transfer{
		legAmt("0xT1", gateway.DirectionIn, 0, 1000, base),
		legAmt("0xT1", gateway.DirectionIn, 100, 0, base.Add(time.Minute)),
		leg("0xT1", gateway.DirectionIn, 100, base.Add(2*time.Minute)),
		leg("0xT1", gateway.DirectionOut, 400, base.Add(time.Hour)),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)
	require.Len(t, m.Trades, 1)
	assert.Equal(t, "100", m.Trades[0].BuyUSD.String(), "zero-value or zero-amount legs never open a position")
}

func TestMetricsHelpers(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	transfers := []gateway.Transfer{
		leg("0xT1", gateway.DirectionIn, 10, base),
		leg("0xT1", gateway.DirectionOut, 2500, base.Add(time.Hour)),
		leg("0xT2", gateway.DirectionIn, 100, base.Add(2*time.Hour)),
		leg("0xT2", gateway.DirectionOut, 150, base.Add(3*time.Hour)),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)

	shots := m.Moonshots(100)
	require.Len(t, shots, 1)
	assert.Equal(t, "0xT1", shots[0].Token)
	assert.Equal(t, 250.0, shots[0].ROI)

	best := m.BestTrade()
	require.NotNil(t, best)
	assert.Equal(t, "0xT1", best.Token)

	now := base.Add(3*time.Hour + 24*time.Hour)
	assert.True(t, m.ActiveWithin(30*24*time.Hour, now))
	assert.False(t, m.ActiveWithin(time.Hour, now))
}

// A fresh buy with nothing realized is not recent activity; only completed
// exits count toward recency.
func TestAnalyzeRecencyIgnoresOpenBuys(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	soldAt := now.Add(-60 * 24 * time.Hour)
	transfers := []gateway.Transfer{
		leg("0xT1", gateway.DirectionIn, 100, soldAt.Add(-time.Hour)),
		leg("0xT1", gateway.DirectionOut, 500, soldAt),
		// Bought yesterday, still holding.
		leg("0xT2", gateway.DirectionIn, 250, now.Add(-24*time.Hour)),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 0, m.RecentActivityCount)
	assert.Equal(t, soldAt, m.LastTradeAt, "open buys never advance the last trade time")
	assert.False(t, m.ActiveWithin(30*24*time.Hour, now))
}

func TestAnalyzeRecentActivityCountsExitsInWindow(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	oldSell := now.Add(-40 * 24 * time.Hour)
	freshSell := now.Add(-10 * 24 * time.Hour)
	transfers := []gateway.Transfer{
		leg("0xT1", gateway.DirectionIn, 100, oldSell.Add(-time.Hour)),
		leg("0xT1", gateway.DirectionOut, 300, oldSell),
		leg("0xT2", gateway.DirectionIn, 100, freshSell.Add(-time.Hour)),
		leg("0xT2", gateway.DirectionOut, 50, freshSell),
	}

	m, err := a.Analyze("0xW", transfers)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.RecentActivityCount)
	assert.Equal(t, freshSell, m.LastTradeAt)
	assert.True(t, m.ActiveWithin(30*24*time.Hour, now))
}
