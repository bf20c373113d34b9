package performance

import (
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/gateway"
)

// ---------------------------------------------------------------------------
// Wallet performance — position pairing over transfer history
// ---------------------------------------------------------------------------

// ErrInsufficientData means the wallet has no completed trades to measure.
// Callers must treat this as "unknown", never as a zero score.
var ErrInsufficientData = errors.New("insufficient trade history")

// CompletedTrade is one realized exit, scored against the buy that opened
// the position.
type CompletedTrade struct {
	Token       string          `json:"token"`
	TokenSymbol string          `json:"token_symbol,omitempty"`
	BuyUSD      decimal.Decimal `json:"buy_usd"`
	SellUSD     decimal.Decimal `json:"sell_usd"`
	ROI         float64         `json:"roi"`
	BoughtAt    time.Time       `json:"bought_at"`
	SoldAt      time.Time       `json:"sold_at"`
}

// RecentActivityWindow bounds how far back a realized exit still counts as
// recent activity.
const RecentActivityWindow = 30 * 24 * time.Hour

// WalletMetrics aggregates a wallet's realized trading performance.
// Recency is measured on completed trades only: LastTradeAt is the sell
// timestamp of the latest realized exit, and RecentActivityCount counts
// exits inside RecentActivityWindow. An open buy is a bet, not activity.
type WalletMetrics struct {
	Wallet              string           `json:"wallet"`
	TotalTrades         int              `json:"total_trades"`
	WinRate             float64          `json:"win_rate"`
	AvgROI              float64          `json:"avg_roi"`
	MaxMultiplier       float64          `json:"max_multiplier"`
	TotalVolumeUSD      decimal.Decimal  `json:"total_volume_usd"`
	ProfitableTrades    int              `json:"profitable_trades"`
	UniqueTokens        int              `json:"unique_tokens"`
	OpenPositions       int              `json:"open_positions"`
	UnmatchedSells      int              `json:"unmatched_sells"`
	RecentActivityCount int              `json:"recent_activity_count"`
	LastTradeAt         time.Time        `json:"last_trade_at"`
	Trades              []CompletedTrade `json:"-"`
}

// ActiveWithin reports whether the wallet realized an exit inside the window
// ending at now.
func (m *WalletMetrics) ActiveWithin(window time.Duration, now time.Time) bool {
	return !m.LastTradeAt.IsZero() && now.Sub(m.LastTradeAt) <= window
}

// Moonshots returns completed trades at or above the given multiple.
func (m *WalletMetrics) Moonshots(minMultiplier float64) []CompletedTrade {
	var out []CompletedTrade
	for _, t := range m.Trades {
		if t.ROI >= minMultiplier {
			out = append(out, t)
		}
	}
	return out
}

// BestTrade returns the completed trade with the highest multiple, or nil.
func (m *WalletMetrics) BestTrade() *CompletedTrade {
	var best *CompletedTrade
	for i := range m.Trades {
		if best == nil || m.Trades[i].ROI > best.ROI {
			best = &m.Trades[i]
		}
	}
	return best
}

// Analyzer turns raw transfer history into wallet metrics.
type Analyzer struct {
	log zerolog.Logger
	now func() time.Time
}

func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log, now: time.Now}
}

type position struct {
	amount decimal.Decimal
	buyUSD decimal.Decimal
	symbol string
	openAt time.Time
}

// Analyze walks the transfer history per token in block order. An inbound
// transfer with no open position opens one and records its buy value; further
// inbounds while open only grow the held amount. Every outbound while a
// position is open completes a trade with roi = sell USD / opening buy USD,
// and shrinks the position until it closes at zero. Sells with no open
// position (airdrops, inbound gifts) are counted but never scored. Returns
// ErrInsufficientData when no trade ever completed.
func (a *Analyzer) Analyze(wallet string, transfers []gateway.Transfer) (*WalletMetrics, error) {
	ordered := make([]gateway.Transfer, len(transfers))
	copy(ordered, transfers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockHeight != ordered[j].BlockHeight {
			return ordered[i].BlockHeight < ordered[j].BlockHeight
		}
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	m := &WalletMetrics{Wallet: wallet, TotalVolumeUSD: decimal.Zero}
	open := make(map[string]*position)
	tokens := make(map[string]struct{})

	for _, tr := range ordered {
		if !tr.ValueUSD.IsPositive() || !tr.Amount.IsPositive() {
			continue
		}

		switch tr.Direction {
		case gateway.DirectionIn:
			if p, ok := open[tr.Token]; ok {
				p.amount = p.amount.Add(tr.Amount)
				continue
			}
			open[tr.Token] = &position{
				amount: tr.Amount,
				buyUSD: tr.ValueUSD,
				symbol: tr.TokenSymbol,
				openAt: tr.Timestamp,
			}
			m.TotalVolumeUSD = m.TotalVolumeUSD.Add(tr.ValueUSD)
		case gateway.DirectionOut:
			p, ok := open[tr.Token]
			if !ok {
				m.UnmatchedSells++
				continue
			}
			m.Trades = append(m.Trades, CompletedTrade{
				Token:       tr.Token,
				TokenSymbol: p.symbol,
				BuyUSD:      p.buyUSD,
				SellUSD:     tr.ValueUSD,
				ROI:         tr.ValueUSD.Div(p.buyUSD).InexactFloat64(),
				BoughtAt:    p.openAt,
				SoldAt:      tr.Timestamp,
			})
			tokens[tr.Token] = struct{}{}
			p.amount = p.amount.Sub(tr.Amount)
			if !p.amount.IsPositive() {
				delete(open, tr.Token)
			}
		}
	}

	m.OpenPositions = len(open)
	m.TotalTrades = len(m.Trades)
	m.UniqueTokens = len(tokens)

	if m.TotalTrades == 0 {
		return nil, ErrInsufficientData
	}

	recentCutoff := a.now().Add(-RecentActivityWindow)
	var roiSum float64
	for _, t := range m.Trades {
		roiSum += t.ROI
		if t.ROI > 1 {
			m.ProfitableTrades++
		}
		if t.ROI > m.MaxMultiplier {
			m.MaxMultiplier = t.ROI
		}
		if t.SoldAt.After(m.LastTradeAt) {
			m.LastTradeAt = t.SoldAt
		}
		if t.SoldAt.After(recentCutoff) {
			m.RecentActivityCount++
		}
	}
	m.WinRate = float64(m.ProfitableTrades) / float64(m.TotalTrades) * 100
	m.AvgROI = roiSum / float64(m.TotalTrades)

	a.log.Debug().Str("component", "performance").
		Str("wallet", wallet).
		Int("trades", m.TotalTrades).
		Float64("win_rate", m.WinRate).
		Float64("max_multiplier", m.MaxMultiplier).
		Msg("performance: wallet analyzed")
	return m, nil
}
