package discovery

import (
	"sort"

	"github.com/warden-labs/warden/internal/performance"
	"github.com/warden-labs/warden/internal/store"
)

// ---------------------------------------------------------------------------
// Moonshot Leaderboard — top realized multipliers across all analyzed wallets
// ---------------------------------------------------------------------------

const (
	moonshotMultiplier = 200 // headline tier
	moonshotBackfill   = 100 // fills the board when headliners are scarce
	moonshotTop        = 10
)

// moonshotCandidates extracts every realized trade at or above the backfill
// tier from one wallet's history. Gated wallets never reach this point, so
// honeypot exits cannot fake a multiplier onto the board.
func moonshotCandidates(w *DiscoveredWallet, m *performance.WalletMetrics) []store.MoonshotRecord {
	trades := m.Moonshots(moonshotBackfill)
	if len(trades) == 0 {
		return nil
	}
	out := make([]store.MoonshotRecord, 0, len(trades))
	for _, t := range trades {
		out = append(out, store.MoonshotRecord{
			Wallet:      w.Address,
			Chain:       w.Chain,
			Token:       t.Token,
			TokenSymbol: t.TokenSymbol,
			Multiplier:  t.ROI,
			BuyUSD:      t.BuyUSD.InexactFloat64(),
			SellUSD:     t.SellUSD.InexactFloat64(),
			RealizedAt:  t.SoldAt,
		})
	}
	return out
}

// buildLeaderboard ranks this run's moonshot candidates. Headline entries at
// 200x or more fill the board first; anything between 100x and 200x only
// backfills remaining slots. Ties break on wallet then token so reruns are
// stable.
func buildLeaderboard(candidates []store.MoonshotRecord) []store.MoonshotRecord {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]store.MoonshotRecord, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Multiplier != b.Multiplier {
			return a.Multiplier > b.Multiplier
		}
		if a.Wallet != b.Wallet {
			return a.Wallet < b.Wallet
		}
		return a.Token < b.Token
	})

	board := make([]store.MoonshotRecord, 0, moonshotTop)
	var backfill []store.MoonshotRecord
	for _, m := range sorted {
		if m.Multiplier >= moonshotMultiplier {
			if len(board) < moonshotTop {
				board = append(board, m)
			}
			continue
		}
		backfill = append(backfill, m)
	}
	for _, m := range backfill {
		if len(board) >= moonshotTop {
			break
		}
		board = append(board, m)
	}
	return board
}

// publishMoonshots persists the board. Write failures cost an entry its
// durability, not the run.
func (s *Scanner) publishMoonshots(board []store.MoonshotRecord) {
	for _, m := range board {
		if err := s.db.UpsertMoonshot(m); err != nil {
			s.log.Warn().Err(err).
				Str("wallet", m.Wallet).
				Str("token", m.Token).
				Msg("discovery: moonshot persist failed")
		}
	}
}
