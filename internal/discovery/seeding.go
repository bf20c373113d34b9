package discovery

import (
	"context"
	"strings"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// Candidate Seeding — recent activity, stored high performers, pinned wallets
// ---------------------------------------------------------------------------

// candKey dedupes candidates per (address, chain). EVM addresses fold case;
// base58 addresses are case-sensitive and pass through unchanged.
func candKey(address string, chain chains.Chain) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		address = strings.ToLower(address)
	}
	return address + "@" + string(chain)
}

// seedCandidates assembles the run's candidate batch. Malformed addresses
// are dropped, exchange wallets are skipped and the batch is capped at
// cfg.BatchCap. Source order is recent transaction senders, then stored
// high performers, then operator-pinned seeds.
func (s *Scanner) seedCandidates(ctx context.Context, runChains []chains.Chain) []Candidate {
	seen := make(map[string]bool)
	out := make([]Candidate, 0, 64)

	// add reports whether the batch still has room.
	add := func(address string, chain chains.Chain) bool {
		if len(out) >= s.cfg.BatchCap {
			return false
		}
		if !chains.ValidAddress(address, chain) {
			return true
		}
		if _, isCEX := chains.IsCEX(address); isCEX {
			return true
		}
		key := candKey(address, chain)
		if seen[key] {
			return true
		}
		seen[key] = true
		out = append(out, Candidate{Address: address, Chain: chain})
		return true
	}

	for _, chain := range runChains {
		txs, err := s.src.RecentTransactions(ctx, chain, s.cfg.SeedTxLimit)
		if err != nil {
			s.log.Warn().Err(err).Str("chain", string(chain)).
				Msg("discovery: recent transaction seed failed")
			continue
		}
		for _, tx := range txs {
			if !add(tx.From, chain) {
				return out
			}
		}
	}

	top, err := s.db.TopTraders(s.cfg.HighPerformerScore, s.cfg.HighPerformerLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("discovery: high performer seed failed")
	}
	for _, tr := range top {
		if !chainEnabled(runChains, tr.Chain) {
			continue
		}
		if !add(tr.Address, tr.Chain) {
			return out
		}
	}

	for _, addr := range s.cfg.SeedWallets {
		for _, chain := range runChains {
			if !chains.ValidAddress(addr, chain) {
				continue
			}
			if !add(addr, chain) {
				return out
			}
			break
		}
	}

	s.log.Debug().Int("candidates", len(out)).Msg("discovery: candidate batch seeded")
	return out
}

func chainEnabled(runChains []chains.Chain, c chains.Chain) bool {
	for _, rc := range runChains {
		if rc == c {
			return true
		}
	}
	return false
}
