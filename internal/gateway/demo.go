package gateway

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// Demo dataset — deterministic stub data for keyless development runs
// ---------------------------------------------------------------------------

// Demo wallet roster. The profiles are shaped so a full discovery run over
// the stubs produces every interesting outcome: a qualifier, a mid-scorer,
// a copycat pair, a dev-pattern wallet and an insufficient-data wallet.
const (
	DemoWalletStrong   = "0xDE00000000000000000000000000000000000A01"
	DemoWalletMid      = "0xDE00000000000000000000000000000000000A02"
	DemoWalletLeader   = "0xDE00000000000000000000000000000000000A03"
	DemoWalletShadow   = "0xDE00000000000000000000000000000000000A04"
	DemoWalletSprayer  = "0xDE00000000000000000000000000000000000A05"
	DemoWalletDormant  = "0xDE00000000000000000000000000000000000A06"
	DemoTokenRug       = "0x70000000000000000000000000000000000000AD"
	demoSafeBytecode   = "0x6080604052600436106100295760003560e01c"
	demoCounterpartyLP = "0xC000000000000000000000000000000000000001"
)

type demoTrade struct {
	token   string
	symbol  string
	buyUSD  float64
	sellUSD float64
	dayAgo  int
}

// PopulateDemo fills the stub providers with a deterministic dataset.
func PopulateDemo(ix *StubIndexer, sc *StubScanner, or *StubOracle) {
	now := time.Now().UTC()
	block := int64(19_000_000)

	addWallet := func(addr string, trades []demoTrade) {
		for _, tr := range trades {
			ts := now.Add(-time.Duration(tr.dayAgo) * 24 * time.Hour)
			ix.AddTransfers(addr,
				Transfer{
					TxHash:       fmt.Sprintf("0xb%06x", block),
					Token:        tr.token,
					TokenSymbol:  tr.symbol,
					Direction:    DirectionIn,
					Counterparty: demoCounterpartyLP,
					Amount:       decimal.NewFromInt(1_000_000),
					ValueUSD:     decimal.NewFromFloat(tr.buyUSD),
					BlockHeight:  block,
					Timestamp:    ts,
				})
			if tr.sellUSD > 0 {
				ix.AddTransfers(addr,
					Transfer{
						TxHash:       fmt.Sprintf("0xs%06x", block),
						Token:        tr.token,
						TokenSymbol:  tr.symbol,
						Direction:    DirectionOut,
						Counterparty: demoCounterpartyLP,
						Amount:       decimal.NewFromInt(1_000_000),
						ValueUSD:     decimal.NewFromFloat(tr.sellUSD),
						BlockHeight:  block + 20,
						Timestamp:    ts.Add(6 * time.Hour),
					})
			}
			block += 50
			ix.AddHolders(tr.token, demoHolders(tr.token))
			ix.SetBytecode(tr.token, demoSafeBytecode)
		}
		ix.AddTransactions(chains.Ethereum, Transaction{
			Hash:        fmt.Sprintf("0xseed%04x", block),
			From:        addr,
			To:          demoCounterpartyLP,
			ValueUSD:    decimal.NewFromInt(1_000),
			BlockHeight: block,
			Timestamp:   now.Add(-time.Hour),
		})
	}

	addWallet(DemoWalletStrong, demoStrongHistory())
	addWallet(DemoWalletMid, demoMidHistory())

	leader := demoLeaderHistory()
	addWallet(DemoWalletLeader, leader)
	addWallet(DemoWalletShadow, leader) // identical timing: copycat pair

	addWallet(DemoWalletSprayer, demoSprayerHistory())
	addWallet(DemoWalletDormant, []demoTrade{
		{token: demoToken(9, 1), symbol: "DRM1", buyUSD: 500, dayAgo: 3},
	})

	// The sprayer also fans funds out to many fresh wallets.
	for i := 0; i < 12; i++ {
		ix.AddTransfers(DemoWalletSprayer, Transfer{
			TxHash:       fmt.Sprintf("0xf%06x", block+int64(i)),
			Token:        demoToken(8, 1),
			TokenSymbol:  "SPRY",
			Direction:    DirectionOut,
			Counterparty: fmt.Sprintf("0xF%02d00000000000000000000000000000000000AB", i),
			Amount:       decimal.NewFromInt(10_000),
			ValueUSD:     decimal.NewFromInt(200),
			BlockHeight:  block + int64(i),
			Timestamp:    now.Add(-2 * 24 * time.Hour),
		})
	}

	// A known-bad token for the safety service to flag.
	sc.SetTokenSecurity(DemoTokenRug, &TokenSecurity{
		Honeypot:   true,
		SellTaxPct: 100,
		RiskScore:  100,
		RiskLevel:  RiskHigh,
		Factors:    []string{"confirmed honeypot", "sell tax 100%"},
	})
	or.SetLiquidity(DemoTokenRug, &LiquidityInfo{LiquidityUSD: decimal.NewFromInt(400)})
	ix.SetBytecode(DemoTokenRug, demoSafeBytecode)
	ix.AddHolders(DemoTokenRug, []Holder{
		{Address: "0xBAD0000000000000000000000000000000000001", PctOfSupply: 74},
		{Address: "0xBAD0000000000000000000000000000000000002", PctOfSupply: 11},
	})
}

// 32 trades, 29 winners, one 220x, >$100k buy volume, all recent.
func demoStrongHistory() []demoTrade {
	out := make([]demoTrade, 0, 32)
	for i := 0; i < 32; i++ {
		tr := demoTrade{
			token:   demoToken(1, i),
			symbol:  fmt.Sprintf("ALP%d", i),
			buyUSD:  3_500,
			sellUSD: 10_500,
			dayAgo:  28 - (i % 28),
		}
		switch {
		case i == 5:
			tr.sellUSD = 770_000 // the moonshot
		case i%10 == 9:
			tr.sellUSD = 1_750 // occasional loss
		}
		out = append(out, tr)
	}
	return out
}

// 12 trades, moderate wins, stays below the qualification bar.
func demoMidHistory() []demoTrade {
	out := make([]demoTrade, 0, 12)
	for i := 0; i < 12; i++ {
		tr := demoTrade{
			token:   demoToken(2, i),
			symbol:  fmt.Sprintf("MID%d", i),
			buyUSD:  900,
			sellUSD: 2_700,
			dayAgo:  20 - i,
		}
		if i%4 == 3 {
			tr.sellUSD = 450
		}
		out = append(out, tr)
	}
	return out
}

// 24 strong trades; the shadow wallet replays these exactly.
func demoLeaderHistory() []demoTrade {
	out := make([]demoTrade, 0, 24)
	for i := 0; i < 24; i++ {
		tr := demoTrade{
			token:   demoToken(3, i),
			symbol:  fmt.Sprintf("LDR%d", i),
			buyUSD:  4_600,
			sellUSD: 27_600,
			dayAgo:  25 - i,
		}
		if i == 7 {
			tr.sellUSD = 1_100_000
		}
		out = append(out, tr)
	}
	return out
}

// Two buys, many outbound fans: trips the dev-wallet heuristic.
func demoSprayerHistory() []demoTrade {
	return []demoTrade{
		{token: demoToken(8, 1), symbol: "SPRY", buyUSD: 2_000, sellUSD: 9_000, dayAgo: 6},
		{token: demoToken(8, 2), symbol: "SPRY2", buyUSD: 1_500, sellUSD: 5_000, dayAgo: 4},
	}
}

func demoHolders(token string) []Holder {
	holders := make([]Holder, 0, 10)
	for i := 0; i < 10; i++ {
		holders = append(holders, Holder{
			Address:     fmt.Sprintf("0xA%02d000000000000000000000000000000000%s", i, token[len(token)-4:]),
			Balance:     decimal.NewFromInt(int64(1000 - i*50)),
			PctOfSupply: 4.5 - float64(i)*0.3,
		})
	}
	return holders
}

func demoToken(family, idx int) string {
	return fmt.Sprintf("0x7%03d%036d", family, idx)
}
