package monitor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/chains"
)

func buyAt(wallet, token string, usd float64, at time.Time) Activity {
	return Activity{
		Wallet:      wallet,
		Chain:       chains.Ethereum,
		Action:      ActionBuy,
		Token:       token,
		TokenSymbol: "TKN",
		ValueUSD:    decimal.NewFromFloat(usd),
		ObservedAt:  at,
	}
}

func TestTrackerFiresAtThreshold(t *testing.T) {
	base := time.Now()
	tr := newConsensusTracker(15*time.Minute, 3)
	token := tokenAddr(1)

	assert.Nil(t, tr.observe(buyAt(addr(3), token, 100, base)))
	assert.Nil(t, tr.observe(buyAt(addr(1), token, 200, base.Add(time.Minute))))

	c := tr.observe(buyAt(addr(2), token, 300, base.Add(2*time.Minute)))
	require.NotNil(t, c)
	assert.Equal(t, []string{addr(1), addr(2), addr(3)}, c.Wallets)
	assert.True(t, c.TotalUSD.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, token, c.Token)

	// Another buyer inside the same window stays quiet.
	assert.Nil(t, tr.observe(buyAt(addr(4), token, 50, base.Add(3*time.Minute))))
}

func TestTrackerRearmsAfterWindow(t *testing.T) {
	base := time.Now()
	tr := newConsensusTracker(15*time.Minute, 3)
	token := tokenAddr(2)

	tr.observe(buyAt(addr(1), token, 100, base))
	tr.observe(buyAt(addr(2), token, 100, base.Add(time.Minute)))
	require.NotNil(t, tr.observe(buyAt(addr(3), token, 100, base.Add(2*time.Minute))))

	// A fresh wave past the window alerts again with only the new buyers.
	late := base.Add(20 * time.Minute)
	tr.observe(buyAt(addr(5), token, 10, late))
	tr.observe(buyAt(addr(6), token, 20, late.Add(time.Minute)))
	c := tr.observe(buyAt(addr(7), token, 30, late.Add(2*time.Minute)))
	require.NotNil(t, c)
	assert.Equal(t, []string{addr(5), addr(6), addr(7)}, c.Wallets)
	assert.True(t, c.TotalUSD.Equal(decimal.NewFromInt(60)))
}

func TestTrackerCountsWalletsOnce(t *testing.T) {
	base := time.Now()
	tr := newConsensusTracker(15*time.Minute, 3)
	token := tokenAddr(3)

	assert.Nil(t, tr.observe(buyAt(addr(1), token, 100, base)))
	assert.Nil(t, tr.observe(buyAt(addr(1), token, 100, base.Add(time.Minute))))
	assert.Nil(t, tr.observe(buyAt(addr(1), token, 100, base.Add(2*time.Minute))))
	assert.Nil(t, tr.observe(buyAt(addr(2), token, 100, base.Add(3*time.Minute))))
}

func TestTrackerIgnoresSells(t *testing.T) {
	base := time.Now()
	tr := newConsensusTracker(15*time.Minute, 2)
	token := tokenAddr(4)

	sell := buyAt(addr(1), token, 100, base)
	sell.Action = ActionSell
	assert.Nil(t, tr.observe(sell))
	assert.Nil(t, tr.observe(buyAt(addr(2), token, 100, base.Add(time.Minute))),
		"one real buy is below a threshold of two")
}

func TestTrackerKeysByChain(t *testing.T) {
	base := time.Now()
	tr := newConsensusTracker(15*time.Minute, 2)
	token := tokenAddr(5)

	eth := buyAt(addr(1), token, 100, base)
	bsc := buyAt(addr(2), token, 100, base.Add(time.Minute))
	bsc.Chain = chains.BSC

	assert.Nil(t, tr.observe(eth))
	assert.Nil(t, tr.observe(bsc), "the same token on different chains never pools")
}

func TestTrackerPruneDropsStaleState(t *testing.T) {
	base := time.Now()
	tr := newConsensusTracker(15*time.Minute, 3)
	token := tokenAddr(6)

	tr.observe(buyAt(addr(1), token, 100, base))
	tr.observe(buyAt(addr(2), token, 100, base.Add(time.Minute)))
	require.NotNil(t, tr.observe(buyAt(addr(3), token, 100, base.Add(2*time.Minute))))

	tr.prune(base.Add(time.Hour))

	tr.mu.Lock()
	assert.Empty(t, tr.buys)
	assert.Empty(t, tr.alerted)
	tr.mu.Unlock()
}
