package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/chains"
)

const testWallet = "0xDE00000000000000000000000000000000000A01"

func newTestGateway(indexers ...ChainIndexer) *Gateway {
	g := New(zerolog.Nop())
	names := []string{"primary", "backup", "tertiary"}
	for i, ix := range indexers {
		g.RegisterIndexer(names[i], ix)
	}
	return g
}

func sampleTransfer() Transfer {
	return Transfer{
		TxHash:      "0xabc",
		Token:       "0x7000000000000000000000000000000000000001",
		TokenSymbol: "AAA",
		Direction:   DirectionIn,
		Amount:      decimal.NewFromInt(100),
		ValueUSD:    decimal.NewFromInt(250),
		BlockHeight: 1000,
		Timestamp:   time.Now().UTC(),
	}
}

func TestGatewayFallsBackAfterBreakerOpens(t *testing.T) {
	primary := NewStubIndexer()
	backup := NewStubIndexer()
	backup.AddTransfers(testWallet, sampleTransfer())
	g := newTestGateway(primary, backup)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		primary.SetFailNext()
		_, err := g.WalletTransfers(ctx, testWallet, chains.Ethereum)
		require.Error(t, err)
	}
	assert.True(t, g.Stats()["primary"].Tripped, "three consecutive failures open the breaker")

	transfers, err := g.WalletTransfers(ctx, testWallet, chains.Ethereum)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xabc", transfers[0].TxHash)

	stats := g.Stats()
	assert.Equal(t, int64(1), stats["backup"].Calls)
	assert.False(t, stats["backup"].Tripped)
}

func TestGatewayUnavailableWhenAllBreakersOpen(t *testing.T) {
	only := NewStubIndexer()
	g := newTestGateway(only)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		only.SetFailNext()
		_, err := g.WalletTransfers(ctx, testWallet, chains.Ethereum)
		require.Error(t, err)
	}

	_, err := g.WalletTransfers(ctx, testWallet, chains.Ethereum)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestGatewayInvalidInputDoesNotTripBreaker(t *testing.T) {
	only := NewStubIndexer()
	only.AddTransfers(testWallet, sampleTransfer())
	g := newTestGateway(only)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := g.WalletTransfers(ctx, "not-an-address", chains.Ethereum)
		require.Error(t, err)
		assert.True(t, IsInvalidInput(err))
	}

	st := g.Stats()["primary"]
	assert.False(t, st.Tripped, "caller mistakes must not open the breaker")
	assert.Equal(t, int64(10), st.Errors)

	transfers, err := g.WalletTransfers(ctx, testWallet, chains.Ethereum)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
}

func TestGatewayNoProvidersRegistered(t *testing.T) {
	g := New(zerolog.Nop())
	ctx := context.Background()

	_, err := g.WalletTransfers(ctx, testWallet, chains.Ethereum)
	assert.True(t, IsUnavailable(err))

	_, err = g.AddressSecurity(ctx, testWallet, chains.Ethereum)
	assert.True(t, IsUnavailable(err))

	_, err = g.TokenPrice(ctx, testWallet, chains.Ethereum)
	assert.True(t, IsUnavailable(err))
}

func TestGatewayDelegatesAllCapabilities(t *testing.T) {
	ix := NewStubIndexer()
	sc := NewStubScanner()
	or := NewStubOracle()
	g := New(zerolog.Nop())
	g.RegisterIndexer("ix", ix)
	g.RegisterScanner("sc", sc)
	g.RegisterOracle("or", or)

	token := "0x7000000000000000000000000000000000000001"
	ix.SetBytecode(testWallet, "0x6080")
	sc.SetTokenSecurity(token, &TokenSecurity{RiskScore: 12, RiskLevel: RiskLow})
	or.SetLiquidity(token, &LiquidityInfo{LiquidityUSD: decimal.NewFromInt(75_000), Locked: true})

	ctx := context.Background()

	code, err := g.ContractBytecode(ctx, testWallet, chains.Ethereum)
	require.NoError(t, err)
	assert.Equal(t, "0x6080", code)

	sec, err := g.TokenSecurity(ctx, token, chains.Ethereum)
	require.NoError(t, err)
	assert.Equal(t, RiskLow, sec.RiskLevel)

	liq, err := g.TokenLiquidity(ctx, token, chains.Ethereum)
	require.NoError(t, err)
	assert.True(t, liq.Locked)
	assert.Equal(t, "75000", liq.LiquidityUSD.String())

	price, err := g.TokenPrice(ctx, token, chains.Ethereum)
	require.NoError(t, err)
	assert.True(t, price.IsPositive())

	for name, st := range g.Stats() {
		assert.Equal(t, "closed", st.State, "provider %s", name)
	}
}
