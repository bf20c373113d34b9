package honeypot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/gateway"
)

func newTestRegistry() *Registry {
	return NewRegistry(DefaultRegistryConfig(), zerolog.Nop())
}

func convicted(token string, tags ...string) *Result {
	return &Result{
		Token:       token,
		Chain:       chains.Ethereum,
		Honeypot:    true,
		Critical:    true,
		RiskScore:   12,
		Tags:        tags,
		Fingerprint: fingerprintBytecode("0x6080604052" + token[2:]),
		CheckedAt:   time.Now().UTC(),
	}
}

func TestRegistryRecordsConvictions(t *testing.T) {
	reg := newTestRegistry()

	clean := &Result{Token: testToken, Chain: chains.Ethereum, Honeypot: false}
	assert.False(t, reg.Record(clean), "clean results are not convictions")
	assert.False(t, reg.Record(nil))

	require.True(t, reg.Record(convicted(testToken, "liquidity_locked")))

	det, ok := reg.Known(testToken, chains.Ethereum)
	require.True(t, ok)
	assert.Equal(t, testToken, det.Token)
	assert.Equal(t, 12, det.RiskScore)
	assert.True(t, det.Critical)
	assert.Equal(t, 1, det.HitCount)

	_, ok = reg.Known(strings.ToUpper(testToken), chains.Ethereum)
	assert.True(t, ok, "lookup is case-insensitive")

	_, ok = reg.Known(testToken, chains.BSC)
	assert.False(t, ok, "convictions are per chain")

	stats := reg.Stats()
	assert.Equal(t, int64(1), stats.Convictions)
	assert.Equal(t, 1, stats.Known)
}

func TestRegistryRepeatConvictionIncrementsHits(t *testing.T) {
	reg := newTestRegistry()

	first := convicted(testToken, "blacklisted")
	require.True(t, reg.Record(first))

	second := convicted(testToken, "blacklisted", "trading_disabled")
	second.CheckedAt = first.CheckedAt.Add(time.Hour)
	require.True(t, reg.Record(second))

	det, ok := reg.Known(testToken, chains.Ethereum)
	require.True(t, ok)
	assert.Equal(t, 2, det.HitCount)
	assert.Equal(t, first.CheckedAt, det.FirstSeen)
	assert.Equal(t, second.CheckedAt, det.LastSeen)
	assert.ElementsMatch(t, []string{"blacklisted", "trading_disabled"}, det.Tags)

	stats := reg.Stats()
	assert.Equal(t, int64(2), stats.Convictions)
	assert.Equal(t, 1, stats.Known)
}

func TestRegistryMatchesRedeployedBytecode(t *testing.T) {
	reg := newTestRegistry()

	res := convicted(testToken, "liquidity_locked")
	require.True(t, reg.Record(res))
	require.NotEmpty(t, res.Fingerprint)

	orig, ok := reg.MatchesKnownRug(res.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, testToken, orig.Token)

	_, ok = reg.MatchesKnownRug("")
	assert.False(t, ok)
	_, ok = reg.MatchesKnownRug(fingerprintBytecode("0x1111111111111111"))
	assert.False(t, ok)

	assert.Equal(t, int64(1), reg.Stats().CloneHits)
}

func TestRegistryTagFrequencies(t *testing.T) {
	reg := newTestRegistry()

	require.True(t, reg.Record(convicted("0x0000000000000000000000000000000000000001", "liquidity_locked", "blacklisted")))
	require.True(t, reg.Record(convicted("0x0000000000000000000000000000000000000002", "liquidity_locked")))

	stats := reg.Stats()
	assert.Equal(t, map[string]int{"liquidity_locked": 2, "blacklisted": 1}, stats.TagCounts)
}

func TestRegistryCapacity(t *testing.T) {
	reg := NewRegistry(RegistryConfig{MaxEntries: 2, RecentSize: 10}, zerolog.Nop())

	tokens := make([]string, 3)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("0x%040d", i+1)
	}
	require.True(t, reg.Record(convicted(tokens[0])))
	require.True(t, reg.Record(convicted(tokens[1])))
	assert.False(t, reg.Record(convicted(tokens[2])), "registry full")

	_, ok := reg.Known(tokens[2], chains.Ethereum)
	assert.False(t, ok)
	assert.Equal(t, 2, reg.Stats().Known)

	assert.True(t, reg.Record(convicted(tokens[0])), "known tokens update even at capacity")
}

func TestRegistryRecentIsBoundedNewestFirst(t *testing.T) {
	reg := NewRegistry(RegistryConfig{MaxEntries: 100, RecentSize: 3}, zerolog.Nop())

	for i := 1; i <= 5; i++ {
		require.True(t, reg.Record(convicted(fmt.Sprintf("0x%040d", i))))
	}

	recent := reg.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, fmt.Sprintf("0x%040d", 5), recent[0].Token)
	assert.Equal(t, fmt.Sprintf("0x%040d", 4), recent[1].Token)
	assert.Equal(t, fmt.Sprintf("0x%040d", 3), recent[2].Token)

	assert.Len(t, reg.Recent(2), 2)
}

func TestRegistryConvictionCallback(t *testing.T) {
	reg := newTestRegistry()

	var got []Detection
	reg.SetOnConviction(func(d Detection) { got = append(got, d) })

	require.True(t, reg.Record(convicted(testToken, "trade_cooldown")))
	require.Len(t, got, 1)
	assert.Equal(t, testToken, got[0].Token)
	assert.Equal(t, []string{"trade_cooldown"}, got[0].Tags)
}

func TestRegistryRoundTripWithSimulator(t *testing.T) {
	sim, p := newTestSimulator(t)
	scriptCleanToken(p, testToken)
	p.SetSimOutcome(gateway.SimSell, &gateway.SimOutcome{
		Success:      false,
		RevertReason: "LIQUIDITY_LOCKED",
	})

	res, err := sim.Check(context.Background(), testToken, chains.Ethereum)
	require.NoError(t, err)
	require.True(t, res.Honeypot)
	require.NotEmpty(t, res.Fingerprint)

	reg := newTestRegistry()
	require.True(t, reg.Record(res))

	det, ok := reg.Known(testToken, chains.Ethereum)
	require.True(t, ok)
	assert.Equal(t, res.Fingerprint, det.Fingerprint)

	clone, ok := reg.MatchesKnownRug(res.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, testToken, clone.Token)
}

func TestFingerprintBytecode(t *testing.T) {
	assert.Empty(t, fingerprintBytecode(""))
	assert.Empty(t, fingerprintBytecode("0x6080"), "too short to discriminate")

	a := fingerprintBytecode("0xABCDEF0123456789AB")
	b := fingerprintBytecode("abcdef0123456789ab")
	require.NotEmpty(t, a)
	assert.Equal(t, a, b, "prefix and case are normalized")

	c := fingerprintBytecode("0x6080604052600080fd")
	assert.NotEqual(t, a, c)
	assert.Len(t, c, 32)
}
