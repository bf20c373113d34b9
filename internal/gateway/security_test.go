package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/chains"
)

func cleanPayload() *tokenSecurityPayload {
	return &tokenSecurityPayload{
		IsHoneypot: "0", BuyTax: "0", SellTax: "0", CannotSellAll: "0",
		IsProxy: "0", IsMintable: "0", OwnerChangeBalance: "0",
		IsAntiWhale: "0", SlippageModifiable: "0", TradingCooldown: "0",
		IsOpenSource: "1",
	}
}

func TestScoreTokenSecurityClean(t *testing.T) {
	sec := scoreTokenSecurity(cleanPayload())
	assert.False(t, sec.Honeypot)
	assert.Equal(t, 0, sec.RiskScore)
	assert.Equal(t, RiskSafe, sec.RiskLevel)
	assert.True(t, sec.OpenSource)
	assert.Empty(t, sec.Factors)
}

func TestScoreTokenSecurityConfirmedHoneypot(t *testing.T) {
	p := cleanPayload()
	p.IsHoneypot = "1"
	sec := scoreTokenSecurity(p)
	assert.True(t, sec.Honeypot)
	assert.Equal(t, 100, sec.RiskScore)
	assert.Equal(t, RiskHigh, sec.RiskLevel)
	assert.Contains(t, sec.Factors, "confirmed honeypot")
}

func TestScoreTokenSecurityTaxes(t *testing.T) {
	p := cleanPayload()
	p.BuyTax = "0.15"
	p.SellTax = "25"
	sec := scoreTokenSecurity(p)
	assert.Equal(t, 15.0, sec.BuyTaxPct, "fractional taxes are scaled to percent")
	assert.Equal(t, 25.0, sec.SellTaxPct)
	assert.Equal(t, 40, sec.RiskScore)
	assert.Equal(t, RiskMedium, sec.RiskLevel)
	assert.False(t, sec.Honeypot, "high tax alone is not a honeypot")
}

func TestScoreTokenSecurityTotalTaxIsHoneypot(t *testing.T) {
	p := cleanPayload()
	p.SellTax = "1"
	sec := scoreTokenSecurity(p)
	assert.Equal(t, 100.0, sec.SellTaxPct)
	assert.True(t, sec.Honeypot, "a 100% sell tax means the position cannot exit")
}

func TestScoreTokenSecuritySellBlocked(t *testing.T) {
	p := cleanPayload()
	p.CannotSellAll = "1"
	sec := scoreTokenSecurity(p)
	assert.True(t, sec.Honeypot)
	assert.Equal(t, 30, sec.RiskScore)
	assert.Equal(t, RiskMedium, sec.RiskLevel)
}

func TestScoreTokenSecurityStructuralFactorsStack(t *testing.T) {
	p := cleanPayload()
	p.IsProxy = "1"
	p.IsMintable = "1"
	p.SlippageModifiable = "1"
	sec := scoreTokenSecurity(p)
	assert.Equal(t, 40, sec.RiskScore)
	assert.Equal(t, RiskMedium, sec.RiskLevel)
	assert.False(t, sec.Honeypot)

	p.OwnerChangeBalance = "1"
	sec = scoreTokenSecurity(p)
	assert.Equal(t, 65, sec.RiskScore)
	assert.Equal(t, RiskHigh, sec.RiskLevel)
}

func TestConservativeVerdict(t *testing.T) {
	sec := conservativeTokenSecurity()
	assert.True(t, sec.Honeypot)
	assert.Equal(t, 100, sec.RiskScore)
	assert.Equal(t, RiskHigh, sec.RiskLevel)
}

func TestParseTaxPct(t *testing.T) {
	cases := map[string]float64{
		"":      0,
		"0":     0,
		"0.05":  5,
		"0.5":   50,
		"1":     100,
		"25":    25,
		"bogus": 0,
		"-3":    0,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseTaxPct(in), "input %q", in)
	}
}

func TestRiskLevelBoundaries(t *testing.T) {
	assert.Equal(t, RiskSafe, riskLevelFor(0))
	assert.Equal(t, RiskSafe, riskLevelFor(9))
	assert.Equal(t, RiskLow, riskLevelFor(10))
	assert.Equal(t, RiskLow, riskLevelFor(24))
	assert.Equal(t, RiskMedium, riskLevelFor(25))
	assert.Equal(t, RiskMedium, riskLevelFor(49))
	assert.Equal(t, RiskHigh, riskLevelFor(50))
}

func TestScannerTokenSecurityOverHTTP(t *testing.T) {
	token := "0x7000000000000000000000000000000000000001"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"is_honeypot":"0","buy_tax":"0.02","sell_tax":"0.02",
			"is_proxy":"1","is_open_source":"1"}}`))
	}))
	defer srv.Close()

	keys := newTestKeys(t, "security", "key-a")
	sc := NewHTTPScanner("security", srv.URL, keys, 100, time.Second, zerolog.Nop())

	sec, err := sc.TokenSecurity(context.Background(), token, chains.Ethereum)
	require.NoError(t, err)
	assert.False(t, sec.Honeypot)
	assert.True(t, sec.Proxy)
	assert.Equal(t, 2.0, sec.BuyTaxPct)
	assert.Equal(t, 15, sec.RiskScore)
}

func TestScannerMissingResultIsConservative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result":null}`))
	}))
	defer srv.Close()

	keys := newTestKeys(t, "security", "key-a")
	sc := NewHTTPScanner("security", srv.URL, keys, 100, time.Second, zerolog.Nop())

	sec, err := sc.TokenSecurity(context.Background(), "0x7000000000000000000000000000000000000001", chains.Ethereum)
	require.NoError(t, err, "missing data degrades, it does not error")
	assert.True(t, sec.Honeypot)
	assert.Equal(t, RiskHigh, sec.RiskLevel)
}

func TestScannerAddressSecurity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"blacklist":"1","phishing":"1"}}`))
	}))
	defer srv.Close()

	keys := newTestKeys(t, "security", "key-a")
	sc := NewHTTPScanner("security", srv.URL, keys, 100, time.Second, zerolog.Nop())

	sec, err := sc.AddressSecurity(context.Background(), testWallet, chains.Ethereum)
	require.NoError(t, err)
	assert.True(t, sec.Blacklisted)
	assert.Equal(t, RiskHigh, sec.RiskLevel)
	assert.ElementsMatch(t, []string{"blacklist", "phishing"}, sec.Tags)
}

func TestScannerSingleTagIsMedium(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result":{"honeypot_related":"1"}}`))
	}))
	defer srv.Close()

	keys := newTestKeys(t, "security", "key-a")
	sc := NewHTTPScanner("security", srv.URL, keys, 100, time.Second, zerolog.Nop())

	sec, err := sc.AddressSecurity(context.Background(), testWallet, chains.Ethereum)
	require.NoError(t, err)
	assert.False(t, sec.Blacklisted)
	assert.Equal(t, RiskMedium, sec.RiskLevel)
	assert.Equal(t, []string{"honeypot_related"}, sec.Tags)
}
