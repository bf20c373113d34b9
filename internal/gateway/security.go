package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// HTTP security-scanner provider
// ---------------------------------------------------------------------------

// HTTPScanner speaks to a GoPlus-style token/address security API. Upstream
// encodes booleans as "0"/"1" strings; parsing converts them and computes the
// weighted risk score. A payload that cannot be interpreted degrades to a
// conservative high-risk verdict instead of an error.
type HTTPScanner struct {
	c *httpClient
}

// NewHTTPScanner builds the security-scanner provider.
func NewHTTPScanner(name, baseURL string, keys KeySource, rps float64, timeout time.Duration, log zerolog.Logger) *HTTPScanner {
	return &HTTPScanner{c: newHTTPClient(name, baseURL, keys, rps, timeout, log)}
}

type tokenSecurityPayload struct {
	IsHoneypot         string `json:"is_honeypot"`
	BuyTax             string `json:"buy_tax"`
	SellTax            string `json:"sell_tax"`
	CannotSellAll      string `json:"cannot_sell_all"`
	IsProxy            string `json:"is_proxy"`
	IsMintable         string `json:"is_mintable"`
	OwnerChangeBalance string `json:"owner_change_balance"`
	IsAntiWhale        string `json:"is_anti_whale"`
	SlippageModifiable string `json:"slippage_modifiable"`
	TradingCooldown    string `json:"trading_cooldown"`
	IsOpenSource       string `json:"is_open_source"`
}

type addressSecurityPayload struct {
	Blacklist       string `json:"blacklist"`
	Sanctioned      string `json:"sanctioned"`
	Phishing        string `json:"phishing"`
	HoneypotRelated string `json:"honeypot_related"`
	StealingAttack  string `json:"stealing_attack"`
}

func (s *HTTPScanner) TokenSecurity(ctx context.Context, token string, chain chains.Chain) (*TokenSecurity, error) {
	if !chains.ValidAddress(token, chain) {
		return nil, &ProviderError{Provider: s.c.name, Op: "token_security", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed token %q for chain %s", token, chain)}
	}

	var resp struct {
		Result *tokenSecurityPayload `json:"result"`
	}
	path := fmt.Sprintf("/v1/%d/token/%s", chain.ID(), token)
	if err := s.c.getJSON(ctx, "token_security", path, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Result == nil {
		// No data for the token. Unknown contracts are treated as hostile.
		s.c.log.Debug().Str("component", "gateway").Str("provider", s.c.name).
			Str("token", token).Msg("gateway: no security data, conservative verdict")
		return conservativeTokenSecurity(), nil
	}
	return scoreTokenSecurity(resp.Result), nil
}

func (s *HTTPScanner) AddressSecurity(ctx context.Context, address string, chain chains.Chain) (*AddressSecurity, error) {
	if !chains.ValidAddress(address, chain) {
		return nil, &ProviderError{Provider: s.c.name, Op: "address_security", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed address %q for chain %s", address, chain)}
	}

	var resp struct {
		Result *addressSecurityPayload `json:"result"`
	}
	path := fmt.Sprintf("/v1/%d/address/%s", chain.ID(), address)
	if err := s.c.getJSON(ctx, "address_security", path, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Result == nil {
		return &AddressSecurity{RiskLevel: RiskSafe}, nil
	}

	out := &AddressSecurity{RiskLevel: RiskSafe}
	add := func(set string, tag string, blacklisting bool) {
		if flagSet(set) {
			out.Tags = append(out.Tags, tag)
			if blacklisting {
				out.Blacklisted = true
			}
		}
	}
	add(resp.Result.Blacklist, "blacklist", true)
	add(resp.Result.Sanctioned, "sanctioned", true)
	add(resp.Result.Phishing, "phishing", false)
	add(resp.Result.HoneypotRelated, "honeypot_related", false)
	add(resp.Result.StealingAttack, "stealing_attack", false)

	switch {
	case out.Blacklisted || len(out.Tags) >= 2:
		out.RiskLevel = RiskHigh
	case len(out.Tags) == 1:
		out.RiskLevel = RiskMedium
	}
	return out, nil
}

// scoreTokenSecurity converts the raw payload into a typed verdict with the
// weighted factor score.
func scoreTokenSecurity(p *tokenSecurityPayload) *TokenSecurity {
	buyTax := parseTaxPct(p.BuyTax)
	sellTax := parseTaxPct(p.SellTax)

	out := &TokenSecurity{
		BuyTaxPct:             buyTax,
		SellTaxPct:            sellTax,
		CannotSellAll:         flagSet(p.CannotSellAll),
		Proxy:                 flagSet(p.IsProxy),
		Mintable:              flagSet(p.IsMintable),
		OwnerCanChangeBalance: flagSet(p.OwnerChangeBalance),
		AntiWhale:             flagSet(p.IsAntiWhale),
		SlippageModifiable:    flagSet(p.SlippageModifiable),
		TradingCooldown:       flagSet(p.TradingCooldown),
		OpenSource:            flagSet(p.IsOpenSource),
	}
	out.Honeypot = flagSet(p.IsHoneypot) || buyTax >= 100 || sellTax >= 100 || out.CannotSellAll

	score := 0
	factor := func(cond bool, weight int, name string) {
		if cond {
			score += weight
			out.Factors = append(out.Factors, name)
		}
	}
	factor(flagSet(p.IsHoneypot), 100, "confirmed honeypot")
	factor(buyTax > 10, 20, fmt.Sprintf("buy tax %.0f%%", buyTax))
	factor(sellTax > 10, 20, fmt.Sprintf("sell tax %.0f%%", sellTax))
	factor(out.Proxy, 15, "proxy contract")
	factor(out.Mintable, 10, "mintable supply")
	factor(out.OwnerCanChangeBalance, 25, "owner can change balances")
	factor(out.AntiWhale, 5, "anti-whale limits")
	factor(out.SlippageModifiable, 15, "modifiable slippage")
	factor(out.CannotSellAll, 30, "cannot sell all")
	factor(out.TradingCooldown, 10, "trading cooldown")

	out.RiskScore = score
	out.RiskLevel = riskLevelFor(score)
	return out
}

func conservativeTokenSecurity() *TokenSecurity {
	return &TokenSecurity{
		Honeypot:  true,
		RiskScore: 100,
		RiskLevel: RiskHigh,
		Factors:   []string{"analysis unavailable"},
	}
}

func riskLevelFor(score int) RiskLevel {
	switch {
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	case score >= 10:
		return RiskLow
	}
	return RiskSafe
}

func flagSet(s string) bool { return s == "1" }

func parseTaxPct(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	// Some upstreams report taxes as a 0-1 fraction.
	if v <= 1 {
		return v * 100
	}
	return v
}

var _ SecurityScanner = (*HTTPScanner)(nil)
