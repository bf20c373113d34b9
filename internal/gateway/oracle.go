package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// HTTP price-oracle provider
// ---------------------------------------------------------------------------

// HTTPOracle speaks to a DEX aggregator price API.
type HTTPOracle struct {
	c *httpClient
}

// NewHTTPOracle builds the price-oracle provider.
func NewHTTPOracle(name, baseURL string, keys KeySource, rps float64, timeout time.Duration, log zerolog.Logger) *HTTPOracle {
	return &HTTPOracle{c: newHTTPClient(name, baseURL, keys, rps, timeout, log)}
}

func (o *HTTPOracle) TokenPrice(ctx context.Context, token string, chain chains.Chain) (decimal.Decimal, error) {
	if !chains.ValidAddress(token, chain) {
		return decimal.Zero, &ProviderError{Provider: o.c.name, Op: "token_price", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed token %q for chain %s", token, chain)}
	}

	var resp struct {
		PriceUSD decimal.Decimal `json:"price_usd"`
	}
	path := fmt.Sprintf("/v1/price/%d/%s", chain.ID(), token)
	if err := o.c.getJSON(ctx, "token_price", path, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.PriceUSD.IsNegative() {
		return decimal.Zero, &ProviderError{Provider: o.c.name, Op: "token_price", Class: ClassTransient,
			Err: fmt.Errorf("negative price for %s", token)}
	}
	return resp.PriceUSD, nil
}

func (o *HTTPOracle) TokenLiquidity(ctx context.Context, token string, chain chains.Chain) (*LiquidityInfo, error) {
	if !chains.ValidAddress(token, chain) {
		return nil, &ProviderError{Provider: o.c.name, Op: "token_liquidity", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed token %q for chain %s", token, chain)}
	}

	var resp struct {
		LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
		Locked       bool            `json:"locked"`
		Owner        string          `json:"owner"`
	}
	path := fmt.Sprintf("/v1/liquidity/%d/%s", chain.ID(), token)
	if err := o.c.getJSON(ctx, "token_liquidity", path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.LiquidityUSD.IsNegative() {
		return nil, &ProviderError{Provider: o.c.name, Op: "token_liquidity", Class: ClassTransient,
			Err: fmt.Errorf("negative liquidity for %s", token)}
	}
	return &LiquidityInfo{LiquidityUSD: resp.LiquidityUSD, Locked: resp.Locked, Owner: resp.Owner}, nil
}

var _ PriceOracle = (*HTTPOracle)(nil)
