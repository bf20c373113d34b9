package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// Data Provider Gateway — capability registry with per-provider breakers
// ---------------------------------------------------------------------------

type namedIndexer struct {
	name string
	p    ChainIndexer
}

type namedScanner struct {
	name string
	p    SecurityScanner
}

type namedOracle struct {
	name string
	p    PriceOracle
}

type providerStats struct {
	calls  atomic.Int64
	errors atomic.Int64
}

// Gateway fronts every upstream data provider. Each registered provider gets
// a circuit breaker; capability calls go to the first provider whose breaker
// is not open. The Gateway itself satisfies the capability contracts, so
// components never see concrete providers.
type Gateway struct {
	log zerolog.Logger

	indexers []namedIndexer
	scanners []namedScanner
	oracles  []namedOracle

	breakers map[string]*gobreaker.CircuitBreaker
	stats    map[string]*providerStats
}

// New creates an empty gateway; providers are registered during wiring.
func New(log zerolog.Logger) *Gateway {
	return &Gateway{
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		stats:    make(map[string]*providerStats),
	}
}

// RegisterIndexer adds a chain-indexer provider. Registration order is
// preference order.
func (g *Gateway) RegisterIndexer(name string, p ChainIndexer) {
	g.indexers = append(g.indexers, namedIndexer{name: name, p: p})
	g.addBreaker(name)
}

// RegisterScanner adds a security-scanner provider.
func (g *Gateway) RegisterScanner(name string, p SecurityScanner) {
	g.scanners = append(g.scanners, namedScanner{name: name, p: p})
	g.addBreaker(name)
}

// RegisterOracle adds a price-oracle provider.
func (g *Gateway) RegisterOracle(name string, p PriceOracle) {
	g.oracles = append(g.oracles, namedOracle{name: name, p: p})
	g.addBreaker(name)
}

func (g *Gateway) addBreaker(name string) {
	if _, ok := g.breakers[name]; ok {
		return
	}
	g.stats[name] = &providerStats{}
	g.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRate := 0.0
			if counts.Requests > 0 {
				failureRate = float64(counts.TotalFailures) / float64(counts.Requests)
			}
			return counts.ConsecutiveFailures >= 3 ||
				(counts.Requests >= 20 && failureRate > 0.5)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().
				Str("component", "gateway").
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("gateway: breaker state change")
		},
	})
	g.log.Info().Str("component", "gateway").Str("provider", name).Msg("gateway: provider registered")
}

// invalidResult smuggles an invalid-input failure through the breaker as a
// success so caller bugs never trip a provider open.
type invalidResult struct{ err error }

func (g *Gateway) execute(name, op string, fn func() (any, error)) (any, error) {
	cb := g.breakers[name]
	st := g.stats[name]
	st.calls.Add(1)

	out, err := cb.Execute(func() (any, error) {
		v, err := fn()
		if err != nil && ClassOf(err) == ClassInvalidInput {
			return invalidResult{err: err}, nil
		}
		return v, err
	})
	if err != nil {
		st.errors.Add(1)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ProviderError{Provider: name, Op: op, Class: ClassUnavailable, Err: err}
		}
		return nil, err
	}
	if iv, ok := out.(invalidResult); ok {
		st.errors.Add(1)
		return nil, iv.err
	}
	return out, nil
}

func (g *Gateway) pickIndexer() (namedIndexer, error) {
	for _, ni := range g.indexers {
		if g.breakers[ni.name].State() != gobreaker.StateOpen {
			return ni, nil
		}
	}
	return namedIndexer{}, g.noProvider("indexer")
}

func (g *Gateway) pickScanner() (namedScanner, error) {
	for _, ns := range g.scanners {
		if g.breakers[ns.name].State() != gobreaker.StateOpen {
			return ns, nil
		}
	}
	return namedScanner{}, g.noProvider("security-scanner")
}

func (g *Gateway) pickOracle() (namedOracle, error) {
	for _, no := range g.oracles {
		if g.breakers[no.name].State() != gobreaker.StateOpen {
			return no, nil
		}
	}
	return namedOracle{}, g.noProvider("price-oracle")
}

func (g *Gateway) noProvider(capability string) error {
	return &ProviderError{
		Provider: capability,
		Op:       "select",
		Class:    ClassUnavailable,
		Err:      errors.New("no healthy provider registered"),
	}
}

// ---------------------------------------------------------------------------
// ChainIndexer capability
// ---------------------------------------------------------------------------

func (g *Gateway) RecentTransactions(ctx context.Context, chain chains.Chain, limit int) ([]Transaction, error) {
	ni, err := g.pickIndexer()
	if err != nil {
		return nil, err
	}
	out, err := g.execute(ni.name, "recent_transactions", func() (any, error) {
		return ni.p.RecentTransactions(ctx, chain, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Transaction), nil
}

func (g *Gateway) WalletTransfers(ctx context.Context, address string, chain chains.Chain) ([]Transfer, error) {
	ni, err := g.pickIndexer()
	if err != nil {
		return nil, err
	}
	out, err := g.execute(ni.name, "wallet_transfers", func() (any, error) {
		return ni.p.WalletTransfers(ctx, address, chain)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Transfer), nil
}

func (g *Gateway) TokenHolders(ctx context.Context, token string, chain chains.Chain, limit int) ([]Holder, error) {
	ni, err := g.pickIndexer()
	if err != nil {
		return nil, err
	}
	out, err := g.execute(ni.name, "token_holders", func() (any, error) {
		return ni.p.TokenHolders(ctx, token, chain, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Holder), nil
}

func (g *Gateway) ContractBytecode(ctx context.Context, address string, chain chains.Chain) (string, error) {
	ni, err := g.pickIndexer()
	if err != nil {
		return "", err
	}
	out, err := g.execute(ni.name, "contract_bytecode", func() (any, error) {
		return ni.p.ContractBytecode(ctx, address, chain)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *Gateway) SimulateCall(ctx context.Context, chain chains.Chain, call SimCall) (*SimOutcome, error) {
	ni, err := g.pickIndexer()
	if err != nil {
		return nil, err
	}
	out, err := g.execute(ni.name, "simulate_call", func() (any, error) {
		return ni.p.SimulateCall(ctx, chain, call)
	})
	if err != nil {
		return nil, err
	}
	return out.(*SimOutcome), nil
}

// ---------------------------------------------------------------------------
// SecurityScanner capability
// ---------------------------------------------------------------------------

func (g *Gateway) AddressSecurity(ctx context.Context, address string, chain chains.Chain) (*AddressSecurity, error) {
	ns, err := g.pickScanner()
	if err != nil {
		return nil, err
	}
	out, err := g.execute(ns.name, "address_security", func() (any, error) {
		return ns.p.AddressSecurity(ctx, address, chain)
	})
	if err != nil {
		return nil, err
	}
	return out.(*AddressSecurity), nil
}

func (g *Gateway) TokenSecurity(ctx context.Context, token string, chain chains.Chain) (*TokenSecurity, error) {
	ns, err := g.pickScanner()
	if err != nil {
		return nil, err
	}
	out, err := g.execute(ns.name, "token_security", func() (any, error) {
		return ns.p.TokenSecurity(ctx, token, chain)
	})
	if err != nil {
		return nil, err
	}
	return out.(*TokenSecurity), nil
}

// ---------------------------------------------------------------------------
// PriceOracle capability
// ---------------------------------------------------------------------------

func (g *Gateway) TokenPrice(ctx context.Context, token string, chain chains.Chain) (decimal.Decimal, error) {
	no, err := g.pickOracle()
	if err != nil {
		return decimal.Zero, err
	}
	out, err := g.execute(no.name, "token_price", func() (any, error) {
		return no.p.TokenPrice(ctx, token, chain)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.(decimal.Decimal), nil
}

func (g *Gateway) TokenLiquidity(ctx context.Context, token string, chain chains.Chain) (*LiquidityInfo, error) {
	no, err := g.pickOracle()
	if err != nil {
		return nil, err
	}
	out, err := g.execute(no.name, "token_liquidity", func() (any, error) {
		return no.p.TokenLiquidity(ctx, token, chain)
	})
	if err != nil {
		return nil, err
	}
	return out.(*LiquidityInfo), nil
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// ProviderStatus summarizes one provider's health.
type ProviderStatus struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Calls   int64  `json:"calls"`
	Errors  int64  `json:"errors"`
	Tripped bool   `json:"tripped"`
}

// Stats returns per-provider call counts and breaker states.
func (g *Gateway) Stats() map[string]ProviderStatus {
	out := make(map[string]ProviderStatus, len(g.breakers))
	for name, cb := range g.breakers {
		st := g.stats[name]
		state := cb.State()
		out[name] = ProviderStatus{
			Name:    name,
			State:   state.String(),
			Calls:   st.calls.Load(),
			Errors:  st.errors.Load(),
			Tripped: state == gobreaker.StateOpen,
		}
	}
	return out
}

var (
	_ ChainIndexer    = (*Gateway)(nil)
	_ SecurityScanner = (*Gateway)(nil)
	_ PriceOracle     = (*Gateway)(nil)
)
