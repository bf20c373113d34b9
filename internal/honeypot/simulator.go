package honeypot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/gateway"
)

// ---------------------------------------------------------------------------
// Honeypot simulator — four independent risk probes, weighted verdict
// ---------------------------------------------------------------------------

// Sub-check weights. The verdict trips at cfg.Threshold or on any critical
// factor, whichever comes first.
const (
	weightProxy        = 2
	weightUnverified   = 1
	weightAdminFn      = 1
	adminFnCap         = 3
	weightLiqSevere    = 4
	weightLiqModerate  = 2
	weightLiqMild      = 1
	weightTopHolder    = 3
	weightTopFive      = 2
	weightBuyFail      = 2
	weightTransferFail = 2
	weightSellFail     = 5
	weightDegraded     = 2
	weightNoBytecode   = 2
)

// Liquidity tiers, worst to best. TierUnknown means the liquidity probe
// never completed.
const (
	TierSevere  = "severe"
	TierLow     = "low"
	TierThin    = "thin"
	TierHealthy = "healthy"
	TierUnknown = "unknown"
)

// Provider is the slice of the data gateway the simulator needs.
type Provider interface {
	ContractBytecode(ctx context.Context, address string, chain chains.Chain) (string, error)
	TokenSecurity(ctx context.Context, token string, chain chains.Chain) (*gateway.TokenSecurity, error)
	TokenLiquidity(ctx context.Context, token string, chain chains.Chain) (*gateway.LiquidityInfo, error)
	TokenHolders(ctx context.Context, token string, chain chains.Chain, limit int) ([]gateway.Holder, error)
	SimulateCall(ctx context.Context, chain chains.Chain, call gateway.SimCall) (*gateway.SimOutcome, error)
}

// Config tunes the verdict thresholds.
type Config struct {
	Threshold            int
	LiquiditySevereUSD   float64
	LiquidityModerateUSD float64
	LiquidityMildUSD     float64
	TopHolderPct         float64
	TopFivePct           float64
}

// DefaultConfig matches the production gate settings.
func DefaultConfig() Config {
	return Config{
		Threshold:            7,
		LiquiditySevereUSD:   1_000,
		LiquidityModerateUSD: 10_000,
		LiquidityMildUSD:     50_000,
		TopHolderPct:         50,
		TopFivePct:           80,
	}
}

// Result is the verdict for one token.
type Result struct {
	Token         string          `json:"token"`
	Chain         chains.Chain    `json:"chain"`
	Honeypot      bool            `json:"is_honeypot"`
	RiskScore     int             `json:"risk_score"`
	Critical      bool            `json:"critical"`
	Degraded      bool            `json:"degraded,omitempty"`
	Factors       []string        `json:"factors,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	LiquidityUSD  decimal.Decimal `json:"liquidity_usd"`
	LiquidityTier string          `json:"liquidity_tier"`
	Fingerprint   string          `json:"fingerprint,omitempty"`
	CheckedAt     time.Time       `json:"checked_at"`
}

// Safe reports a clean verdict from a fully completed run. A degraded run is
// never safe, whatever its score.
func (r *Result) Safe() bool {
	return !r.Honeypot && !r.Degraded
}

// Stats counts simulator activity.
type Stats struct {
	Checks    int64 `json:"checks"`
	Honeypots int64 `json:"honeypots"`
	Criticals int64 `json:"criticals"`
	Degraded  int64 `json:"degraded"`
}

// Simulator probes a token with four independent checks: contract shape,
// liquidity depth, holder concentration and simulated trading. Each check
// contributes weighted risk; provider failures degrade that check to a
// conservative contribution instead of aborting the run.
type Simulator struct {
	provider Provider
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	checks    atomic.Int64
	honeypots atomic.Int64
	criticals atomic.Int64
	degraded  atomic.Int64
}

func NewSimulator(provider Provider, cfg Config, log zerolog.Logger) *Simulator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 7
	}
	return &Simulator{provider: provider, cfg: cfg, log: log, now: time.Now}
}

// Check runs all four probes against the token and returns the verdict.
// Only malformed input or a cancelled context produce an error; provider
// trouble degrades into the verdict itself.
func (s *Simulator) Check(ctx context.Context, token string, chain chains.Chain) (*Result, error) {
	if !chains.ValidAddress(token, chain) {
		return nil, fmt.Errorf("token %q on %s: %w", token, chain, chains.ErrInvalidAddress)
	}

	r := &Result{
		Token:         token,
		Chain:         chain,
		LiquidityUSD:  decimal.Zero,
		LiquidityTier: TierUnknown,
		CheckedAt:     s.now().UTC(),
	}

	s.checkContract(ctx, r)
	s.checkLiquidity(ctx, r)
	s.checkHolders(ctx, r)
	s.checkTrading(ctx, r)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.Honeypot = r.Critical || r.RiskScore >= s.cfg.Threshold

	s.checks.Add(1)
	if r.Honeypot {
		s.honeypots.Add(1)
	}
	if r.Critical {
		s.criticals.Add(1)
	}
	if r.Degraded {
		s.degraded.Add(1)
	}
	s.log.Debug().Str("component", "honeypot").
		Str("token", token).
		Str("chain", string(chain)).
		Int("risk_score", r.RiskScore).
		Bool("is_honeypot", r.Honeypot).
		Bool("degraded", r.Degraded).
		Msg("honeypot: token checked")
	return r, nil
}

func (r *Result) add(points int, factor string) {
	r.RiskScore += points
	r.Factors = append(r.Factors, factor)
}

func (r *Result) degrade(points int, factor string) {
	r.Degraded = true
	r.add(points, factor)
}

func (r *Result) tag(t string) {
	for _, existing := range r.Tags {
		if existing == t {
			return
		}
	}
	r.Tags = append(r.Tags, t)
}

// checkContract inspects bytecode and the scanner's static analysis. Admin
// levers from either source share one capped contribution.
func (s *Simulator) checkContract(ctx context.Context, r *Result) {
	code, err := s.provider.ContractBytecode(ctx, r.Token, r.Chain)
	if err != nil {
		r.degrade(weightDegraded, "contract analysis unavailable")
		return
	}
	if strings.TrimPrefix(code, "0x") == "" {
		r.degrade(weightNoBytecode, "no bytecode at token address")
		return
	}
	r.Fingerprint = fingerprintBytecode(code)

	sec, err := s.provider.TokenSecurity(ctx, r.Token, r.Chain)
	if err != nil {
		r.degrade(weightDegraded, "token security data unavailable")
		return
	}
	if sec.Proxy {
		r.add(weightProxy, "proxy contract pattern")
	}
	if !sec.OpenSource {
		r.add(weightUnverified, "unverified source")
	}

	var admin []string
	seen := make(map[string]bool)
	record := func(name string) {
		if !seen[name] {
			seen[name] = true
			admin = append(admin, name)
		}
	}
	if sec.Mintable {
		record("mint")
	}
	if sec.OwnerCanChangeBalance {
		record("owner balance change")
	}
	if sec.SlippageModifiable {
		record("slippage modifiable")
	}
	if sec.TradingCooldown {
		record("trading cooldown")
	}
	if sec.AntiWhale {
		record("anti-whale limits")
	}
	lower := strings.ToLower(code)
	for _, sel := range adminSelectors {
		if strings.Contains(lower, sel.selector) {
			record(sel.name)
		}
	}
	for i, name := range admin {
		if i >= adminFnCap {
			break
		}
		r.add(weightAdminFn, "admin function: "+name)
	}
}

// checkLiquidity grades the token's pooled liquidity.
func (s *Simulator) checkLiquidity(ctx context.Context, r *Result) {
	liq, err := s.provider.TokenLiquidity(ctx, r.Token, r.Chain)
	if err != nil {
		r.degrade(weightDegraded, "liquidity data unavailable")
		return
	}
	r.LiquidityUSD = liq.LiquidityUSD
	usd := liq.LiquidityUSD.InexactFloat64()

	switch {
	case usd < s.cfg.LiquiditySevereUSD:
		r.LiquidityTier = TierSevere
		r.add(weightLiqSevere, fmt.Sprintf("severe liquidity: $%.0f", usd))
	case usd < s.cfg.LiquidityModerateUSD:
		r.LiquidityTier = TierLow
		r.add(weightLiqModerate, fmt.Sprintf("low liquidity: $%.0f", usd))
	case usd < s.cfg.LiquidityMildUSD:
		r.LiquidityTier = TierThin
		r.add(weightLiqMild, fmt.Sprintf("thin liquidity: $%.0f", usd))
	default:
		r.LiquidityTier = TierHealthy
	}
	if !liq.Locked {
		r.Factors = append(r.Factors, "liquidity unlocked")
	}
}

// checkHolders grades supply concentration from the top holder list.
func (s *Simulator) checkHolders(ctx context.Context, r *Result) {
	holders, err := s.provider.TokenHolders(ctx, r.Token, r.Chain, 10)
	if err != nil || len(holders) == 0 {
		r.degrade(weightDegraded, "holder distribution unavailable")
		return
	}

	top := holders[0].PctOfSupply
	var topFive float64
	for i, h := range holders {
		if i >= 5 {
			break
		}
		topFive += h.PctOfSupply
	}
	if top > s.cfg.TopHolderPct {
		r.add(weightTopHolder, fmt.Sprintf("top holder owns %.1f%%", top))
	}
	if topFive > s.cfg.TopFivePct {
		r.add(weightTopFive, fmt.Sprintf("top five hold %.1f%%", topFive))
	}
}

// checkTrading simulates buy, transfer and sell from ephemeral accounts.
// The sell probe only runs when the buy went through, since its failure is
// the one factor that convicts on its own.
func (s *Simulator) checkTrading(ctx context.Context, r *Result) {
	router, okRouter := chains.RouterAddress(r.Chain)
	wrapped, okWrapped := chains.WrappedNative(r.Chain)
	if !okRouter || !okWrapped {
		r.degrade(weightDegraded, fmt.Sprintf("trade simulation unsupported on %s", r.Chain))
		return
	}

	probe := probeAddress()
	receiver := probeAddress()
	amount := decimal.NewFromFloat(0.1)

	buy, err := s.provider.SimulateCall(ctx, r.Chain, gateway.SimCall{
		Action:   gateway.SimBuy,
		Router:   router,
		TokenIn:  wrapped,
		TokenOut: r.Token,
		From:     probe,
		AmountIn: amount,
	})
	if err != nil {
		r.Critical = true
		r.degrade(weightSellFail, "trade simulation unavailable")
		return
	}
	if !buy.Success {
		r.add(weightBuyFail, "buy simulation reverted: "+buy.RevertReason)
		if tag, ok := classifyRevert(buy.RevertReason); ok {
			r.tag(tag)
		}
	}

	transfer, err := s.provider.SimulateCall(ctx, r.Chain, gateway.SimCall{
		Action:   gateway.SimTransfer,
		TokenIn:  r.Token,
		From:     probe,
		To:       receiver,
		AmountIn: amount,
	})
	if err != nil {
		r.Critical = true
		r.degrade(weightSellFail, "trade simulation unavailable")
		return
	}
	if !transfer.Success {
		r.add(weightTransferFail, "transfer simulation reverted: "+transfer.RevertReason)
		if tag, ok := classifyRevert(transfer.RevertReason); ok {
			r.tag(tag)
		}
	}

	if !buy.Success {
		return
	}
	sell, err := s.provider.SimulateCall(ctx, r.Chain, gateway.SimCall{
		Action:   gateway.SimSell,
		Router:   router,
		TokenIn:  r.Token,
		TokenOut: wrapped,
		From:     probe,
		AmountIn: buy.AmountOut,
	})
	if err != nil {
		r.Critical = true
		r.degrade(weightSellFail, "trade simulation unavailable")
		return
	}
	if !sell.Success {
		r.Critical = true
		r.add(weightSellFail, "sell simulation reverted: "+sell.RevertReason)
		if tag, ok := classifyRevert(sell.RevertReason); ok {
			r.tag(tag)
		}
	}
}

// Stats returns cumulative counters.
func (s *Simulator) Stats() Stats {
	return Stats{
		Checks:    s.checks.Load(),
		Honeypots: s.honeypots.Load(),
		Criticals: s.criticals.Load(),
		Degraded:  s.degraded.Load(),
	}
}

// probeAddress generates a throwaway EVM account for simulation calls.
func probeAddress() string {
	var b [20]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0x0000000000000000000000000000000000000001"
	}
	return "0x" + hex.EncodeToString(b[:])
}
