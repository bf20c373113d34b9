package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warden-labs/warden/internal/cache"
	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/gateway"
	"github.com/warden-labs/warden/internal/graph"
	"github.com/warden-labs/warden/internal/honeypot"
	"github.com/warden-labs/warden/internal/performance"
	"github.com/warden-labs/warden/internal/store"
)

// Run executes one discovery scan: seed, analyze concurrently, rank, persist.
// Per-candidate failures are counted and skipped, never fatal. On context
// cancellation the partial result is returned alongside the context error;
// everything analyzed before the cut stays valid.
func (s *Scanner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanActive
	}
	defer s.running.Store(false)
	s.runs.Add(1)

	minScore := s.cfg.MinScore
	if opts.MinScore > 0 {
		minScore = opts.MinScore
	}
	limit := s.cfg.MaxResults
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	runChains := s.cfg.Chains
	if len(opts.Chains) > 0 {
		runChains = opts.Chains
	}

	res := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Chains:    runChains,
	}
	log := s.log.With().Str("run_id", res.RunID).Logger()
	log.Info().
		Str("chains", chainList(runChains)).
		Float64("min_score", minScore).
		Bool("force_refresh", opts.ForceRefresh).
		Msg("discovery: scan started")

	runRow, err := s.db.StartScanRun(res.StartedAt, chainList(runChains))
	if err != nil {
		log.Warn().Err(err).Msg("discovery: scan run row not recorded")
	}

	candidates := s.seedCandidates(ctx, runChains)
	res.Candidates = len(candidates)

	// The copycat detector is scoped to the run so every candidate is
	// compared against the same batch.
	detector := graph.NewCopycatDetector(s.cfg.Copycat, log)

	var (
		mu        sync.Mutex
		wallets   []DiscoveredWallet
		moonshots []store.MoonshotRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			w, moons, err := s.analyzeCandidate(gctx, cand, detector, opts.ForceRefresh)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Errors++
				s.errored.Add(1)
				log.Debug().Err(err).Str("wallet", cand.Address).
					Msg("discovery: candidate analysis failed")
			case w != nil:
				res.Analyzed++
				wallets = append(wallets, *w)
				moonshots = append(moonshots, moons...)
			}
			return nil
		})
	}
	// Workers never return errors, so Wait only joins them.
	_ = g.Wait()

	qualified := make([]DiscoveredWallet, 0, len(wallets))
	for _, w := range wallets {
		if w.Qualifiable() && w.Score >= minScore {
			qualified = append(qualified, w)
		}
	}
	sort.Slice(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.TotalVolumeUSD.Equal(b.TotalVolumeUSD) {
			return a.TotalVolumeUSD.GreaterThan(b.TotalVolumeUSD)
		}
		return a.Address < b.Address
	})
	if len(qualified) > limit {
		qualified = qualified[:limit]
	}

	res.Wallets = qualified
	res.Qualified = len(qualified)
	res.Rejected = res.Candidates - res.Qualified - res.Errors
	if res.Rejected < 0 {
		res.Rejected = 0
	}
	res.FinishedAt = time.Now().UTC()
	s.qualified.Add(int64(res.Qualified))
	s.rejected.Add(int64(res.Rejected))

	for i := range qualified {
		s.persistTrader(&qualified[i], log)
	}
	res.Moonshots = buildLeaderboard(moonshots)
	s.publishMoonshots(res.Moonshots)

	if runRow != 0 {
		if err := s.db.FinishScanRun(runRow, res.FinishedAt, res.Candidates,
			res.Qualified, res.Rejected, res.Errors); err != nil {
			log.Warn().Err(err).Msg("discovery: scan run row not finalized")
		}
	}

	log.Info().
		Int("candidates", res.Candidates).
		Int("analyzed", res.Analyzed).
		Int("qualified", res.Qualified).
		Int("rejected", res.Rejected).
		Int("errors", res.Errors).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("discovery: scan finished")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// AnalyzeWallet runs the full pipeline for one wallet outside a scan run.
// The copycat detector sees only this wallet, so mirror trading cannot
// surface here; everything else matches Run.
func (s *Scanner) AnalyzeWallet(ctx context.Context, address string, chain chains.Chain) (*DiscoveredWallet, error) {
	if !chains.ValidAddress(address, chain) {
		return nil, fmt.Errorf("wallet %q on %s: %w", address, chain, chains.ErrInvalidAddress)
	}
	detector := graph.NewCopycatDetector(s.cfg.Copycat, s.log)
	w, _, err := s.analyzeCandidate(ctx, Candidate{Address: address, Chain: chain}, detector, false)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, performance.ErrInsufficientData
	}
	return w, nil
}

// analyzeCandidate scores one wallet: cached profile short-circuit, realized
// performance, security gates, then graph analysis. A nil wallet with a nil
// error means the wallet had no measurable history. Moonshot candidates come
// back only from fresh, ungated analyses.
func (s *Scanner) analyzeCandidate(ctx context.Context, cand Candidate, detector *graph.CopycatDetector, force bool) (*DiscoveredWallet, []store.MoonshotRecord, error) {
	key := cache.WalletKey(cand.Address, cand.Chain)
	if !force {
		var cached DiscoveredWallet
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			s.cacheHits.Add(1)
			s.analyzed.Add(1)
			return &cached, nil, nil
		}
	}

	transfers, err := s.src.WalletTransfers(ctx, cand.Address, cand.Chain)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet transfers for %s: %w", cand.Address, err)
	}

	metrics, err := s.perf.Analyze(cand.Address, transfers)
	if err != nil {
		if errors.Is(err, performance.ErrInsufficientData) {
			s.insufficient.Add(1)
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("performance for %s: %w", cand.Address, err)
	}

	now := time.Now().UTC()
	w := &DiscoveredWallet{
		Address:        cand.Address,
		Chain:          cand.Chain,
		WinRate:        metrics.WinRate,
		AvgROI:         metrics.AvgROI,
		MaxMultiplier:  metrics.MaxMultiplier,
		TotalVolumeUSD: metrics.TotalVolumeUSD,
		TradeCount:     metrics.TotalTrades,
		RecentActivity: metrics.RecentActivityCount,
		DiscoveredAt:   now,
	}
	if best := metrics.BestTrade(); best != nil {
		w.SampleToken = best.Token
		w.SampleSymbol = best.TokenSymbol
		w.SampleMultiplier = best.ROI
	}

	if s.applyGates(ctx, w, force) {
		// Gated wallets skip graph work; their score stays zero.
		s.analyzed.Add(1)
		s.cacheProfile(ctx, key, w)
		return w, nil, nil
	}

	wg, err := s.graphs.BuildFromTransfers(ctx, cand.Address, cand.Chain, transfers)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet graph for %s: %w", cand.Address, err)
	}
	sum := wg.Summarize(cand.Address)
	w.Centrality = sum.Centrality
	w.ComponentSize = sum.ComponentSize
	w.FundingSources = sum.InDegree
	if sum.DevWallet {
		w.flag(FlagDevWallet)
	}

	match, copied := detector.Observe(cand.Address, tradeBuckets(metrics))
	overlap := 0
	if copied {
		w.flag(FlagCopycat)
		overlap = match.Overlap
	}

	verdict := graph.ScoreInsider(insiderEvidence(metrics, wg, sum, overlap))
	w.InsiderScore = verdict.Score
	w.InsiderLevel = verdict.Level

	score := baseScore(metrics) + graphAdjustment(sum.Centrality, copied)
	if score < 0 {
		score = 0
	}
	w.Score = score
	w.Classification = Classify(score)

	s.analyzed.Add(1)
	s.cacheProfile(ctx, key, w)

	var moons []store.MoonshotRecord
	if w.Qualifiable() {
		moons = moonshotCandidates(w, metrics)
	}
	return w, moons, nil
}

// applyGates runs the security gates in order: address blacklist and risk,
// then honeypot verdict and liquidity floor on the wallet's flagship token.
// Returns true when the wallet is gated out. An unverifiable wallet or
// flagship token is treated as hostile.
func (s *Scanner) applyGates(ctx context.Context, w *DiscoveredWallet, force bool) bool {
	sec, err := s.src.AddressSecurity(ctx, w.Address, w.Chain)
	if err != nil {
		s.log.Debug().Err(err).Str("wallet", w.Address).
			Msg("discovery: address security unavailable")
		w.flag(FlagSecurityRisk)
		return true
	}
	if sec.Blacklisted || sec.RiskLevel == gateway.RiskHigh {
		w.flag(FlagSecurityRisk)
		return true
	}

	if w.SampleToken == "" {
		return false
	}
	res, err := s.tokenVerdict(ctx, w.SampleToken, w.Chain, force)
	if err != nil {
		w.flag(FlagHoneypotDetected)
		return true
	}
	if res.Honeypot {
		w.flag(FlagHoneypotDetected)
		return true
	}
	if res.LiquidityTier == honeypot.TierSevere {
		w.flag(FlagLiquidityRisk)
		return true
	}
	return false
}

// tokenVerdict returns the cached verdict for a token or runs a fresh check.
// Fresh verdicts are cached briefly and appended to the audit trail.
func (s *Scanner) tokenVerdict(ctx context.Context, token string, chain chains.Chain, force bool) (*honeypot.Result, error) {
	key := cache.TokenKey(token, chain)
	if !force {
		var cached honeypot.Result
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			s.cacheHits.Add(1)
			return &cached, nil
		}
	}
	res, err := s.checker.Check(ctx, token, chain)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, res, s.cfg.TokenTTL); err != nil {
		s.log.Debug().Err(err).Str("token", token).
			Msg("discovery: verdict cache write failed")
	}
	if err := s.db.InsertTokenCheck(store.TokenCheckRecord{
		Token:     token,
		Chain:     chain,
		Honeypot:  res.Honeypot,
		RiskScore: res.RiskScore,
		Factors:   res.Factors,
		CheckedAt: res.CheckedAt,
	}); err != nil {
		s.log.Warn().Err(err).Str("token", token).
			Msg("discovery: token check persist failed")
	}
	return res, nil
}

func (s *Scanner) cacheProfile(ctx context.Context, key string, w *DiscoveredWallet) {
	if err := s.cache.Set(ctx, key, w, s.cfg.WalletTTL); err != nil {
		s.log.Debug().Err(err).Str("wallet", w.Address).
			Msg("discovery: profile cache write failed")
	}
}

func (s *Scanner) persistTrader(w *DiscoveredWallet, log zerolog.Logger) {
	rec := store.TraderRecord{
		Address:        w.Address,
		Chain:          w.Chain,
		Score:          w.Score,
		WinRate:        w.WinRate,
		AvgROI:         w.AvgROI,
		MaxMultiplier:  w.MaxMultiplier,
		TotalVolumeUSD: w.TotalVolumeUSD.InexactFloat64(),
		TradeCount:     w.TradeCount,
		Classification: w.Classification,
		Flags:          w.RiskFlags,
		SampleToken:    w.SampleToken,
		FirstSeen:      w.DiscoveredAt,
		LastScored:     w.DiscoveredAt,
	}
	if err := s.db.UpsertTrader(rec); err != nil {
		log.Warn().Err(err).Str("wallet", w.Address).
			Msg("discovery: trader persist failed")
	}
}

// tradeBuckets projects a wallet's realized trades into token-hour buckets
// for copycat comparison.
func tradeBuckets(m *performance.WalletMetrics) map[string]bool {
	buckets := make(map[string]bool, len(m.Trades))
	for _, t := range m.Trades {
		buckets[graph.BucketKey(t.Token, t.BoughtAt)] = true
	}
	return buckets
}

// insiderEvidence maps what the pipeline already measured onto insider
// evidence. Early entries are proxied by realized multipliers: a 10x exit
// usually means a pre-pump entry, a 100x exit almost always does.
func insiderEvidence(m *performance.WalletMetrics, wg *graph.WalletGraph, sum graph.Summary, clusterOverlap int) graph.InsiderEvidence {
	ev := graph.InsiderEvidence{ClusterTrades: clusterOverlap}
	for _, conn := range wg.TopConnections(sum.Wallet, 0) {
		if conn.IsCEX {
			continue
		}
		if wg.IsLikelyDev(conn.Address) {
			ev.DevInteractions++
		}
	}
	for _, f := range sum.FundingSources {
		if f.IsCEX {
			continue
		}
		if wg.IsLikelyDev(f.Address) {
			ev.FreshDeployerInflows++
		}
	}
	for _, t := range m.Trades {
		if t.ROI >= 10 {
			ev.EarlyBuys++
		}
		if t.ROI >= 100 {
			ev.EarlyHighMultipliers++
		}
	}
	return ev
}
