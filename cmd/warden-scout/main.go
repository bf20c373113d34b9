package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/warden-labs/warden/internal/cache"
	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/config"
	"github.com/warden-labs/warden/internal/discovery"
	"github.com/warden-labs/warden/internal/gateway"
	"github.com/warden-labs/warden/internal/graph"
	"github.com/warden-labs/warden/internal/honeypot"
	"github.com/warden-labs/warden/internal/keyring"
	"github.com/warden-labs/warden/internal/monitor"
	"github.com/warden-labs/warden/internal/observability"
	"github.com/warden-labs/warden/internal/performance"
	"github.com/warden-labs/warden/internal/store"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub providers (demo fixtures, no upstream calls)")
	flag.Parse()

	// 2. Load configuration. A missing file is not fatal: defaults plus stub
	// providers give a working demo install out of the box.
	usingDefaults := false
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		usingDefaults = true
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging("warden-scout", cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("WARDEN Scout - Trader Discovery")
	log.Info().Msg("SEED -> GATE -> SCORE -> RANK -> WATCH")
	log.Info().Msg("=============================================")

	if usingDefaults {
		log.Warn().Str("path", *configPath).Msg("Config file not found, running on defaults")
	}
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("stub_mode", *stubMode).
		Strs("chains", cfg.Scan.Chains).
		Int("scan_interval_s", cfg.Scan.IntervalS).
		Float64("min_score", cfg.Scan.MinScore).
		Int("max_results", cfg.Scan.MaxResults).
		Bool("live_feed", cfg.Watchlist.LiveFeed).
		Msg("Configuration loaded")

	// 4. Open the store.
	st, err := store.Open(cfg.Store.Path, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
	}
	defer st.Close()

	// 5. Cache: Redis when configured, in-memory otherwise. Redis being down
	// at boot degrades to memory rather than refusing to start.
	var profileCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		rc, cacheErr := cache.NewRedisCache(cfg.Cache.RedisAddr, log.Logger)
		if cacheErr != nil {
			log.Warn().Err(cacheErr).Str("addr", cfg.Cache.RedisAddr).
				Msg("Redis unavailable, falling back to in-memory cache")
			profileCache = cache.NewMemoryCache()
		} else {
			profileCache = rc
		}
	} else {
		profileCache = cache.NewMemoryCache()
		log.Info().Msg("Cache: in-memory (no redis_addr configured)")
	}

	// 6. Key manager and data gateway.
	keys := keyring.New(keyring.Config{
		TransientCooldown: time.Duration(cfg.Keyring.TransientCooldownS) * time.Second,
		QuotaCooldown:     time.Duration(cfg.Keyring.QuotaCooldownS) * time.Second,
		MaxCooldown:       time.Duration(cfg.Keyring.MaxCooldownS) * time.Second,
	}, log.Logger)

	gw := gateway.New(log.Logger)
	credentialed := len(cfg.Providers.Indexer.APIKeys) > 0 ||
		len(cfg.Providers.Security.APIKeys) > 0 ||
		len(cfg.Providers.Oracle.APIKeys) > 0
	if *stubMode || !credentialed {
		registerStubProviders(gw, cfg)
		log.Info().Msg("Providers: STUB mode (demo fixtures, no upstream calls)")
	} else {
		registerLiveProviders(gw, keys, cfg)
		log.Info().
			Str("indexer", cfg.Providers.Indexer.Name).
			Str("security", cfg.Providers.Security.Name).
			Str("oracle", cfg.Providers.Oracle.Name).
			Msg("Providers: LIVE")
	}

	// 7. Analysis pipeline.
	sim := honeypot.NewSimulator(gw, honeypot.Config{
		Threshold:            cfg.Safety.RiskThreshold,
		LiquiditySevereUSD:   cfg.Safety.LiquiditySevereUSD,
		LiquidityModerateUSD: cfg.Safety.LiquidityModerateUSD,
		LiquidityMildUSD:     cfg.Safety.LiquidityMildUSD,
		TopHolderPct:         cfg.Safety.TopHolderPct,
		TopFivePct:           cfg.Safety.TopFivePct,
	}, log.Logger)
	perf := performance.NewAnalyzer(log.Logger)
	funding := graph.NewAnalyzer(gw, graph.Config{
		Depth:      cfg.Graph.MaxDepth,
		NodeBudget: cfg.Graph.NodeBudget,
	}, log.Logger)

	scanner := discovery.New(discovery.Config{
		BatchCap:    cfg.Scan.BatchCap,
		Concurrency: cfg.Scan.Concurrency,
		MinScore:    cfg.Scan.MinScore,
		MaxResults:  cfg.Scan.MaxResults,
		Chains:      cfg.ScanChains(),
		SeedWallets: cfg.Scan.SeedWallets,
		WalletTTL:   time.Duration(cfg.Cache.WalletTTLS) * time.Second,
		TokenTTL:    time.Duration(cfg.Cache.TokenTTLS) * time.Second,
		Copycat: graph.CopycatConfig{
			Threshold:  cfg.Graph.CopycatThreshold,
			MinOverlap: cfg.Graph.MinSharedTrades,
		},
	}, discovery.Deps{
		Source:  gw,
		Checker: sim,
		Perf:    perf,
		Graph:   funding,
		Cache:   profileCache,
		Store:   st,
	}, log.Logger)

	// 8. Watchlist monitor, writing through the batch writer.
	writer := store.NewBatchWriter(st, 200, 2*time.Second, log.Logger)

	var feed monitor.TransferFeed
	if cfg.Watchlist.LiveFeed && cfg.Providers.Indexer.WSURL != "" {
		feed = monitor.NewLiveFeed(monitor.FeedConfig{URL: cfg.Providers.Indexer.WSURL}, log.Logger)
		log.Info().Str("url", cfg.Providers.Indexer.WSURL).Msg("Live transfer feed enabled")
	}
	watch := monitor.New(monitor.Config{
		PollInterval: time.Duration(cfg.Watchlist.PollIntervalS) * time.Second,
	}, monitor.Deps{
		Source: gw,
		Roster: st,
		Sink:   writer,
		Feed:   feed,
	}, log.Logger)

	// 9. Metrics and health.
	metrics := observability.WardenMetrics()
	scanRuns := metrics.GetCounter("warden_scan_runs_total")
	candidatesTotal := metrics.GetCounter("warden_candidates_analyzed_total")
	qualifiedTotal := metrics.GetCounter("warden_wallets_qualified_total")
	activityTotal := metrics.GetCounter("warden_watch_activities_total")
	consensusTotal := metrics.GetCounter("warden_consensus_alerts_total")
	scanInProgress := metrics.GetGauge("warden_scan_in_progress")
	scanDuration := metrics.GetHistogram("warden_scan_duration_ms")

	watch.SetOnActivity(func(monitor.Activity) { activityTotal.Inc() })
	watch.SetOnConsensus(func(monitor.Consensus) { consensusTotal.Inc() })

	health := observability.NewHealthMonitor(30 * time.Second)
	health.Register("store", observability.PingCheck(func(context.Context) error { return st.Ping() }))
	health.Register("providers", providerCheck(gw))
	health.Register("keyring", keyringCheck(keys))

	// 10. Setup context and signals.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 11. Start services.
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watch.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Watchlist monitor error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Start(ctx)
	}()

	runScan := func(trigger string) {
		scanInProgress.Set(1)
		start := time.Now()
		res, err := scanner.Run(ctx, discovery.RunOptions{})
		if errors.Is(err, discovery.ErrScanActive) {
			// The active run owns the gauge; leave it.
			log.Warn().Str("trigger", trigger).Msg("Scan already in progress, skipping")
			return
		}
		scanInProgress.Set(0)
		if err != nil {
			log.Error().Err(err).Str("trigger", trigger).Msg("Scan run failed")
			return
		}

		scanRuns.Inc()
		candidatesTotal.Add(int64(res.Candidates))
		qualifiedTotal.Add(int64(res.Qualified))
		scanDuration.Observe(float64(time.Since(start).Milliseconds()))

		watchQualified(st, res)
		recordKeyUsage(st, keys)

		log.Info().
			Str("run_id", res.RunID).
			Str("trigger", trigger).
			Int("candidates", res.Candidates).
			Int("analyzed", res.Analyzed).
			Int("qualified", res.Qualified).
			Int("rejected", res.Rejected).
			Int("errors", res.Errors).
			Int("moonshots", len(res.Moonshots)).
			Dur("took", time.Since(start)).
			Msg("Scan run complete")
	}

	// Scheduled scans. The first sweep runs shortly after boot so a fresh
	// install produces results without waiting a full interval.
	scanInterval := time.Duration(cfg.Scan.IntervalS) * time.Second
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
			runScan("startup")
		}
		ticker := time.NewTicker(scanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runScan("schedule")
			}
		}
	}()

	// Gauge sync and periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		syncTicker := time.NewTicker(15 * time.Second)
		statsTicker := time.NewTicker(30 * time.Second)
		defer syncTicker.Stop()
		defer statsTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-syncTicker.C:
				syncGauges(metrics, st, keys, gw)
			case <-statsTicker.C:
				ds := scanner.Stats()
				ms := watch.Stats()
				cs := profileCache.Stats()
				log.Info().
					Int64("runs", ds.Runs).
					Int64("analyzed", ds.Analyzed).
					Int64("qualified", ds.Qualified).
					Int64("rejected", ds.Rejected).
					Int64("scan_errors", ds.Errors).
					Int64("polls", ms.Polls).
					Int64("activities", ms.Activities).
					Int64("consensus", ms.Consensus).
					Int64("watched", ms.Watched).
					Int64("cache_hits", cs.Hits).
					Int64("cache_misses", cs.Misses).
					Msg("[STATS]")
			}
		}
	}()

	// HTTP health/stats/control endpoint.
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()

		mux.Handle("/healthz", health.Handler())
		mux.Handle("/metrics", observability.NewPrometheusExporter(metrics))

		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			combined := map[string]any{
				"instance":  cfg.General.InstanceID,
				"discovery": scanner.Stats(),
				"monitor":   watch.Stats(),
				"cache":     profileCache.Stats(),
				"providers": gw.Stats(),
				"keyring":   keys.Stats(),
				"writer":    writer.Stats(),
				"store":     st.Stats(),
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(combined)
		})

		mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			if scanner.Running() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"error":"scan already in progress"}`)
				return
			}
			go runScan("manual")
			log.Info().Msg("[CONTROL] Manual scan triggered")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"status":"started"}`)
		})

		mux.HandleFunc("/traders", func(w http.ResponseWriter, _ *http.Request) {
			traders, err := st.TopTraders(cfg.Scan.MinScore, cfg.Scan.MaxResults)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(traders)
		})

		mux.HandleFunc("/alerts", func(w http.ResponseWriter, _ *http.Request) {
			alerts, err := st.RecentAlerts(50)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(alerts)
		})

		mux.HandleFunc("/runs", func(w http.ResponseWriter, _ *http.Request) {
			runs, err := st.RecentScanRuns(20)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(runs)
		})

		mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				handleWatchAdd(w, r, st)
			case http.MethodDelete:
				handleWatchRemove(w, r, st)
			default:
				http.Error(w, "POST or DELETE only", http.StatusMethodNotAllowed)
			}
		})

		server := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Scout HTTP server started (health + stats + control)")

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()

		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error().Err(srvErr).Msg("HTTP server error")
		}
	}()

	log.Info().Msg("WARDEN Scout - Running")
	log.Info().Msg("Pipeline: Seeds -> Safety Gate -> Performance -> Funding Graph -> Score -> Watchlist")
	log.Info().Dur("scan_interval", scanInterval).Msg("First scan in 5s, then on schedule")

	// 12. Block until shutdown.
	<-ctx.Done()

	log.Info().Msg("Shutting down Scout...")
	wg.Wait()

	ds := scanner.Stats()
	ms := watch.Stats()
	log.Info().
		Int64("runs", ds.Runs).
		Int64("analyzed", ds.Analyzed).
		Int64("qualified", ds.Qualified).
		Int64("rejected", ds.Rejected).
		Int64("activities", ms.Activities).
		Int64("consensus_alerts", ms.Consensus).
		Msg("WARDEN Scout - Final Statistics")
	log.Info().Msg("WARDEN Scout - Shutdown complete")
}

// registerStubProviders wires the in-memory providers, preloaded with the
// demo fixtures so a keyless install still exercises the whole pipeline.
func registerStubProviders(gw *gateway.Gateway, cfg *config.Config) {
	ix := gateway.NewStubIndexer()
	sc := gateway.NewStubScanner()
	or := gateway.NewStubOracle()
	gateway.PopulateDemo(ix, sc, or)
	gw.RegisterIndexer(cfg.Providers.Indexer.Name, ix)
	gw.RegisterScanner(cfg.Providers.Security.Name, sc)
	gw.RegisterOracle(cfg.Providers.Oracle.Name, or)
}

// registerLiveProviders wires the HTTP providers against their configured
// upstreams. In live mode every provider needs both a base URL and at least
// one API key; anything less fails fast here rather than tripping breakers
// mid-scan.
func registerLiveProviders(gw *gateway.Gateway, keys *keyring.Manager, cfg *config.Config) {
	type liveProvider struct {
		section string
		pc      config.ProviderConfig
	}
	providers := []liveProvider{
		{"providers.indexer", cfg.Providers.Indexer},
		{"providers.security", cfg.Providers.Security},
		{"providers.oracle", cfg.Providers.Oracle},
	}
	for _, p := range providers {
		if p.pc.BaseURL == "" {
			log.Fatal().Str("section", p.section).Msg("base_url required in live mode")
		}
		if len(p.pc.APIKeys) == 0 {
			log.Fatal().Str("section", p.section).Msg("api_keys required in live mode")
		}
		keys.RegisterPool(p.pc.Name, p.pc.APIKeys, p.pc.DailyLimit)
	}

	ix := cfg.Providers.Indexer
	gw.RegisterIndexer(ix.Name, gateway.NewHTTPIndexer(
		ix.Name, ix.BaseURL, keys, ix.RateLimitRPS, time.Duration(ix.TimeoutS)*time.Second, log.Logger))
	sec := cfg.Providers.Security
	gw.RegisterScanner(sec.Name, gateway.NewHTTPScanner(
		sec.Name, sec.BaseURL, keys, sec.RateLimitRPS, time.Duration(sec.TimeoutS)*time.Second, log.Logger))
	or := cfg.Providers.Oracle
	gw.RegisterOracle(or.Name, gateway.NewHTTPOracle(
		or.Name, or.BaseURL, keys, or.RateLimitRPS, time.Duration(or.TimeoutS)*time.Second, log.Logger))
}

// watchQualified pushes every ranked wallet from a finished run onto the
// watchlist. Re-discovery refreshes label and score but keeps added_at.
func watchQualified(st *store.Store, res *discovery.RunResult) {
	now := time.Now().UTC()
	added := 0
	for _, w := range res.Wallets {
		err := st.UpsertWatch(store.WatchEntry{
			Address: w.Address,
			Chain:   w.Chain,
			Label:   w.Classification,
			Score:   w.Score,
			AddedAt: now,
		})
		if err != nil {
			log.Warn().Err(err).Str("wallet", w.Address).Msg("Failed to add wallet to watchlist")
			continue
		}
		added++
	}
	if added > 0 {
		log.Info().Int("wallets", added).Msg("Watchlist updated from scan results")
	}
}

// recordKeyUsage persists the key ledger after a run. Untouched keys are
// skipped; what matters for postmortems is which credentials worked and
// which were cooling.
func recordKeyUsage(st *store.Store, keys *keyring.Manager) {
	now := time.Now().UTC()
	for _, snap := range keys.Snapshot() {
		var cooldown int64
		if snap.CooldownUntil.After(now) {
			cooldown = int64(snap.CooldownUntil.Sub(now).Seconds())
		}
		if snap.UsageCount == 0 && snap.ErrorCount == 0 && cooldown == 0 {
			continue
		}
		event := "usage"
		if cooldown > 0 {
			event = "cooling"
		}
		err := st.InsertKeyEvent(store.KeyEvent{
			Service:         snap.Service,
			KeyHash:         snap.KeyHash,
			Event:           event,
			CooldownSeconds: cooldown,
			CreatedAt:       now,
		})
		if err != nil {
			log.Warn().Err(err).Str("service", snap.Service).Msg("Failed to record key usage")
			return
		}
	}
}

// syncGauges mirrors component state into the metric registry.
func syncGauges(metrics *observability.Registry, st *store.Store, keys *keyring.Manager, gw *gateway.Gateway) {
	if n, ok := st.Stats()["watchlist"]; ok {
		metrics.GetGauge("warden_watchlist_size").Set(float64(n))
	}

	var available, cooling int
	for _, pool := range keys.Stats() {
		available += pool.Available
		cooling += pool.Cooling
	}
	metrics.GetGauge("warden_keys_available").Set(float64(available))
	metrics.GetGauge("warden_keys_cooling").Set(float64(cooling))

	var provErrors int64
	for _, ps := range gw.Stats() {
		provErrors += ps.Errors
	}
	metrics.GetGauge("warden_provider_errors").Set(float64(provErrors))
}

// providerCheck reports breaker state across the gateway.
func providerCheck(gw *gateway.Gateway) observability.HealthCheck {
	return func(context.Context) observability.ComponentHealth {
		stats := gw.Stats()
		tripped := 0
		details := make(map[string]any, len(stats))
		for name, ps := range stats {
			details[name] = ps.State
			if ps.Tripped {
				tripped++
			}
		}
		h := observability.ComponentHealth{Status: observability.StatusHealthy, Details: details}
		switch {
		case len(stats) > 0 && tripped == len(stats):
			h.Status = observability.StatusUnhealthy
			h.Message = "all provider breakers open"
		case tripped > 0:
			h.Status = observability.StatusDegraded
			h.Message = fmt.Sprintf("%d provider breaker(s) open", tripped)
		}
		return h
	}
}

// keyringCheck degrades when credential pools run dry.
func keyringCheck(keys *keyring.Manager) observability.HealthCheck {
	return func(context.Context) observability.ComponentHealth {
		h := observability.ComponentHealth{Status: observability.StatusHealthy}
		if len(keys.Stats()) == 0 {
			h.Message = "no key pools registered"
			return h
		}
		if exhausted := keys.Exhausted(); len(exhausted) > 0 {
			h.Status = observability.StatusDegraded
			h.Message = "pools exhausted: " + strings.Join(exhausted, ", ")
		}
		return h
	}
}

func handleWatchAdd(w http.ResponseWriter, r *http.Request, st *store.Store) {
	var req struct {
		Address string `json:"address"`
		Chain   string `json:"chain"`
		Label   string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	chain, err := chains.Parse(req.Chain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !chains.ValidAddress(req.Address, chain) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	entry := store.WatchEntry{
		Address: req.Address,
		Chain:   chain,
		Label:   req.Label,
		AddedAt: time.Now().UTC(),
	}
	if err := st.UpsertWatch(entry); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info().Str("wallet", req.Address).Str("chain", string(chain)).
		Msg("[CONTROL] Wallet added to watchlist")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

func handleWatchRemove(w http.ResponseWriter, r *http.Request, st *store.Store) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "address query parameter required", http.StatusBadRequest)
		return
	}
	chain, err := chains.Parse(r.URL.Query().Get("chain"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := st.RemoveWatch(address, chain); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info().Str("wallet", address).Str("chain", string(chain)).
		Msg("[CONTROL] Wallet removed from watchlist")
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"removed"}`)
}

func setupLogging(service string, general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", service).
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", service).
			Str("instance", general.InstanceID).Logger()
	}
}
