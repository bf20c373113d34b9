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
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/cache"
	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/config"
	"github.com/warden-labs/warden/internal/gateway"
	"github.com/warden-labs/warden/internal/honeypot"
	"github.com/warden-labs/warden/internal/keyring"
	"github.com/warden-labs/warden/internal/observability"
	"github.com/warden-labs/warden/internal/store"
)

// checkResponse is a verdict plus where it came from: "fresh" for a full
// simulation, "cache" for a TTL'd clean verdict, "registry" for a standing
// conviction.
type checkResponse struct {
	*honeypot.Result
	Source string `json:"source"`
}

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub providers (demo fixtures, no upstream calls)")
	snapshotPath := flag.String("snapshot", "data/honeypot_registry.gob", "Path to the conviction registry snapshot")
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
	setupLogging("warden-gate", cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("WARDEN Gate - Token Safety")
	log.Info().Msg("CONTRACT -> LIQUIDITY -> HOLDERS -> SIMULATE")
	log.Info().Msg("=============================================")

	if usingDefaults {
		log.Warn().Str("path", *configPath).Msg("Config file not found, running on defaults")
	}
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("stub_mode", *stubMode).
		Int("risk_threshold", cfg.Safety.RiskThreshold).
		Float64("liquidity_severe_usd", cfg.Safety.LiquiditySevereUSD).
		Str("snapshot", *snapshotPath).
		Msg("Configuration loaded")

	// 4. Open the store.
	st, err := store.Open(cfg.Store.Path, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
	}
	defer st.Close()

	// 5. Cache for clean verdicts. Convictions never go through it; the
	// registry holds those forever.
	var verdictCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		rc, cacheErr := cache.NewRedisCache(cfg.Cache.RedisAddr, log.Logger)
		if cacheErr != nil {
			log.Warn().Err(cacheErr).Str("addr", cfg.Cache.RedisAddr).
				Msg("Redis unavailable, falling back to in-memory cache")
			verdictCache = cache.NewMemoryCache()
		} else {
			verdictCache = rc
		}
	} else {
		verdictCache = cache.NewMemoryCache()
		log.Info().Msg("Cache: in-memory (no redis_addr configured)")
	}
	tokenTTL := time.Duration(cfg.Cache.TokenTTLS) * time.Second

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
			Str("security", cfg.Providers.Security.Name).
			Str("oracle", cfg.Providers.Oracle.Name).
			Msg("Providers: LIVE")
	}

	// 7. Simulator and conviction registry. The snapshot restores every
	// conviction from previous lives of this process.
	sim := honeypot.NewSimulator(gw, honeypot.Config{
		Threshold:            cfg.Safety.RiskThreshold,
		LiquiditySevereUSD:   cfg.Safety.LiquiditySevereUSD,
		LiquidityModerateUSD: cfg.Safety.LiquidityModerateUSD,
		LiquidityMildUSD:     cfg.Safety.LiquidityMildUSD,
		TopHolderPct:         cfg.Safety.TopHolderPct,
		TopFivePct:           cfg.Safety.TopFivePct,
	}, log.Logger)

	reg := honeypot.NewRegistry(honeypot.DefaultRegistryConfig(), log.Logger)
	if err := reg.LoadSnapshot(*snapshotPath); err != nil {
		log.Warn().Err(err).Str("path", *snapshotPath).
			Msg("Failed to load registry snapshot, starting fresh")
	}

	// One durable alert per distinct convicted token. Repeat convictions
	// bump HitCount past 1 and stay quiet.
	reg.SetOnConviction(func(det honeypot.Detection) {
		if det.HitCount != 1 {
			return
		}
		severity := "warn"
		if det.Critical {
			severity = "critical"
		}
		alert := store.AlertRecord{
			Kind:      "honeypot_conviction",
			Severity:  severity,
			Title:     "honeypot convicted: " + det.Token,
			Detail:    strings.Join(det.Tags, ", "),
			Token:     det.Token,
			Chain:     string(det.Chain),
			CreatedAt: time.Now().UTC(),
		}
		if err := st.InsertAlert(alert); err != nil {
			log.Warn().Err(err).Str("token", det.Token).Msg("Failed to persist conviction alert")
		}
	})

	// 8. Metrics and health.
	metrics := observability.WardenMetrics()
	checksTotal := metrics.GetCounter("warden_token_checks_total")
	honeypotsTotal := metrics.GetCounter("warden_honeypots_detected_total")
	checkLatency := metrics.GetHistogram("warden_token_check_ms")

	health := observability.NewHealthMonitor(30 * time.Second)
	health.Register("store", observability.PingCheck(func(context.Context) error { return st.Ping() }))
	health.Register("providers", providerCheck(gw))
	health.Register("keyring", keyringCheck(keys))

	// 9. Setup context and signals.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 10. Start services.
	var wg sync.WaitGroup

	// Registry snapshots; closing the channel takes the final one.
	snapStopCh := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.SnapshotLoop(*snapshotPath, 5*time.Minute, snapStopCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Start(ctx)
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
				metrics.GetGauge("warden_known_rugs").Set(float64(reg.Stats().Known))
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
			case <-statsTicker.C:
				ss := sim.Stats()
				rs := reg.Stats()
				cs := verdictCache.Stats()
				log.Info().
					Int64("checks", ss.Checks).
					Int64("honeypots", ss.Honeypots).
					Int64("criticals", ss.Criticals).
					Int64("degraded", ss.Degraded).
					Int("known_rugs", rs.Known).
					Int64("clone_hits", rs.CloneHits).
					Int64("cache_hits", cs.Hits).
					Int64("cache_misses", cs.Misses).
					Msg("[STATS]")
			}
		}
	}()

	// HTTP check/health/stats endpoint.
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()

		mux.Handle("/healthz", health.Handler())
		mux.Handle("/metrics", observability.NewPrometheusExporter(metrics))

		mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			var req struct {
				Token string `json:"token"`
				Chain string `json:"chain"`
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

			start := time.Now()
			checksTotal.Inc()

			// A conviction never expires; serve it without touching a
			// provider.
			if det, ok := reg.Known(req.Token, chain); ok {
				honeypotsTotal.Inc()
				checkLatency.Observe(float64(time.Since(start).Milliseconds()))
				writeJSON(w, checkResponse{Result: resultFromDetection(det), Source: "registry"})
				return
			}

			// Clean verdicts are reused within their TTL.
			var cached honeypot.Result
			if hit, cacheErr := verdictCache.Get(r.Context(), cache.TokenKey(req.Token, chain), &cached); cacheErr == nil && hit {
				checkLatency.Observe(float64(time.Since(start).Milliseconds()))
				writeJSON(w, checkResponse{Result: &cached, Source: "cache"})
				return
			}

			res, err := sim.Check(r.Context(), req.Token, chain)
			if err != nil {
				if errors.Is(err, chains.ErrInvalidAddress) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}

			// A clean token whose bytecode matches a convicted rug is a
			// redeployed clone. Convict it before it fires.
			if !res.Honeypot {
				if orig, clone := reg.MatchesKnownRug(res.Fingerprint); clone {
					res.Honeypot = true
					res.Critical = true
					if orig.RiskScore > res.RiskScore {
						res.RiskScore = orig.RiskScore
					}
					res.Factors = append(res.Factors, "bytecode matches convicted token "+orig.Token)
					res.Tags = append(res.Tags, "cloned_bytecode")
				}
			}

			reg.Record(res)

			if res.Honeypot {
				honeypotsTotal.Inc()
			} else if setErr := verdictCache.Set(r.Context(), cache.TokenKey(req.Token, chain), res, tokenTTL); setErr != nil {
				log.Debug().Err(setErr).Str("token", req.Token).Msg("Verdict cache write failed")
			}

			if dbErr := st.InsertTokenCheck(store.TokenCheckRecord{
				Token:     req.Token,
				Chain:     chain,
				Honeypot:  res.Honeypot,
				RiskScore: res.RiskScore,
				Factors:   res.Factors,
				CheckedAt: res.CheckedAt,
			}); dbErr != nil {
				log.Warn().Err(dbErr).Str("token", req.Token).Msg("Token check persist failed")
			}

			checkLatency.Observe(float64(time.Since(start).Milliseconds()))
			writeJSON(w, checkResponse{Result: res, Source: "fresh"})
		})

		mux.HandleFunc("/recent", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, reg.Recent(20))
		})

		mux.HandleFunc("/alerts", func(w http.ResponseWriter, _ *http.Request) {
			alerts, err := st.RecentAlerts(50)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, alerts)
		})

		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{
				"instance":  cfg.General.InstanceID,
				"simulator": sim.Stats(),
				"registry":  reg.Stats(),
				"cache":     verdictCache.Stats(),
				"providers": gw.Stats(),
				"keyring":   keys.Stats(),
				"store":     st.Stats(),
				"snapshot":  honeypot.GetSnapshotInfo(*snapshotPath),
			})
		})

		server := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Gate HTTP server started (check + health + stats)")

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

	log.Info().Msg("WARDEN Gate - Running")
	log.Info().Msg("Pipeline: Contract -> Liquidity -> Holders -> Buy/Transfer/Sell Simulation -> Verdict")
	log.Info().Int("known_rugs", reg.Stats().Known).Msg("Serving token safety checks")

	// 11. Block until shutdown.
	<-ctx.Done()

	// 12. Graceful shutdown. Closing the snapshot loop persists the registry
	// one last time.
	log.Info().Msg("Shutting down Gate...")
	close(snapStopCh)
	wg.Wait()

	ss := sim.Stats()
	rs := reg.Stats()
	log.Info().
		Int64("checks", ss.Checks).
		Int64("honeypots", ss.Honeypots).
		Int64("criticals", ss.Criticals).
		Int64("degraded", ss.Degraded).
		Int("known_rugs", rs.Known).
		Int64("clone_hits", rs.CloneHits).
		Msg("WARDEN Gate - Final Statistics")
	log.Info().Msg("WARDEN Gate - Shutdown complete")
}

// resultFromDetection shapes a standing conviction as a check result.
func resultFromDetection(det *honeypot.Detection) *honeypot.Result {
	return &honeypot.Result{
		Token:     det.Token,
		Chain:     det.Chain,
		Honeypot:  true,
		RiskScore: det.RiskScore,
		Critical:  det.Critical,
		Factors: []string{fmt.Sprintf("convicted %s, %d hit(s) since",
			det.FirstSeen.UTC().Format(time.RFC3339), det.HitCount)},
		Tags:          det.Tags,
		LiquidityUSD:  decimal.Zero,
		LiquidityTier: honeypot.TierUnknown,
		Fingerprint:   det.Fingerprint,
		CheckedAt:     time.Now().UTC(),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// registerStubProviders wires the in-memory providers, preloaded with the
// demo fixtures so a keyless install still serves real-shaped verdicts.
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
// under traffic.
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
