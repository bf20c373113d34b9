package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warden-labs/warden/internal/chains"
)

// Config is the root configuration structure for warden.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	HTTP      HTTPConfig      `yaml:"http"`
	Providers ProvidersConfig `yaml:"providers"`
	Keyring   KeyringConfig   `yaml:"keyring"`
	Scan      ScanConfig      `yaml:"scan"`
	Graph     GraphConfig     `yaml:"graph"`
	Safety    SafetyConfig    `yaml:"safety"`
	Cache     CacheConfig     `yaml:"cache"`
	Store     StoreConfig     `yaml:"store"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type ProvidersConfig struct {
	Indexer  ProviderConfig `yaml:"indexer"`
	Security ProviderConfig `yaml:"security"`
	Oracle   ProviderConfig `yaml:"oracle"`
}

// ProviderConfig describes one upstream data provider.
type ProviderConfig struct {
	Name         string   `yaml:"name"`
	BaseURL      string   `yaml:"base_url"`
	WSURL        string   `yaml:"ws_url"`
	APIKeys      []string `yaml:"api_keys"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
	DailyLimit   int      `yaml:"daily_limit"`
	TimeoutS     int      `yaml:"timeout_s"`
}

type KeyringConfig struct {
	TransientCooldownS int `yaml:"transient_cooldown_s"`
	QuotaCooldownS     int `yaml:"quota_cooldown_s"`
	MaxCooldownS       int `yaml:"max_cooldown_s"`
}

type ScanConfig struct {
	IntervalS   int      `yaml:"interval_s"`
	BatchCap    int      `yaml:"batch_cap"`
	Concurrency int      `yaml:"concurrency"`
	MinScore    float64  `yaml:"min_score"`
	MaxResults  int      `yaml:"max_results"`
	Chains      []string `yaml:"chains"`
	SeedWallets []string `yaml:"seed_wallets"`
}

type GraphConfig struct {
	MaxDepth         int     `yaml:"max_depth"`
	NodeBudget       int     `yaml:"node_budget"`
	CopycatThreshold float64 `yaml:"copycat_threshold"`
	MinSharedTrades  int     `yaml:"min_shared_trades"`
}

type SafetyConfig struct {
	RiskThreshold        int     `yaml:"risk_threshold"`
	LiquiditySevereUSD   float64 `yaml:"liquidity_severe_usd"`
	LiquidityModerateUSD float64 `yaml:"liquidity_moderate_usd"`
	LiquidityMildUSD     float64 `yaml:"liquidity_mild_usd"`
	TopHolderPct         float64 `yaml:"top_holder_pct"`
	TopFivePct           float64 `yaml:"top_five_pct"`
}

type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr"` // empty = in-memory cache
	WalletTTLS int    `yaml:"wallet_ttl_s"`
	TokenTTLS  int    `yaml:"token_ttl_s"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WatchlistConfig struct {
	PollIntervalS int  `yaml:"poll_interval_s"`
	LiveFeed      bool `yaml:"live_feed"`
}

// Load reads a YAML configuration file. A .env file alongside the process,
// if present, is loaded into the environment first so that ${VAR} expansion
// can see it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "warden-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8085"
	}
	if cfg.Providers.Indexer.Name == "" {
		cfg.Providers.Indexer.Name = "indexer"
	}
	if cfg.Providers.Security.Name == "" {
		cfg.Providers.Security.Name = "security"
	}
	if cfg.Providers.Oracle.Name == "" {
		cfg.Providers.Oracle.Name = "oracle"
	}
	applyProviderDefaults(&cfg.Providers.Indexer)
	applyProviderDefaults(&cfg.Providers.Security)
	applyProviderDefaults(&cfg.Providers.Oracle)
	if cfg.Keyring.TransientCooldownS == 0 {
		cfg.Keyring.TransientCooldownS = 300
	}
	if cfg.Keyring.QuotaCooldownS == 0 {
		cfg.Keyring.QuotaCooldownS = 3600
	}
	if cfg.Keyring.MaxCooldownS == 0 {
		cfg.Keyring.MaxCooldownS = 21600
	}
	if cfg.Scan.IntervalS == 0 {
		cfg.Scan.IntervalS = 3600
	}
	if cfg.Scan.BatchCap == 0 {
		cfg.Scan.BatchCap = 2000
	}
	if cfg.Scan.Concurrency == 0 {
		cfg.Scan.Concurrency = 10
	}
	if cfg.Scan.MinScore == 0 {
		cfg.Scan.MinScore = 70
	}
	if cfg.Scan.MaxResults == 0 {
		cfg.Scan.MaxResults = 50
	}
	if len(cfg.Scan.Chains) == 0 {
		cfg.Scan.Chains = []string{"eth", "bsc"}
	}
	if cfg.Graph.MaxDepth == 0 {
		cfg.Graph.MaxDepth = 3
	}
	if cfg.Graph.NodeBudget == 0 {
		cfg.Graph.NodeBudget = 200
	}
	if cfg.Graph.CopycatThreshold == 0 {
		cfg.Graph.CopycatThreshold = 0.6
	}
	if cfg.Graph.MinSharedTrades == 0 {
		cfg.Graph.MinSharedTrades = 3
	}
	if cfg.Safety.RiskThreshold == 0 {
		cfg.Safety.RiskThreshold = 7
	}
	if cfg.Safety.LiquiditySevereUSD == 0 {
		cfg.Safety.LiquiditySevereUSD = 1_000
	}
	if cfg.Safety.LiquidityModerateUSD == 0 {
		cfg.Safety.LiquidityModerateUSD = 10_000
	}
	if cfg.Safety.LiquidityMildUSD == 0 {
		cfg.Safety.LiquidityMildUSD = 50_000
	}
	if cfg.Safety.TopHolderPct == 0 {
		cfg.Safety.TopHolderPct = 50
	}
	if cfg.Safety.TopFivePct == 0 {
		cfg.Safety.TopFivePct = 80
	}
	if cfg.Cache.WalletTTLS == 0 {
		cfg.Cache.WalletTTLS = 3600
	}
	if cfg.Cache.TokenTTLS == 0 {
		cfg.Cache.TokenTTLS = 600
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "warden.db"
	}
	if cfg.Watchlist.PollIntervalS == 0 {
		cfg.Watchlist.PollIntervalS = 60
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.RateLimitRPS == 0 {
		p.RateLimitRPS = 5
	}
	if p.TimeoutS == 0 {
		p.TimeoutS = 30
	}
}

// Validate rejects out-of-range settings before any component starts.
func (c *Config) Validate() error {
	if c.Scan.MinScore < 0 || c.Scan.MinScore > 100 {
		return fmt.Errorf("scan.min_score must be within 0-100, got %.1f", c.Scan.MinScore)
	}
	if c.Scan.MaxResults < 1 || c.Scan.MaxResults > 200 {
		return fmt.Errorf("scan.max_results must be within 1-200, got %d", c.Scan.MaxResults)
	}
	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be at least 1, got %d", c.Scan.Concurrency)
	}
	if c.Scan.BatchCap < 1 {
		return fmt.Errorf("scan.batch_cap must be at least 1, got %d", c.Scan.BatchCap)
	}
	if c.Graph.MaxDepth < 1 || c.Graph.MaxDepth > 5 {
		return fmt.Errorf("graph.max_depth must be within 1-5, got %d", c.Graph.MaxDepth)
	}
	if c.Graph.NodeBudget < 1 {
		return fmt.Errorf("graph.node_budget must be at least 1, got %d", c.Graph.NodeBudget)
	}
	if c.Graph.CopycatThreshold <= 0 || c.Graph.CopycatThreshold > 1 {
		return fmt.Errorf("graph.copycat_threshold must be within (0, 1], got %.2f", c.Graph.CopycatThreshold)
	}
	if _, err := chains.ParseList(c.Scan.Chains); err != nil {
		return fmt.Errorf("scan.chains: %w", err)
	}
	return nil
}

// ScanChains returns the parsed chain list.
func (c *Config) ScanChains() []chains.Chain {
	parsed, err := chains.ParseList(c.Scan.Chains)
	if err != nil {
		return nil
	}
	return parsed
}
