package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/internal/chains"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "warden-config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `
general:
  instance_id: "test-node"
  environment: "development"
  log_level: "debug"

providers:
  indexer:
    name: "covalent"
    base_url: "https://api.covalenthq.com/v1"
    api_keys:
      - "key-a"
      - "key-b"
    rate_limit_rps: 4
    daily_limit: 1000

scan:
  min_score: 65
  max_results: 25
  chains:
    - eth
    - bsc
    - sol

graph:
  max_depth: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.Equal(t, "covalent", cfg.Providers.Indexer.Name)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.Providers.Indexer.APIKeys)
	assert.Equal(t, 4.0, cfg.Providers.Indexer.RateLimitRPS)
	assert.Equal(t, 65.0, cfg.Scan.MinScore)
	assert.Equal(t, 25, cfg.Scan.MaxResults)
	assert.Equal(t, 4, cfg.Graph.MaxDepth)
	assert.Equal(t, []chains.Chain{chains.Ethereum, chains.BSC, chains.Solana}, cfg.ScanChains())
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
general:
  log_level: "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warden-1", cfg.General.InstanceID)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, ":8085", cfg.HTTP.Addr)
	assert.Equal(t, 300, cfg.Keyring.TransientCooldownS)
	assert.Equal(t, 3600, cfg.Keyring.QuotaCooldownS)
	assert.Equal(t, 21600, cfg.Keyring.MaxCooldownS)
	assert.Equal(t, 3600, cfg.Scan.IntervalS)
	assert.Equal(t, 2000, cfg.Scan.BatchCap)
	assert.Equal(t, 10, cfg.Scan.Concurrency)
	assert.Equal(t, 70.0, cfg.Scan.MinScore)
	assert.Equal(t, 3, cfg.Graph.MaxDepth)
	assert.Equal(t, 200, cfg.Graph.NodeBudget)
	assert.Equal(t, 7, cfg.Safety.RiskThreshold)
	assert.Equal(t, 1000.0, cfg.Safety.LiquiditySevereUSD)
	assert.Equal(t, 600, cfg.Cache.TokenTTLS)
	assert.Equal(t, 60, cfg.Watchlist.PollIntervalS)
	assert.Equal(t, []string{"eth", "bsc"}, cfg.Scan.Chains)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	os.Setenv("TEST_WARDEN_KEY", "env-key")
	defer os.Unsetenv("TEST_WARDEN_KEY")

	path := writeTempConfig(t, `
providers:
  security:
    api_keys:
      - "${TEST_WARDEN_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"env-key"}, cfg.Providers.Security.APIKeys)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"min score above 100", "scan:\n  min_score: 150\n"},
		{"max results above 200", "scan:\n  max_results: 500\n"},
		{"negative concurrency", "scan:\n  concurrency: -2\n"},
		{"depth above 5", "graph:\n  max_depth: 9\n"},
		{"unknown chain", "scan:\n  chains:\n    - dogechain\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.yaml)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}
