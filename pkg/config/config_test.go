package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/kalshibot/pkg/kalshi"
)

func TestCredentialsValidate(t *testing.T) {
	c := Credentials{APIKeyID: "k", PrivateKeyPath: "/tmp/key.pem"}
	require.NoError(t, c.Validate())

	assert.Error(t, Credentials{PrivateKeyPath: "/tmp/key.pem"}.Validate())
	assert.Error(t, Credentials{APIKeyID: "k"}.Validate())
}

func TestCredentialsHost(t *testing.T) {
	assert.Equal(t, kalshi.ProdHost, Credentials{}.Host())
	assert.Equal(t, kalshi.DemoHost, Credentials{DemoMode: true}.Host())
	assert.Equal(t, "https://example.com", Credentials{APIHost: "https://example.com/"}.Host())
	// Demo mode wins over an explicit host.
	assert.Equal(t, kalshi.DemoHost, Credentials{APIHost: "https://example.com", DemoMode: true}.Host())
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv("KALSHI_API_KEY_ID", "key-1")
	t.Setenv("KALSHI_PRIVATE_KEY_PATH", "/keys/kalshi.pem")
	t.Setenv("KALSHI_API_HOST", "")
	t.Setenv("KALSHI_DEMO_MODE", "TRUE")

	c := LoadCredentials()
	assert.Equal(t, "key-1", c.APIKeyID)
	assert.Equal(t, "/keys/kalshi.pem", c.PrivateKeyPath)
	assert.True(t, c.DemoMode)
}

func TestDefaultStrategyConfig(t *testing.T) {
	cfg := DefaultStrategyConfig()
	cfg.Ticker = "INXD-23DEC29"
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.MinSpreadCents)
	assert.Equal(t, 100, cfg.MaxInventoryContracts)
	assert.Equal(t, 1000, cfg.MinTimeBetweenRequotesMs)
}

func TestValidateRejectsBadKnobs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StrategyConfig)
	}{
		{"missing ticker", func(c *StrategyConfig) { c.Ticker = "" }},
		{"negative spread", func(c *StrategyConfig) { c.MinSpreadCents = -1 }},
		{"zero bid size", func(c *StrategyConfig) { c.BidSizeContracts = 0 }},
		{"zero inventory cap", func(c *StrategyConfig) { c.MaxInventoryContracts = 0 }},
		{"touch enabled without limit", func(c *StrategyConfig) { c.TouchContractLimit = 0 }},
		{"inverted queue thresholds", func(c *StrategyConfig) {
			c.QueueThinThreshold = 200
			c.QueueThickThreshold = 100
		}},
		{"negative cooldown", func(c *StrategyConfig) { c.CooldownAfterShadeMs = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultStrategyConfig()
			cfg.Ticker = "T"
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadStrategyConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yml")
	require.NoError(t, os.WriteFile(path, []byte(
		"ticker: INXD-23DEC29\nmin_spread_cents: 5\ntouch_contract_limit: 55\n"), 0o644))

	cfg, err := LoadStrategyConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "INXD-23DEC29", cfg.Ticker)
	assert.Equal(t, 5, cfg.MinSpreadCents)
	assert.Equal(t, 55, cfg.TouchContractLimit)
	// Untouched knobs keep their defaults.
	assert.Equal(t, 2, cfg.TakeProfitTicks)
}

func TestLoadStrategyConfigErrors(t *testing.T) {
	_, err := LoadStrategyConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("ticker: [unclosed"), 0o644))
	_, err = LoadStrategyConfig(bad)
	assert.Error(t, err)
}

func TestGroupLimits(t *testing.T) {
	cfg := DefaultStrategyConfig()
	cfg.Ticker = "T"

	limits := cfg.GroupLimits()
	assert.Equal(t, 40, limits["touch"])
	assert.Equal(t, 120, limits["depth"])
	assert.Equal(t, 80, limits["band"])
	assert.Equal(t, 100, limits["exit"])

	cfg.DepthEnabled = false
	limits = cfg.GroupLimits()
	assert.NotContains(t, limits, "depth")
}
