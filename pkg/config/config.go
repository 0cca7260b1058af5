package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/kalshibot/pkg/kalshi"
)

// Credentials is the process-wide exchange identity, loaded once at
// startup and passed explicitly to constructors. Nothing in the core
// reads the environment after this.
type Credentials struct {
	APIKeyID       string
	PrivateKeyPath string
	APIHost        string
	DemoMode       bool
}

// LoadCredentials reads the KALSHI_* environment variables. dotenv
// loading, if any, is the caller's job.
func LoadCredentials() Credentials {
	return Credentials{
		APIKeyID:       os.Getenv("KALSHI_API_KEY_ID"),
		PrivateKeyPath: os.Getenv("KALSHI_PRIVATE_KEY_PATH"),
		APIHost:        os.Getenv("KALSHI_API_HOST"),
		DemoMode:       strings.EqualFold(os.Getenv("KALSHI_DEMO_MODE"), "true"),
	}
}

// Validate fails fast on anything that would only surface later as a
// broken signer.
func (c Credentials) Validate() error {
	if c.APIKeyID == "" {
		return errors.New("config: KALSHI_API_KEY_ID is not set")
	}
	if c.PrivateKeyPath == "" {
		return errors.New("config: KALSHI_PRIVATE_KEY_PATH is not set")
	}
	return nil
}

// Host resolves the API base host, honoring demo mode.
func (c Credentials) Host() string {
	if c.DemoMode {
		return kalshi.DemoHost
	}
	if c.APIHost != "" {
		return strings.TrimRight(c.APIHost, "/")
	}
	return kalshi.ProdHost
}

// StrategyConfig is the closed set of tunables strategy logic runs on.
// It is constructed once at startup and never mutated; millisecond
// fields are hysteresis windows.
type StrategyConfig struct {
	Ticker   string `yaml:"ticker"`
	LiveMode bool   `yaml:"live_mode"`

	MinSpreadCents          int `yaml:"min_spread_cents"`
	BidSizeContracts        int `yaml:"bid_size_contracts"`
	ExitSizeContracts       int `yaml:"exit_size_contracts"`
	SumCushionTicks         int `yaml:"sum_cushion_ticks"`
	TakeProfitTicks         int `yaml:"take_profit_ticks"`
	QuoteTTLSeconds         int `yaml:"quote_ttl_seconds"`
	ExitTTLSeconds          int `yaml:"exit_ttl_seconds"`
	CancelMoveTicks         int `yaml:"cancel_move_ticks"`
	MaxInventoryContracts   int `yaml:"max_inventory_contracts"`
	ReduceOnlyStepContracts int `yaml:"reduce_only_step_contracts"`

	TouchEnabled       bool `yaml:"touch_enabled"`
	TouchContractLimit int  `yaml:"touch_contract_limit"`

	DepthEnabled       bool `yaml:"depth_enabled"`
	DepthContractLimit int  `yaml:"depth_contract_limit"`
	DepthLevels        int  `yaml:"depth_levels"`
	DepthStepTicks     int  `yaml:"depth_step_ticks"`

	BandEnabled        bool `yaml:"band_enabled"`
	BandContractLimit  int  `yaml:"band_contract_limit"`
	BandHalfWidthTicks int  `yaml:"band_half_width_ticks"`
	BandRungs          int  `yaml:"band_rungs"`

	QueueSmallThreshold int  `yaml:"queue_small_threshold"`
	QueueBigThreshold   int  `yaml:"queue_big_threshold"`
	ExitLadderThreshold int  `yaml:"exit_ladder_threshold"`
	ImproveIfLast       bool `yaml:"improve_if_last"`

	QueueThinThreshold       int `yaml:"queue_thin_threshold"`
	QueueThickThreshold      int `yaml:"queue_thick_threshold"`
	MinTimeBetweenRequotesMs int `yaml:"min_time_between_requotes_ms"`
	CooldownAfterShadeMs     int `yaml:"cooldown_after_shade_ms"`
}

// DefaultStrategyConfig mirrors the knob defaults the strategies were
// tuned against.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		MinSpreadCents:          3,
		BidSizeContracts:        5,
		ExitSizeContracts:       5,
		SumCushionTicks:         3,
		TakeProfitTicks:         2,
		QuoteTTLSeconds:         6,
		ExitTTLSeconds:          20,
		CancelMoveTicks:         2,
		MaxInventoryContracts:   100,
		ReduceOnlyStepContracts: 10,

		TouchEnabled:       true,
		TouchContractLimit: 40,

		DepthEnabled:       true,
		DepthContractLimit: 120,
		DepthLevels:        3,
		DepthStepTicks:     2,

		BandEnabled:        true,
		BandContractLimit:  80,
		BandHalfWidthTicks: 4,
		BandRungs:          2,

		QueueSmallThreshold: 50,
		QueueBigThreshold:   400,
		ExitLadderThreshold: 30,
		ImproveIfLast:       true,

		QueueThinThreshold:       40,
		QueueThickThreshold:      150,
		MinTimeBetweenRequotesMs: 1000,
		CooldownAfterShadeMs:     3000,
	}
}

// LoadStrategyConfig overlays a YAML file on the defaults and
// validates the result.
func LoadStrategyConfig(path string) (StrategyConfig, error) {
	cfg := DefaultStrategyConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read strategy config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse strategy config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects combinations that would otherwise surface as silent
// no-ops deep in strategy logic.
func (c StrategyConfig) Validate() error {
	if c.Ticker == "" {
		return errors.New("config: ticker is required")
	}
	if c.MinSpreadCents < 0 {
		return errors.New("config: min_spread_cents must be >= 0")
	}
	if c.BidSizeContracts <= 0 || c.ExitSizeContracts <= 0 {
		return errors.New("config: order sizes must be positive")
	}
	if c.MaxInventoryContracts <= 0 {
		return errors.New("config: max_inventory_contracts must be positive")
	}
	if c.TouchEnabled && c.TouchContractLimit <= 0 {
		return errors.New("config: touch_contract_limit must be positive when touch is enabled")
	}
	if c.DepthEnabled && (c.DepthContractLimit <= 0 || c.DepthLevels <= 0) {
		return errors.New("config: depth limits must be positive when depth is enabled")
	}
	if c.BandEnabled && (c.BandContractLimit <= 0 || c.BandRungs <= 0) {
		return errors.New("config: band limits must be positive when band is enabled")
	}
	if c.QueueThinThreshold > c.QueueThickThreshold {
		return errors.New("config: queue_thin_threshold must not exceed queue_thick_threshold")
	}
	if c.MinTimeBetweenRequotesMs < 0 || c.CooldownAfterShadeMs < 0 {
		return errors.New("config: hysteresis windows must be >= 0")
	}
	return nil
}

// GroupLimits maps each enabled quoting layer to its contract cap.
// These are the buckets the ledger is seeded with.
func (c StrategyConfig) GroupLimits() map[string]int {
	limits := make(map[string]int)
	if c.TouchEnabled {
		limits["touch"] = c.TouchContractLimit
	}
	if c.DepthEnabled {
		limits["depth"] = c.DepthContractLimit
	}
	if c.BandEnabled {
		limits["band"] = c.BandContractLimit
	}
	limits["exit"] = c.MaxInventoryContracts
	return limits
}
