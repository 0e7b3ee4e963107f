package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the YAML configuration file at path, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Session.Symbol == "" {
		return fmt.Errorf("session.symbol cannot be empty")
	}
	if cfg.Session.Timeframe == "" {
		return fmt.Errorf("session.timeframe cannot be empty")
	}
	switch cfg.Session.Mode {
	case "vectorized-backtest", "stepwise-backtest", "live-test", "live":
	default:
		return fmt.Errorf("session.mode %q invalid (vectorized-backtest|stepwise-backtest|live-test|live)", cfg.Session.Mode)
	}
	if cfg.Decision.Model == "" {
		return fmt.Errorf("decision.model cannot be empty")
	}
	if cfg.Invest.QuoteRate < 0 || cfg.Invest.QuoteRate > 1 {
		return fmt.Errorf("invest.quote_rate must be within [0,1]")
	}
	switch cfg.Tuning.TargetKPI {
	case "performance", "asset_performance", "quote_value":
	default:
		return fmt.Errorf("tuning.target_kpi %q invalid (performance|asset_performance|quote_value)", cfg.Tuning.TargetKPI)
	}
	return nil
}
