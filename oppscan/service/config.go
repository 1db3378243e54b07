package service

import (
	"fmt"

	"github.com/switchrx/oppscan-app/conf"
)

type Config struct {
	// LookbackDays bounds claim history considered by a scan.
	LookbackDays int `conf:"OPPSCAN_LOOKBACK_DAYS" conf_default:"365"`

	// MinDaysSupply is the generic short-fill floor applied when a trigger
	// declares no expected days supply.
	MinDaysSupply int `conf:"OPPSCAN_MIN_DAYS_SUPPLY" conf_default:"28"`

	// SupplyFloorPct scales the trigger's expected days supply into the
	// short-fill floor.
	SupplyFloorPct float64 `conf:"OPPSCAN_SUPPLY_FLOOR_PCT" conf_default:"0.8"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, fmt.Errorf("failed to load service config: %w", err)
	}

	if cfg.LookbackDays <= 0 {
		return nil, fmt.Errorf("invalid config, OPPSCAN_LOOKBACK_DAYS must be positive (got %d)", cfg.LookbackDays)
	}
	if cfg.SupplyFloorPct <= 0 || cfg.SupplyFloorPct > 1 {
		return nil, fmt.Errorf("invalid config, OPPSCAN_SUPPLY_FLOOR_PCT must be in (0, 1] (got %f)", cfg.SupplyFloorPct)
	}

	return cfg, nil
}
