package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchrx/oppscan-app/conf"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 365, cfg.LookbackDays)
	assert.Equal(t, 28, cfg.MinDaysSupply)
	assert.Equal(t, 0.8, cfg.SupplyFloorPct)
}

func TestLoadConfigOverrides(t *testing.T) {
	require.NoError(t, conf.SetEnv(t, "OPPSCAN_LOOKBACK_DAYS", "180"))
	require.NoError(t, conf.SetEnv(t, "OPPSCAN_SUPPLY_FLOOR_PCT", "0.5"))
	defer func() {
		assert.NoError(t, conf.UnsetEnv(t, "OPPSCAN_LOOKBACK_DAYS"))
		assert.NoError(t, conf.UnsetEnv(t, "OPPSCAN_SUPPLY_FLOOR_PCT"))
	}()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 180, cfg.LookbackDays)
	assert.Equal(t, 0.5, cfg.SupplyFloorPct)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	require.NoError(t, conf.SetEnv(t, "OPPSCAN_SUPPLY_FLOOR_PCT", "1.5"))
	defer func() {
		assert.NoError(t, conf.UnsetEnv(t, "OPPSCAN_SUPPLY_FLOOR_PCT"))
	}()

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPPSCAN_SUPPLY_FLOOR_PCT")
}
