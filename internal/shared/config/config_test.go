package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngine(t *testing.T) {
	e := DefaultEngine()

	assert.True(t, e.FeeRate.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, e.MinUnitSize.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, e.UnitSize.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 100, e.MaxUnitsPerBet)
	assert.Equal(t, 0.5, e.CutoffFraction)
	assert.Equal(t, 3, e.SplitRetry.Attempts)
	assert.Equal(t, time.Second, e.SplitRetry.BaseDelay)
	assert.Equal(t, 10*time.Second, e.SplitRetry.MaxDelay)
	assert.Equal(t, 3, e.TxRetry.Attempts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "market-service")
	t.Setenv("ENGINE_FEE_RATE", "0.02")
	t.Setenv("ENGINE_CUTOFF_FRACTION", "0.4")
	t.Setenv("ENGINE_MAX_UNITS", "50")
	t.Setenv("ENGINE_MATCH_ON_INTAKE", "false")
	t.Setenv("WORKER_INTERVAL", "5s")

	cfg := Load()

	require.Equal(t, "market-service", cfg.ServiceName)
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.True(t, cfg.Engine.FeeRate.Equal(decimal.RequireFromString("0.02")))
	assert.Equal(t, 0.4, cfg.Engine.CutoffFraction)
	assert.Equal(t, 50, cfg.Engine.MaxUnitsPerBet)
	assert.False(t, cfg.Engine.MatchOnIntake)
	assert.Equal(t, 5*time.Second, cfg.WorkerInterval)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("ENGINE_FEE_RATE", "abc")
	t.Setenv("ENGINE_MAX_UNITS", "many")

	cfg := Load()

	assert.True(t, cfg.Engine.FeeRate.Equal(DefaultEngine().FeeRate))
	assert.Equal(t, 100, cfg.Engine.MaxUnitsPerBet)
}
