package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "round-scheduler")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9096", cfg.MetricsPort)
	assert.Equal(t, "round_events", cfg.TopicRoundEvents)
	assert.Equal(t, 5*time.Minute, cfg.Game.RoundDuration)
	assert.Equal(t, 30*time.Second, cfg.Game.LockWindow)
	assert.Equal(t, "20", cfg.Game.FeePercent.String())
	assert.Equal(t, "30", cfg.Game.PlatformCutPercent.String())
	assert.Equal(t, 3, cfg.Game.SettlementAlertThreshold)
	assert.Equal(t, 10*time.Second, cfg.PriceMaxStaleness)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
min_bet: "5.00"
max_bet: "500"
round_duration: 10m
lock_window: 1m
fee_percent: "10"
`), 0o600))

	t.Setenv("GAME_CONFIG_FILE", path)
	t.Setenv("FEE_PERCENT", "15")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5", cfg.Game.MinBet.String())
	assert.Equal(t, "500", cfg.Game.MaxBet.String())
	assert.Equal(t, 10*time.Minute, cfg.Game.RoundDuration)
	assert.Equal(t, time.Minute, cfg.Game.LockWindow)
	assert.Equal(t, "15", cfg.Game.FeePercent.String(), "env wins over yaml")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ROUND_DURATION", "five minutes"},
		{"MIN_BET", "abc"},
		{"MAX_BET", "0.5"},
		{"FEE_PERCENT", "100"},
		{"PLATFORM_CUT_PERCENT", "-1"},
		{"PRICE_MAX_STALENESS", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
