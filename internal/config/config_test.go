package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.weather.gov/alerts/active", cfg.AlertsURL)
	assert.Equal(t, "land", cfg.RegionType)
	assert.Equal(t, "alert", cfg.MessageType)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 300, cfg.MaxPoints)
	assert.Equal(t, 250, cfg.PreferredPoints)
	assert.Equal(t, 0.001, cfg.SimplifyTolerance)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 250, cfg.MessageLimit)
	assert.Equal(t, "/manage/users/push/history/", cfg.PushHistoryPath)
	assert.Contains(t, cfg.IgnoredEvents, "Small Craft Advisory")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("MAX_POINTS", "500")
	t.Setenv("PREFERRED_POINTS", "400")
	t.Setenv("IGNORED_EVENTS", "Frost Advisory, Heat Advisory")
	t.Setenv("DASHBOARD_BASE", "https://example.goodbarber.app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, 500, cfg.MaxPoints)
	assert.Equal(t, []string{"Frost Advisory", "Heat Advisory"}, cfg.IgnoredEvents)
	assert.Equal(t, "https://example.goodbarber.app", cfg.DashboardBase)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "not-a-duration")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvertedPointBudget(t *testing.T) {
	t.Setenv("MAX_POINTS", "100")
	t.Setenv("PREFERRED_POINTS", "200")
	_, err := Load()
	assert.Error(t, err)
}
