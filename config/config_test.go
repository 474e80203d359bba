package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverJSON, cfg.StorageDriver)
	assert.Equal(t, TrackerSQLite, cfg.FireTracker)
	assert.Equal(t, []int{2, 1, 0}, cfg.Offsets)
	assert.Equal(t, 8, cfg.FireHour)
	assert.Equal(t, 0, cfg.FireMin)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Timezone.String())
	assert.Equal(t, 10*time.Second, cfg.NotifyTimeout)
	assert.Error(t, cfg.RequireToken())
	assert.True(t, cfg.IsAllowedChat(12345), "empty allow-list admits everyone")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("ALLOWED_CHAT_IDS", "10,20")
	t.Setenv("OFFSETS", "0,5,1")
	t.Setenv("FIRE_TIME", "19:30")
	t.Setenv("TIMEZONE", "Europe/Moscow")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("FIRE_TRACKER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.NoError(t, cfg.RequireToken())
	assert.Equal(t, []int{5, 1, 0}, cfg.Offsets, "offsets are ordered from earliest lead time")
	assert.Equal(t, 19, cfg.FireHour)
	assert.Equal(t, 30, cfg.FireMin)
	assert.True(t, cfg.IsAllowedChat(20))
	assert.False(t, cfg.IsAllowedChat(30))
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, TrackerMemory, cfg.FireTracker)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative offset", "OFFSETS", "2,-1"},
		{"duplicate offset", "OFFSETS", "1,1"},
		{"huge offset", "OFFSETS", "40"},
		{"bad clock", "FIRE_TIME", "8am"},
		{"bad hour", "FIRE_TIME", "25:00"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus"},
		{"bad driver", "STORAGE_DRIVER", "postgres"},
		{"bad tracker", "FIRE_TRACKER", "redis"},
		{"bad retention", "RETENTION_MONTHS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock(" 07:05 ")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	_, _, err = ParseClock("7-05")
	assert.Error(t, err)
}
