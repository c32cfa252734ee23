package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "www/termine.json", cfg.EventsSource)
	assert.Equal(t, 5*time.Minute, cfg.ReloadInterval)
	assert.Equal(t, "www", cfg.StaticDir)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone.String())
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 720*time.Hour, cfg.GeocodeCacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "termine-announcements", cfg.KafkaAnnounceTopic)
	assert.False(t, cfg.AnnouncementsEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_FILE", "/var/log/board.log")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("EVENTS_SOURCE", "https://example.org/termine.json")
	t.Setenv("RELOAD_INTERVAL", "1m")
	t.Setenv("STATIC_DIR", "/srv/www")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("GEOCODE_CACHE_TTL", "24h")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092,")
	t.Setenv("KAFKA_ANNOUNCE_TOPIC", "custom-announce")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/var/log/board.log", cfg.LogFile)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "https://example.org/termine.json", cfg.EventsSource)
	assert.Equal(t, time.Minute, cfg.ReloadInterval)
	assert.Equal(t, "/srv/www", cfg.StaticDir)
	assert.Equal(t, time.UTC, cfg.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "secret", cfg.RedisPassword)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 24*time.Hour, cfg.GeocodeCacheTTL)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-announce", cfg.KafkaAnnounceTopic)
	assert.True(t, cfg.AnnouncementsEnabled())
}

func TestLoad_InvalidDurations(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"RELOAD_INTERVAL", "0s"},
		{"SESSION_TTL", "soon"},
		{"MAPBOX_TIMEOUT", "bad"},
		{"GEOCODE_CACHE_TTL", "-5m"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMEZONE")
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("MAPBOX_CACHE_SIZE", "-3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
}

func TestLoad_BlankBrokersDisableAnnouncements(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " , ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.AnnouncementsEnabled())
}
