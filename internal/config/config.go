package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal container images

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration

	// Event feed and board settings.
	EventsSource   string
	ReloadInterval time.Duration
	StaticDir      string
	Timezone       *time.Location
	SessionTTL     time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Optional Redis tier behind the geocode LRU.
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	GeocodeCacheTTL time.Duration

	// New-event announcements; disabled when no brokers are set.
	KafkaBrokers       []string
	KafkaAnnounceTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	reloadInterval, err := parsePositiveDuration("RELOAD_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parsePositiveDuration("SESSION_TTL", "30m")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parsePositiveDuration("GEOCODE_CACHE_TTL", "720h")
	if err != nil {
		return nil, err
	}

	tzName := sharedcfg.EnvOrDefault("TIMEZONE", "Europe/Berlin")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tzName, err)
	}

	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,

		EventsSource:   sharedcfg.EnvOrDefault("EVENTS_SOURCE", "www/termine.json"),
		ReloadInterval: reloadInterval,
		StaticDir:      sharedcfg.EnvOrDefault("STATIC_DIR", "www"),
		Timezone:       loc,
		SessionTTL:     sessionTTL,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		GeocodeCacheTTL: cacheTTL,

		KafkaBrokers:       sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaAnnounceTopic: sharedcfg.EnvOrDefault("KAFKA_ANNOUNCE_TOPIC", "termine-announcements"),
	}

	if strings.TrimSpace(cfg.EventsSource) == "" {
		return nil, errors.New("EVENTS_SOURCE is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaAnnounceTopic == "" {
		return nil, errors.New("KAFKA_ANNOUNCE_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// AnnouncementsEnabled reports whether new events are published to Kafka.
func (c *Config) AnnouncementsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
