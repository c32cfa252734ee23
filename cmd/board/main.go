package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/stammtisch-map-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/stammtisch-map-service/internal/adapter/kafka"
	"github.com/couchcryptid/stammtisch-map-service/internal/adapter/mapbox"
	"github.com/couchcryptid/stammtisch-map-service/internal/adapter/source"
	"github.com/couchcryptid/stammtisch-map-service/internal/board"
	"github.com/couchcryptid/stammtisch-map-service/internal/config"
	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
	"github.com/couchcryptid/stammtisch-map-service/internal/observability"
	"github.com/couchcryptid/stammtisch-map-service/internal/pipeline"
)

const sourceTimeout = 15 * time.Second

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		var opts []mapbox.CacheOption
		if cfg.RedisAddr != "" {
			rdb, err := mapbox.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				logger.Warn("redis geocode cache unavailable", "error", err)
			} else {
				defer rdb.Close()
				opts = append(opts, mapbox.WithRemoteCache(mapbox.NewRedisCache(rdb, cfg.GeocodeCacheTTL), logger))
				logger.Info("redis geocode cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.GeocodeCacheTTL)
			}
		}
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics, opts...)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	store := board.NewStore()
	var pipelineOpts []pipeline.Option

	var announcer *kafkaadapter.Announcer
	if cfg.AnnouncementsEnabled() {
		announcer = kafkaadapter.NewAnnouncer(cfg, metrics, logger)
		pipelineOpts = append(pipelineOpts, pipeline.WithSinks(announcer))
		logger.Info("event announcements enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAnnounceTopic)
	}

	extractor := source.New(cfg.EventsSource, sourceTimeout, logger)
	transformer := pipeline.NewTransformer(geocoder, logger)
	p := pipeline.New(extractor, transformer, []pipeline.Loader{store}, logger, metrics, cfg.ReloadInterval, pipelineOpts...)

	sessions := httpadapter.NewSessions(store, httpadapter.SessionOptions{
		TTL:      cfg.SessionTTL,
		Location: cfg.Timezone,
	}, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpadapter.Deps{
		Store:     store,
		Sessions:  sessions,
		Reloader:  p,
		Location:  cfg.Timezone,
		StaticDir: cfg.StaticDir,
		Metrics:   metrics,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start reload pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	go sessions.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sessions.Close()
	if announcer != nil {
		if err := announcer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
