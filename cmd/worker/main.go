package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gridirondb/internal/cache"
	"gridirondb/internal/config"
	"gridirondb/internal/feed"
	"gridirondb/internal/metrics"
	"gridirondb/internal/pipeline"
	"gridirondb/internal/repository"
	"gridirondb/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()
	setupLogger(cfg)

	log.Info().Msg("Starting gridirondb sync worker")
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Configuration loaded")

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Initialize feed client
	feedClient := feed.NewClient(cfg.FeedBaseURL, cfg.FeedAPIKey, cfg.FeedTimeout)
	log.Info().Str("base_url", cfg.FeedBaseURL).Msg("Feed client initialized")

	// Initialize database connection
	dbConfig := repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	}

	db, err := repository.NewDatabase(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if err := db.Migrate(ctx, cfg.EnablePlayerStats); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate schema")
	}

	// Initialize Redis cache (optional)
	var gameCache *cache.Cache
	if cfg.CacheEnabled {
		gameCache, err = cache.New(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
			gameCache = nil
		} else {
			defer gameCache.Close()
			log.Info().Str("addr", cfg.RedisAddr()).Msg("Redis cache connected")
		}
	}

	// Start metrics HTTP server
	if cfg.EnableMetrics {
		go startMetricsServer(cfg.MetricsPort, db, gameCache)
	}

	// Update uptime and pool gauges
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
				stats := db.Pool.Stat()
				metrics.UpdateDBConnectionStats(stats.AcquiredConns(), stats.IdleConns())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Assemble the pipeline
	pipe := pipeline.New(pipeline.NewDBStore(db), feedClient, gameCache, pipeline.Options{
		PollConcurrency:   cfg.PollConcurrency,
		GapRetryBudget:    cfg.GapRetryBudget,
		RosterInterval:    cfg.RosterRefreshInterval,
		EnablePlayerStats: cfg.EnablePlayerStats,
	})

	// Converge once before the ticker takes over, so a fresh deployment has
	// the schedule and rosters without waiting a full interval.
	log.Info().Msg("Running initial sync...")
	if _, err := pipe.RunCycle(ctx); err != nil {
		log.Error().Err(err).Msg("Initial sync failed, continuing anyway...")
	}
	if _, err := pipe.RefreshRosters(ctx); err != nil {
		log.Error().Err(err).Msg("Initial roster sweep failed, continuing anyway...")
	}

	// Create and start scheduler
	sched := scheduler.NewScheduler(cfg, pipe)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Keep running until context is cancelled
	<-ctx.Done()

	// Graceful shutdown
	log.Info().Msg("Shutting down scheduler...")
	sched.Stop()

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(port int, db *repository.Database, gameCache *cache.Cache) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unhealthy","error":%q}`, err.Error())
			return
		}
		if gameCache != nil {
			if err := gameCache.Health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"degraded","error":%q}`, err.Error())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Info().Int("port", port).Msg("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
