package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medledger/internal/fieldaudit"
	fieldaudithandler "medledger/internal/fieldaudit/handler"
	fieldauditpg "medledger/internal/fieldaudit/store/postgres"
	"medledger/internal/ledger"
	"medledger/internal/ledger/cache"
	ledgerhandler "medledger/internal/ledger/handler"
	ledgermetrics "medledger/internal/ledger/metrics"
	ledgerpg "medledger/internal/ledger/store/postgres"
	"medledger/internal/platform/config"
	"medledger/internal/platform/database"
	"medledger/internal/platform/health"
	"medledger/internal/platform/logger"
	"medledger/internal/platform/middleware"
	"medledger/internal/platform/redis"
	"medledger/internal/tenantdir"
	"medledger/migrations"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Ledger logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing medledger",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	healthHandler := health.New(cfg.Environment)

	// Storage: PostgreSQL when configured, in-memory otherwise (dev only).
	var (
		ledgerStore ledger.Store
		fieldStore  fieldaudit.Store
		tzDirectory ledger.TimezoneResolver
	)
	pool, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    database.DefaultConfig().MaxOpenConns,
		MaxIdleConns:    database.DefaultConfig().MaxIdleConns,
		ConnMaxLifetime: database.DefaultConfig().ConnMaxLifetime,
	})
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // shutdown path
		if cfg.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := pool.ApplyMigrations(ctx, migrations.FS)
			cancel()
			if err != nil {
				log.Error("migrations failed", "error", err)
				os.Exit(1)
			}
		}
		ledgerStore = ledgerpg.New(pool.DB())
		fieldStore = fieldauditpg.New(pool.DB())
		tzDirectory = tenantdir.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	} else {
		log.Warn("no database configured, using in-memory stores")
		ledgerStore = ledger.NewInMemoryStore()
		fieldStore = fieldaudit.NewInMemoryStore()
		tzDirectory = tenantdir.NewStatic(time.UTC)
	}

	metrics := ledgermetrics.New()
	appender := ledger.NewAppender(ledgerStore,
		ledger.WithAppenderLogger(log),
		ledger.WithAppenderMetrics(metrics),
		ledger.WithMaxRetries(cfg.AppendRetries),
	)
	verifier := ledger.NewVerifier(ledgerStore, ledger.WithVerifierMetrics(metrics))

	var aggOpts []ledger.AggregatorOption
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		aggOpts = append(aggOpts, ledger.WithStatsCache(
			cache.NewRedisStatsCache(redisClient.Client,
				cache.WithTTL(cfg.StatsCacheTTL),
				cache.WithLogger(log),
			)))
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}
	aggregator := ledger.NewAggregator(ledgerStore, tzDirectory, aggOpts...)

	fieldService := fieldaudit.NewService(fieldStore, fieldaudit.WithLogger(log))

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.AccessLog(log))

	healthHandler.Register(router)

	// Metrics stay open on dev setups; production configures the admin token.
	var metricsHandler http.Handler = promhttp.Handler()
	if cfg.AdminTokenHash != "" {
		metricsHandler = middleware.RequireAdmin(cfg.AdminTokenHash, log)(metricsHandler)
	}
	router.Handle("/metrics", metricsHandler)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator(cfg.JWTSigningKey, log))
		ledgerhandler.New(appender, verifier, aggregator, ledgerStore, log).Register(r)
		fieldaudithandler.New(fieldService, log).Register(r)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
