package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/accessly/accessly/pkg/api"
	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/config"
	"github.com/accessly/accessly/pkg/observability"
	"github.com/accessly/accessly/pkg/scans"
	"github.com/accessly/accessly/pkg/settings"
	"github.com/accessly/accessly/pkg/store"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "Run database migrations and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := store.Connect(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	if *migrateOnly {
		return
	}

	redisOpts, err := redis.ParseURL(cfg.Sessions.RedisURL)
	if err != nil {
		logger.WithError(err).Error("invalid redis URL")
		os.Exit(1)
	}
	if cfg.Sessions.RedisPassword != "" {
		redisOpts.Password = cfg.Sessions.RedisPassword
	}
	if cfg.Sessions.RedisDB > 0 {
		redisOpts.DB = cfg.Sessions.RedisDB
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	verifier, err := auth.NewSecretVerifier(
		int64(cfg.Auth.MaxConcurrentVerifications),
		cfg.Auth.VerifierCacheSize,
	)
	if err != nil {
		logger.WithError(err).Error("failed to create secret verifier")
		os.Exit(1)
	}

	creds := auth.NewCredentialStore(db)
	sessions := auth.NewSessionStore(redisClient, cfg.Sessions.TTL)
	settingsStore := settings.NewStore(db)
	scanStore := scans.NewStore(db)
	authenticator := auth.NewAuthenticator(creds, sessions, verifier, settingsStore)

	server := api.NewServer(authenticator, creds, sessions, scanStore, settingsStore, metrics, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg, db, redisClient, registry, metrics)

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("starting API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			stop()
		}
	}()

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("shutting down")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown failed")
	}
	if err := healthServer.Shutdown(timeoutCtx); err != nil {
		logger.WithError(err).Warn("health server shutdown failed")
	}
}

// newHealthServer serves liveness, readiness and metrics on a separate
// port so probes never compete with request traffic.
func newHealthServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client, registry *prometheus.Registry, metrics *observability.Metrics) *http.Server {
	healthMux := http.NewServeMux()

	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	healthMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := store.HealthCheck(checkCtx, db); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(checkCtx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}

		if metrics != nil {
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}

	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
