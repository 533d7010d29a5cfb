package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voicedesk/reservation-engine/internal/api"
	"github.com/voicedesk/reservation-engine/internal/booking"
	"github.com/voicedesk/reservation-engine/internal/config"
	"github.com/voicedesk/reservation-engine/internal/db"
	"github.com/voicedesk/reservation-engine/internal/notify"
	"github.com/voicedesk/reservation-engine/internal/observability/metrics"
	redisclient "github.com/voicedesk/reservation-engine/internal/redis"
	"github.com/voicedesk/reservation-engine/pkg/logging"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel).Named("api-server")
	logger.Info("starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		return
	}
	defer pgPool.Close()
	logger.Info("connected to postgres")

	rdb, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		return
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb)
	cache := redisclient.NewResultCache(rdb, cfg.IdempotencyTTL)
	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	var sender notify.SMSSender
	if cfg.Env == "dev" {
		sender = notify.NewLogSender(logger)
	}
	dispatcher := notify.NewDispatcher(sender, repo, logger)

	svc := booking.NewService(repo, locker, cache, dispatcher, bookingMetrics, logger, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
		return
	case <-rootCtx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
