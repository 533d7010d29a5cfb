package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicedesk/reservation-engine/internal/booking"
	"github.com/voicedesk/reservation-engine/internal/config"
	"github.com/voicedesk/reservation-engine/internal/db"
	redisclient "github.com/voicedesk/reservation-engine/internal/redis"
	"github.com/voicedesk/reservation-engine/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel).Named("expiry-worker")
	logger.Info("starting up",
		"env", cfg.Env, "interval", cfg.ReaperInterval, "grace", cfg.ReaperGrace)

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

	rdb, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		return
	}
	defer func() { _ = rdb.Close() }()

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb)

	// The reaper goes through the same service transitions as the live
	// confirm path; no cache or notifier is needed here.
	svc := booking.NewService(repo, locker, nil, nil, nil, logger, cfg)

	reaper := booking.NewReaper(svc, cfg.ReaperInterval, logger)
	reaper.Run(rootCtx)

	logger.Info("expiry-worker stopped")
}
