package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/voicedesk/reservation-engine/internal/config"
	"github.com/voicedesk/reservation-engine/migrations"
	"github.com/voicedesk/reservation-engine/pkg/logging"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel).Named("migrate")

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("failed to load embedded migrations", "error", err)
		return
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.PostgresDSN)
	if err != nil {
		logger.Error("failed to initialize migrator", "error", err)
		return
	}
	defer m.Close()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}

	switch {
	case err == nil:
		logger.Info("migrations applied", "down", *down)
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("schema already up to date")
	default:
		logger.Error("migration failed", "error", err)
	}
}
