package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicedesk/reservation-engine/internal/config"
	"github.com/voicedesk/reservation-engine/internal/db"
	"github.com/voicedesk/reservation-engine/pkg/logging"
)

// seed fills a dev database with organizations, providers and a week of
// half-hour slots so the simulator has something to fight over.
func main() {
	orgs := flag.Int("orgs", 2, "number of organizations to create")
	providers := flag.Int("providers", 3, "providers per organization")
	days := flag.Int("days", 7, "days of slots to generate per provider")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel).Named("seed")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		return
	}
	defer pool.Close()

	faker := gofakeit.New(0)
	slotCount := 0

	for i := 0; i < *orgs; i++ {
		orgID := uuid.New()
		orgName := faker.Company()

		_, err := pool.Exec(ctx, `
			INSERT INTO organizations (id, name, active, created_at)
			VALUES ($1, $2, true, now())
		`, orgID, orgName)
		if err != nil {
			logger.Error("failed to insert organization", "name", orgName, "error", err)
			return
		}

		for j := 0; j < *providers; j++ {
			providerID := uuid.New()
			providerName := "Dr. " + faker.LastName()

			_, err := pool.Exec(ctx, `
				INSERT INTO providers (id, org_id, name, created_at)
				VALUES ($1, $2, $3, now())
			`, providerID, orgID, providerName)
			if err != nil {
				logger.Error("failed to insert provider", "name", providerName, "error", err)
				return
			}

			n, err := seedSlots(ctx, pool, orgID, providerID, *days)
			if err != nil {
				logger.Error("failed to insert slots", "provider", providerName, "error", err)
				return
			}
			slotCount += n
		}

		logger.Info("seeded organization", "name", orgName, "org_id", orgID, "providers", *providers)
	}

	logger.Info("seed complete", "orgs", *orgs, "slots", slotCount)
}

// seedSlots creates half-hour windows between 09:00 and 17:00 UTC starting
// tomorrow.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, orgID, providerID uuid.UUID, days int) (int, error) {
	day := time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour)
	count := 0

	for d := 0; d < days; d++ {
		start := day.AddDate(0, 0, d).Add(9 * time.Hour)
		for hour := 0; hour < 16; hour++ { // 16 half-hour windows
			slotStart := start.Add(time.Duration(hour) * 30 * time.Minute)
			slotEnd := slotStart.Add(30 * time.Minute)

			_, err := pool.Exec(ctx, `
				INSERT INTO slots (org_id, provider_id, start_time, end_time)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT DO NOTHING
			`, orgID, providerID, slotStart, slotEnd)
			if err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}
