package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/voicedesk/reservation-engine/internal/config"
	"github.com/voicedesk/reservation-engine/internal/db"
	"github.com/voicedesk/reservation-engine/pkg/logging"
)

// simulate hammers the reserve endpoint with concurrent callers fighting
// over the same slots and reports how many claims each slot handed out.
// Anything other than exactly one winner per slot is a bug.

type targetSlot struct {
	OrgID      uuid.UUID
	ProviderID uuid.UUID
	SlotStart  time.Time
	SlotEnd    time.Time
}

type reserveRequest struct {
	RequestID   string `json:"requestId"`
	OrgID       string `json:"orgId"`
	ProviderID  string `json:"providerId"`
	SlotStart   string `json:"slotStart"`
	SlotEnd     string `json:"slotEnd"`
	CallerPhone string `json:"callerPhone"`
	CallerName  string `json:"callerName"`
}

type reserveResponse struct {
	ReservationID uuid.UUID `json:"reservationId"`
	Error         string    `json:"error"`
}

type confirmRequest struct {
	RequestID     string `json:"requestId"`
	ReservationID string `json:"reservationId"`
	OTPCode       string `json:"otpCode"`
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "api-server base URL")
	callers := flag.Int("callers", 8, "concurrent callers per slot")
	slots := flag.Int("slots", 10, "number of slots to fight over")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger := logging.New(cfg.LogLevel).Named("simulate")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	targets, err := loadTargets(ctx, cfg, *slots)
	if err != nil {
		logger.Error("failed to load target slots", "error", err)
		return
	}
	if len(targets) == 0 {
		logger.Error("no free slots found, run the seed binary first")
		return
	}

	logger.Info("starting simulation",
		"slots", len(targets), "callers_per_slot", *callers, "base_url", *baseURL)

	client := &http.Client{Timeout: 10 * time.Second}
	faker := gofakeit.New(0)

	var mu sync.Mutex
	totalWins, totalLosses, anomalies := 0, 0, 0

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(slot targetSlot) {
			defer wg.Done()
			wins := raceForSlot(ctx, client, *baseURL, slot, *callers, faker)

			mu.Lock()
			defer mu.Unlock()
			totalWins += wins
			totalLosses += *callers - wins
			if wins != 1 {
				anomalies++
				logger.Error("slot handed out wrong number of claims",
					"provider_id", slot.ProviderID, "slot_start", slot.SlotStart, "wins", wins)
			}
		}(target)
	}
	wg.Wait()

	logger.Info("simulation complete",
		"slots", len(targets),
		"claims_granted", totalWins,
		"claims_rejected", totalLosses,
		"anomalies", anomalies)

	if anomalies > 0 {
		log.Fatalf("%d slot(s) violated single-claim exclusivity", anomalies)
	}
}

// raceForSlot fires callers concurrently at one slot and returns how many
// got a reservation. Each winner then burns a wrong-code confirm so the
// OTP path sees load too.
func raceForSlot(ctx context.Context, client *http.Client, baseURL string, slot targetSlot, callers int, faker *gofakeit.Faker) int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		phone := fmt.Sprintf("+1555%07d", faker.Number(0, 9999999))
		name := faker.Name()
		go func(phone, name string) {
			defer wg.Done()

			resp, err := postJSON[reserveResponse](ctx, client, baseURL+"/bookings/reserve", reserveRequest{
				RequestID:   uuid.NewString(),
				OrgID:       slot.OrgID.String(),
				ProviderID:  slot.ProviderID.String(),
				SlotStart:   slot.SlotStart.Format(time.RFC3339),
				SlotEnd:     slot.SlotEnd.Format(time.RFC3339),
				CallerPhone: phone,
				CallerName:  name,
			})
			if err != nil || resp.Error != "" {
				return
			}

			mu.Lock()
			wins++
			mu.Unlock()

			_, _ = postJSON[reserveResponse](ctx, client, baseURL+"/bookings/confirm", confirmRequest{
				RequestID:     uuid.NewString(),
				ReservationID: resp.ReservationID.String(),
				OTPCode:       "000000",
			})
		}(phone, name)
	}
	wg.Wait()
	return wins
}

func postJSON[T any](ctx context.Context, client *http.Client, url string, body any) (T, error) {
	var out T

	payload, err := json.Marshal(body)
	if err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// loadTargets picks upcoming slots with no live reservation or appointment.
func loadTargets(ctx context.Context, cfg config.Config, limit int) ([]targetSlot, error) {
	pool, err := db.ConnectPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT s.org_id, s.provider_id, s.start_time, s.end_time
		FROM slots s
		WHERE s.start_time > now()
		  AND NOT EXISTS (
			SELECT 1 FROM reservations r
			WHERE r.org_id = s.org_id AND r.provider_id = s.provider_id
			  AND r.slot_start = s.start_time AND r.slot_end = s.end_time
			  AND r.state IN ('held', 'verified')
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.org_id = s.org_id AND a.provider_id = s.provider_id
			  AND a.slot_start = s.start_time AND a.slot_end = s.end_time
		  )
		ORDER BY s.start_time
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []targetSlot
	for rows.Next() {
		var t targetSlot
		if err := rows.Scan(&t.OrgID, &t.ProviderID, &t.SlotStart, &t.SlotEnd); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
