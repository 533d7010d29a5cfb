package booking

import (
	"context"
	"time"

	"github.com/voicedesk/reservation-engine/pkg/logging"
)

// Reaper periodically reclaims reservations abandoned mid-call. It is the
// backstop that bounds how long a hung-up caller can keep a slot falsely
// unavailable.
type Reaper struct {
	svc      *Service
	interval time.Duration
	logger   *logging.Logger
}

func NewReaper(svc *Service, interval time.Duration, logger *logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reaper{svc: svc, interval: interval, logger: logger.Named("reaper")}
}

// Run sweeps once immediately and then on every tick until ctx is
// cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopping")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	expired, err := r.svc.ExpireOverdueReservations(sweepCtx)
	if err != nil {
		r.logger.Error("reaper sweep failed", "error", err)
		return
	}
	if expired > 0 {
		r.logger.Info("reaper sweep complete", "expired", expired, "duration", time.Since(start))
	}
}
