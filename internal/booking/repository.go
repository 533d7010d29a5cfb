package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrgNotFound         = errors.New("organization not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken surfaces the partial unique index on live reservations:
	// another claim on the same slot key already exists.
	ErrSlotTaken = errors.New("slot already claimed")

	// ErrContactBusy surfaces the per-phone unique index: the caller already
	// holds a live reservation in this org.
	ErrContactBusy = errors.New("contact already holds a live reservation")

	// ErrStateConflict means a conditional state update matched no row, i.e.
	// a concurrent transition (commit vs. reap) won first.
	ErrStateConflict = errors.New("reservation state changed concurrently")
)

// Repository contains all DB interactions needed by the booking service and
// the expiry reaper. Every query is scoped by org id where a tenant boundary
// applies.
type Repository interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetProvider(ctx context.Context, orgID, id uuid.UUID) (*Provider, error)

	// Slot catalog (read-only from this subsystem).
	SlotInCatalog(ctx context.Context, orgID uuid.UUID, key SlotKey) (bool, error)

	// HasLiveReservationForPhone is the advisory pre-check for the one live
	// reservation per contact per org rule; the per-phone unique index is the
	// authority under concurrency.
	HasLiveReservationForPhone(ctx context.Context, orgID uuid.UUID, phone string) (bool, error)

	// HasAppointmentForSlot reports whether a confirmed appointment already
	// owns the slot key.
	HasAppointmentForSlot(ctx context.Context, orgID uuid.UUID, key SlotKey) (bool, error)

	// CreateHeldReservation inserts the HELD row; a live claim on the same
	// slot key makes it fail with ErrSlotTaken, a live claim by the same
	// phone with ErrContactBusy.
	CreateHeldReservation(ctx context.Context, r *Reservation) error

	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	GetReservationForOrg(ctx context.Context, orgID, id uuid.UUID) (*Reservation, error)

	// UpdateReservationState performs the conditional transition from -> to,
	// returning ErrStateConflict when the row is no longer in from.
	UpdateReservationState(ctx context.Context, id uuid.UUID, from, to ReservationState) (*Reservation, error)

	// ConsumeOTP atomically clears the stored code hash and increments the
	// attempt counter, returning the prior hash and the new counter value.
	// Single-use: after this call the old code can never match again.
	ConsumeOTP(ctx context.Context, id uuid.UUID) (hash string, attempts int, err error)

	// StoreOTP installs a freshly issued code hash on a live reservation.
	StoreOTP(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error

	// Finalize runs the commit transaction: upsert contact by (org, phone),
	// insert the appointment, flip the reservation verified -> committed.
	// All three or none.
	Finalize(ctx context.Context, r *Reservation) (*Appointment, error)

	GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error)
	GetAppointmentByReservation(ctx context.Context, reservationID uuid.UUID) (*Appointment, error)
	MarkConfirmationSent(ctx context.Context, appointmentID uuid.UUID, sent bool) error

	// Expiry reaper: live reservations whose otp_expires_at is strictly
	// before cutoff.
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]Reservation, error)

	InsertEvent(ctx context.Context, ev BookingEvent) error
}
