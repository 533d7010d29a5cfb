package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReservationState is the lifecycle position of a slot claim. Transitions
// only ever move forward; CanTransition is the single source of truth and
// every state write goes through a conditional update keyed on the prior
// state.
type ReservationState string

const (
	StateHeld      ReservationState = "held"
	StateVerified  ReservationState = "verified"
	StateCommitted ReservationState = "committed"
	StateExpired   ReservationState = "expired"
	StateFailed    ReservationState = "failed"
)

var legalTransitions = map[ReservationState][]ReservationState{
	StateHeld:     {StateVerified, StateExpired, StateFailed},
	StateVerified: {StateCommitted, StateExpired},
}

// CanTransition reports whether moving from s to next is a legal forward
// step. Terminal states allow nothing.
func (s ReservationState) CanTransition(next ReservationState) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Live reports whether the reservation still claims its slot.
func (s ReservationState) Live() bool {
	return s == StateHeld || s == StateVerified
}

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Organization struct {
	ID        uuid.UUID
	Name      string
	Active    bool
	CreatedAt time.Time
}

type Provider struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	CreatedAt time.Time
}

// SlotKey identifies one bookable window of one provider. Booking state is
// derived from the existence of a live reservation or an appointment under
// this key, never from a mutable flag on the slot row.
type SlotKey struct {
	ProviderID uuid.UUID
	Start      time.Time
	End        time.Time
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s@%d-%d", k.ProviderID, k.Start.Unix(), k.End.Unix())
}

type Slot struct {
	OrgID      uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
}

type Contact struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	Phone     string
	Email     *string
	CreatedAt time.Time
}

// Reservation is a transient, TTL-bounded claim on a slot pending OTP
// confirmation. The OTP code itself is never stored, only its hash.
type Reservation struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	ProviderID   uuid.UUID
	SlotStart    time.Time
	SlotEnd      time.Time
	ContactName  string
	ContactPhone string
	ContactEmail *string
	State        ReservationState
	OTPCodeHash  string
	OTPAttempts  int
	OTPExpiresAt time.Time
	LockToken    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Reservation) SlotKey() SlotKey {
	return SlotKey{ProviderID: r.ProviderID, Start: r.SlotStart, End: r.SlotEnd}
}

// Appointment is the durable booking created exactly once per committed
// reservation.
type Appointment struct {
	ID               uuid.UUID
	OrgID            uuid.UUID
	ContactID        uuid.UUID
	ProviderID       uuid.UUID
	SlotStart        time.Time
	SlotEnd          time.Time
	ReservationID    uuid.UUID
	Status           AppointmentStatus
	ConfirmationSent bool
	CreatedAt        time.Time
}

// BookingEvent is an append-only audit record of reservation lifecycle
// changes.
type BookingEvent struct {
	ID            int64
	EventType     string
	ReservationID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
