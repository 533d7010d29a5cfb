package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voicedesk/reservation-engine/internal/config"
	"github.com/voicedesk/reservation-engine/internal/observability/metrics"
	redisclient "github.com/voicedesk/reservation-engine/internal/redis"
	"github.com/voicedesk/reservation-engine/internal/tenancy"
	"github.com/voicedesk/reservation-engine/pkg/logging"
)

var bookingTracer = otel.Tracer("reserve.internal.booking")

// Structured error codes surfaced to the voice pipeline.
const (
	CodeSlotUnavailable     = "SLOT_UNAVAILABLE"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeOTPInvalid          = "OTP_INVALID"
	CodeOTPExpired          = "OTP_EXPIRED"
	CodeMaxAttempts         = "MAX_ATTEMPTS_EXCEEDED"
	CodeReservationNotFound = "RESERVATION_NOT_FOUND"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

const (
	EventReservationHeld      = "RESERVATION_HELD"
	EventReservationVerified  = "RESERVATION_VERIFIED"
	EventReservationCommitted = "RESERVATION_COMMITTED"
	EventReservationExpired   = "RESERVATION_EXPIRED"
	EventReservationFailed    = "RESERVATION_FAILED"
	EventOTPReissued          = "OTP_REISSUED"
)

var (
	ErrSlotUnavailable = errors.New("slot is unavailable")
	ErrOTPInvalid      = errors.New("otp code does not match")
	ErrOTPExpired      = errors.New("otp code has expired")
	ErrMaxAttempts     = errors.New("otp attempt limit exceeded")
	ErrUnavailable     = errors.New("service temporarily unavailable")
)

// InvalidInputError carries a caller-facing detail string for malformed
// requests; nothing about it is persisted.
type InvalidInputError struct {
	Detail string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Detail
}

// ResultCache is the idempotency store keyed by the voice platform's tool
// call id.
type ResultCache interface {
	Get(ctx context.Context, requestID string) ([]byte, bool, error)
	PutIfAbsent(ctx context.Context, requestID string, payload []byte) ([]byte, error)
}

// CommitEvent is handed to the notification dispatcher after a booking
// commits. Delivery failure never unwinds the booking.
type CommitEvent struct {
	AppointmentID uuid.UUID
	OrgID         uuid.UUID
	ContactPhone  string
	ProviderName  string
	SlotStart     time.Time
}

// Notifier forwards side-effect requests to the external SMS/email
// collaborator. Implementations must not block the booking path on
// delivery.
type Notifier interface {
	AppointmentCommitted(ctx context.Context, evt CommitEvent)
	OTPIssued(ctx context.Context, orgID uuid.UUID, phone, code string)
}

type ReserveInput struct {
	RequestID   string
	OrgID       uuid.UUID
	ProviderID  uuid.UUID
	SlotStart   time.Time
	SlotEnd     time.Time
	CallerPhone string
	CallerName  string
	CallerEmail string
}

type ReserveResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrgID         uuid.UUID `json:"org_id"`
	OTPRequired   bool      `json:"otp_required"`
}

type ConfirmInput struct {
	RequestID     string
	ReservationID uuid.UUID
	OTPCode       string
}

type ConfirmResult struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	OrgID         uuid.UUID `json:"org_id"`
	Status        string    `json:"status"`
}

// cachedOutcome is the idempotency envelope: either a successful result or
// a deterministic error code, replayed verbatim on redelivery.
type cachedOutcome struct {
	Reserve *ReserveResult `json:"reserve,omitempty"`
	Confirm *ConfirmResult `json:"confirm,omitempty"`
	ErrCode string         `json:"err_code,omitempty"`
}

type Service struct {
	repo     Repository
	locker   redisclient.SlotLocker
	cache    ResultCache
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	cfg      config.Config
}

func NewService(repo Repository, locker redisclient.SlotLocker, cache ResultCache, notifier Notifier, m *metrics.BookingMetrics, logger *logging.Logger, cfg config.Config) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		cache:    cache,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// RequestBooking claims a slot for a caller: validate, acquire the slot
// lock, persist the HELD reservation, issue the OTP. Exactly one of two
// concurrent requests for the same slot key succeeds; the loser fails fast
// with ErrSlotUnavailable.
func (s *Service) RequestBooking(ctx context.Context, in ReserveInput) (*ReserveResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("reserve.org_id", in.OrgID.String()),
		attribute.String("reserve.provider_id", in.ProviderID.String()),
	)
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("reserve", time.Since(start).Seconds()) }()

	if in.RequestID == "" {
		return nil, &InvalidInputError{Detail: "requestId is required"}
	}

	if outcome, ok := s.replay(ctx, in.RequestID); ok {
		s.metrics.ObserveReserve("replayed")
		return outcome.Reserve, codeError(outcome.ErrCode)
	}

	phone, err := NormalizePhone(in.CallerPhone)
	if err != nil {
		s.metrics.ObserveReserve("invalid_input")
		return nil, &InvalidInputError{Detail: "callerPhone is not a usable phone number"}
	}
	name := NormalizeName(in.CallerName)
	if name == "" {
		s.metrics.ObserveReserve("invalid_input")
		return nil, &InvalidInputError{Detail: "callerName is required"}
	}
	var email *string
	if in.CallerEmail != "" {
		e := NormalizeEmail(in.CallerEmail)
		email = &e
	}
	if !in.SlotEnd.After(in.SlotStart) {
		s.metrics.ObserveReserve("invalid_input")
		return nil, &InvalidInputError{Detail: "slot window is empty"}
	}

	// The transport layer binds the tenant to the context; a payload naming
	// a different org is malformed, not a lookup miss.
	if ctxOrg, ok := tenancy.OrgIDFromContext(ctx); ok && ctxOrg != in.OrgID {
		s.metrics.ObserveReserve("invalid_input")
		return nil, &InvalidInputError{Detail: "orgId does not match request tenancy"}
	}

	org, err := s.repo.GetOrganization(ctx, in.OrgID)
	if err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			s.metrics.ObserveReserve("invalid_input")
			return nil, &InvalidInputError{Detail: "unknown organization"}
		}
		return nil, fmt.Errorf("%w: load organization: %v", ErrUnavailable, err)
	}
	if !org.Active {
		s.metrics.ObserveReserve("invalid_input")
		return nil, &InvalidInputError{Detail: "organization is not active"}
	}

	// Org-scoped lookup: a provider id from another tenant reads as absent.
	if _, err := s.repo.GetProvider(ctx, in.OrgID, in.ProviderID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			s.metrics.ObserveReserve("invalid_input")
			return nil, &InvalidInputError{Detail: "provider does not belong to organization"}
		}
		return nil, fmt.Errorf("%w: load provider: %v", ErrUnavailable, err)
	}

	key := SlotKey{ProviderID: in.ProviderID, Start: in.SlotStart, End: in.SlotEnd}
	inCatalog, err := s.repo.SlotInCatalog(ctx, in.OrgID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: check slot catalog: %v", ErrUnavailable, err)
	}
	if !inCatalog {
		s.metrics.ObserveReserve("invalid_input")
		return nil, &InvalidInputError{Detail: "slot is outside advertised availability"}
	}

	// A committed appointment owns its slot key permanently.
	booked, err := s.repo.HasAppointmentForSlot(ctx, in.OrgID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: check appointments: %v", ErrUnavailable, err)
	}
	if booked {
		s.metrics.ObserveReserve("slot_unavailable")
		s.store(ctx, in.RequestID, cachedOutcome{ErrCode: CodeSlotUnavailable})
		return nil, ErrSlotUnavailable
	}

	// One live reservation per contact per org.
	hasLive, err := s.repo.HasLiveReservationForPhone(ctx, in.OrgID, phone)
	if err != nil {
		return nil, fmt.Errorf("%w: check live reservations: %v", ErrUnavailable, err)
	}
	if hasLive {
		s.metrics.ObserveReserve("invalid_input")
		return nil, &InvalidInputError{Detail: "active_reservation_exists"}
	}

	token, acquired, err := s.locker.TryAcquire(ctx, in.OrgID, in.ProviderID, in.SlotStart, in.SlotEnd, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire slot lock: %v", ErrUnavailable, err)
	}
	if !acquired {
		s.metrics.ObserveLockContention()
		s.metrics.ObserveReserve("slot_unavailable")
		s.store(ctx, in.RequestID, cachedOutcome{ErrCode: CodeSlotUnavailable})
		return nil, ErrSlotUnavailable
	}

	code, hash, err := GenerateOTP()
	if err != nil {
		s.releaseLock(ctx, in.OrgID, key, token)
		return nil, fmt.Errorf("%w: issue otp: %v", ErrUnavailable, err)
	}

	res := &Reservation{
		ID:           uuid.New(),
		OrgID:        in.OrgID,
		ProviderID:   in.ProviderID,
		SlotStart:    in.SlotStart,
		SlotEnd:      in.SlotEnd,
		ContactName:  name,
		ContactPhone: phone,
		ContactEmail: email,
		OTPCodeHash:  hash,
		OTPExpiresAt: time.Now().Add(s.cfg.ReservationTTL),
		LockToken:    token,
	}

	err = s.withRetry(ctx, func() error { return s.repo.CreateHeldReservation(ctx, res) })
	if err != nil {
		s.releaseLock(ctx, in.OrgID, key, token)
		if errors.Is(err, ErrSlotTaken) {
			// The unique index is the backstop behind the lock; losing here
			// means an earlier claim outlived its lock.
			s.metrics.ObserveReserve("slot_unavailable")
			s.store(ctx, in.RequestID, cachedOutcome{ErrCode: CodeSlotUnavailable})
			return nil, ErrSlotUnavailable
		}
		if errors.Is(err, ErrContactBusy) {
			// The per-phone index caught a concurrent reserve from the same
			// caller that slipped past the advisory pre-check.
			s.metrics.ObserveReserve("invalid_input")
			return nil, &InvalidInputError{Detail: "active_reservation_exists"}
		}
		return nil, fmt.Errorf("%w: persist reservation: %v", ErrUnavailable, err)
	}

	s.logEvent(ctx, res.ID, EventReservationHeld, map[string]any{
		"org_id":      in.OrgID.String(),
		"provider_id": in.ProviderID.String(),
		"slot_start":  in.SlotStart,
		"expires_at":  res.OTPExpiresAt,
	})

	if s.notifier != nil {
		s.notifier.OTPIssued(ctx, in.OrgID, phone, code)
	}

	s.metrics.ObserveReserve("ok")
	s.logger.Info("reservation held",
		"reservation_id", res.ID, "org_id", in.OrgID, "provider_id", in.ProviderID,
		"slot_start", in.SlotStart)

	result := &ReserveResult{ReservationID: res.ID, OrgID: in.OrgID, OTPRequired: true}
	if winner := s.store(ctx, in.RequestID, cachedOutcome{Reserve: result}); winner.Reserve != nil {
		return winner.Reserve, nil
	}
	return result, nil
}

// ConfirmBooking verifies the OTP and runs the finalization transaction.
// The previously issued code is consumed by any attempt, pass or fail; a
// failed attempt under the limit requires a reissued code.
func (s *Service) ConfirmBooking(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("reserve.reservation_id", in.ReservationID.String()))
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("confirm", time.Since(start).Seconds()) }()

	if in.RequestID == "" {
		return nil, &InvalidInputError{Detail: "requestId is required"}
	}

	if outcome, ok := s.replay(ctx, in.RequestID); ok {
		s.metrics.ObserveConfirm("replayed")
		return outcome.Confirm, codeError(outcome.ErrCode)
	}

	res, err := s.repo.GetReservation(ctx, in.ReservationID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			s.metrics.ObserveConfirm("not_found")
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("%w: load reservation: %v", ErrUnavailable, err)
	}

	switch res.State {
	case StateCommitted:
		// Late redelivery past the cache window: the appointment already
		// exists, return it rather than failing the caller.
		appt, err := s.repo.GetAppointmentByReservation(ctx, res.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: load committed appointment: %v", ErrUnavailable, err)
		}
		return &ConfirmResult{AppointmentID: appt.ID, OrgID: appt.OrgID, Status: string(appt.Status)}, nil
	case StateExpired:
		s.metrics.ObserveConfirm("otp_expired")
		return nil, ErrOTPExpired
	case StateFailed:
		s.metrics.ObserveConfirm("not_found")
		return nil, ErrReservationNotFound
	}

	if time.Now().After(res.OTPExpiresAt) {
		s.expireReservation(ctx, res, "confirm_after_expiry")
		s.metrics.ObserveConfirm("otp_expired")
		s.store(ctx, in.RequestID, cachedOutcome{ErrCode: CodeOTPExpired})
		return nil, ErrOTPExpired
	}

	key := res.SlotKey()

	// A VERIFIED reservation already proved its code; it only reaches this
	// path when an earlier finalization attempt failed, so skip straight to
	// the retry.
	if res.State == StateHeld {
		hash, attempts, err := s.repo.ConsumeOTP(ctx, res.ID)
		if err != nil {
			if errors.Is(err, ErrReservationNotFound) {
				s.metrics.ObserveConfirm("not_found")
				return nil, ErrReservationNotFound
			}
			return nil, fmt.Errorf("%w: consume otp: %v", ErrUnavailable, err)
		}

		if !VerifyOTP(hash, in.OTPCode) {
			reason := "mismatch"
			if hash == "" {
				reason = "consumed"
			}
			s.metrics.ObserveOTPFailure(reason)

			if attempts >= s.cfg.MaxOTPAttempts {
				s.failReservation(ctx, res)
				s.metrics.ObserveConfirm("max_attempts")
				s.store(ctx, in.RequestID, cachedOutcome{ErrCode: CodeMaxAttempts})
				return nil, ErrMaxAttempts
			}

			s.metrics.ObserveConfirm("otp_invalid")
			s.store(ctx, in.RequestID, cachedOutcome{ErrCode: CodeOTPInvalid})
			return nil, ErrOTPInvalid
		}

		if _, err := s.repo.UpdateReservationState(ctx, res.ID, StateHeld, StateVerified); err != nil {
			if errors.Is(err, ErrStateConflict) {
				// The reaper got there first.
				s.metrics.ObserveConfirm("otp_expired")
				return nil, ErrOTPExpired
			}
			return nil, fmt.Errorf("%w: mark verified: %v", ErrUnavailable, err)
		}
		res.State = StateVerified
		s.logEvent(ctx, res.ID, EventReservationVerified, nil)

		// One lock extension so the caller can finish confirming.
		if err := s.locker.Refresh(ctx, res.OrgID, key.ProviderID, key.Start, key.End, res.LockToken, s.cfg.LockExtension); err != nil {
			// The partial unique index still guards the slot; log and go on.
			s.logger.Warn("slot lock refresh failed", "reservation_id", res.ID, "error", err)
		}
	}

	var appt *Appointment
	err = s.withRetry(ctx, func() error {
		var ferr error
		appt, ferr = s.repo.Finalize(ctx, res)
		return ferr
	})
	if err != nil {
		if errors.Is(err, ErrStateConflict) {
			s.metrics.ObserveConfirm("otp_expired")
			return nil, ErrOTPExpired
		}
		if errors.Is(err, ErrSlotTaken) {
			// The appointment index caught a steal despite the verified
			// reservation. Retrying can never succeed, so retire the claim
			// and tell the caller the slot is gone.
			s.expireReservation(ctx, res, "slot_taken_at_commit")
			s.metrics.ObserveConfirm("slot_unavailable")
			s.store(ctx, in.RequestID, cachedOutcome{ErrCode: CodeSlotUnavailable})
			return nil, ErrSlotUnavailable
		}
		// Reservation stays VERIFIED; the caller can retry without losing
		// the slot.
		return nil, fmt.Errorf("%w: finalize booking: %v", ErrUnavailable, err)
	}

	// The appointment row owns the slot key from here on.
	s.releaseLock(ctx, res.OrgID, key, res.LockToken)

	s.logEvent(ctx, res.ID, EventReservationCommitted, map[string]any{
		"appointment_id": appt.ID.String(),
	})

	if s.notifier != nil {
		providerName := ""
		if p, err := s.repo.GetProvider(ctx, res.OrgID, res.ProviderID); err == nil {
			providerName = p.Name
		}
		s.notifier.AppointmentCommitted(ctx, CommitEvent{
			AppointmentID: appt.ID,
			OrgID:         appt.OrgID,
			ContactPhone:  res.ContactPhone,
			ProviderName:  providerName,
			SlotStart:     res.SlotStart,
		})
	}

	s.metrics.ObserveConfirm("ok")
	s.logger.Info("booking committed",
		"reservation_id", res.ID, "appointment_id", appt.ID, "org_id", res.OrgID)

	result := &ConfirmResult{AppointmentID: appt.ID, OrgID: appt.OrgID, Status: string(AppointmentConfirmed)}
	if winner := s.store(ctx, in.RequestID, cachedOutcome{Confirm: result}); winner.Confirm != nil {
		return winner.Confirm, nil
	}
	return result, nil
}

// ReissueOTP installs a fresh code on a live reservation after a failed
// attempt consumed the previous one. The attempt budget carries over.
func (s *Service) ReissueOTP(ctx context.Context, reservationID uuid.UUID) error {
	ctx, span := bookingTracer.Start(ctx, "booking.reissue_otp")
	defer span.End()

	res, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if !res.State.Live() {
		return ErrReservationNotFound
	}
	if time.Now().After(res.OTPExpiresAt) {
		s.expireReservation(ctx, res, "reissue_after_expiry")
		return ErrOTPExpired
	}
	if res.OTPAttempts >= s.cfg.MaxOTPAttempts {
		return ErrMaxAttempts
	}

	code, hash, err := GenerateOTP()
	if err != nil {
		return fmt.Errorf("%w: issue otp: %v", ErrUnavailable, err)
	}
	if err := s.repo.StoreOTP(ctx, res.ID, hash, res.OTPExpiresAt); err != nil {
		return fmt.Errorf("%w: store otp: %v", ErrUnavailable, err)
	}

	s.logEvent(ctx, res.ID, EventOTPReissued, map[string]any{"attempts": res.OTPAttempts})

	if s.notifier != nil {
		s.notifier.OTPIssued(ctx, res.OrgID, res.ContactPhone, code)
	}
	return nil
}

// GetReservationStatus returns a reservation scoped to its org; a foreign
// org id, or an org disagreeing with the request tenancy, reads as not
// found.
func (s *Service) GetReservationStatus(ctx context.Context, orgID, id uuid.UUID) (*Reservation, error) {
	if ctxOrg, ok := tenancy.OrgIDFromContext(ctx); ok && ctxOrg != orgID {
		return nil, ErrReservationNotFound
	}
	return s.repo.GetReservationForOrg(ctx, orgID, id)
}

func (s *Service) GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	if ctxOrg, ok := tenancy.OrgIDFromContext(ctx); ok && ctxOrg != orgID {
		return nil, ErrAppointmentNotFound
	}
	return s.repo.GetAppointment(ctx, orgID, id)
}

// ExpireOverdueReservations is the reaper entry point. It only touches rows
// strictly past expiry plus the grace period and goes through the same
// conditional transition as the live confirm path, so a commit/reap race
// resolves to whichever lands first.
func (s *Service) ExpireOverdueReservations(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.ReaperGrace)

	overdue, err := s.repo.FindExpired(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("find overdue reservations: %w", err)
	}

	expired := 0
	for i := range overdue {
		res := &overdue[i]
		if _, err := s.repo.UpdateReservationState(ctx, res.ID, res.State, StateExpired); err != nil {
			if errors.Is(err, ErrStateConflict) || errors.Is(err, ErrReservationNotFound) {
				continue
			}
			s.logger.Error("failed to expire reservation", "reservation_id", res.ID, "error", err)
			continue
		}
		s.releaseLock(ctx, res.OrgID, res.SlotKey(), res.LockToken)
		s.logEvent(ctx, res.ID, EventReservationExpired, map[string]any{"reason": "reaper"})
		expired++
	}

	s.metrics.ObserveReaped(expired)
	return expired, nil
}

// Internal helpers

func (s *Service) expireReservation(ctx context.Context, res *Reservation, reason string) {
	if _, err := s.repo.UpdateReservationState(ctx, res.ID, res.State, StateExpired); err != nil {
		if !errors.Is(err, ErrStateConflict) && !errors.Is(err, ErrReservationNotFound) {
			s.logger.Error("failed to expire reservation", "reservation_id", res.ID, "error", err)
		}
		return
	}
	s.releaseLock(ctx, res.OrgID, res.SlotKey(), res.LockToken)
	s.logEvent(ctx, res.ID, EventReservationExpired, map[string]any{"reason": reason})
}

// failReservation terminates a reservation that burned its attempt budget
// and frees the slot immediately rather than waiting out the TTL.
func (s *Service) failReservation(ctx context.Context, res *Reservation) {
	if _, err := s.repo.UpdateReservationState(ctx, res.ID, StateHeld, StateFailed); err != nil {
		if !errors.Is(err, ErrStateConflict) && !errors.Is(err, ErrReservationNotFound) {
			s.logger.Error("failed to fail reservation", "reservation_id", res.ID, "error", err)
		}
		return
	}
	s.releaseLock(ctx, res.OrgID, res.SlotKey(), res.LockToken)
	s.logEvent(ctx, res.ID, EventReservationFailed, map[string]any{"reason": "max_otp_attempts"})
}

func (s *Service) releaseLock(ctx context.Context, orgID uuid.UUID, key SlotKey, token string) {
	if token == "" {
		return
	}
	if err := s.locker.Release(ctx, orgID, key.ProviderID, key.Start, key.End, token); err != nil {
		s.logger.Warn("slot lock release failed", "org_id", orgID, "slot", key.String(), "error", err)
	}
}

// withRetry retries transient infrastructure failures with bounded
// exponential backoff. Domain errors pass through untouched.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	const maxAttempts = 3
	backoff := 50 * time.Millisecond

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isTransient(err error) bool {
	for _, domain := range []error{
		ErrOrgNotFound, ErrProviderNotFound, ErrReservationNotFound,
		ErrAppointmentNotFound, ErrSlotTaken, ErrContactBusy, ErrStateConflict,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, domain) {
			return false
		}
	}
	return true
}

func (s *Service) replay(ctx context.Context, requestID string) (*cachedOutcome, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, found, err := s.cache.Get(ctx, requestID)
	if err != nil {
		s.logger.Warn("idempotency cache read failed", "request_id", requestID, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var outcome cachedOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		s.logger.Warn("idempotency cache entry corrupt", "request_id", requestID, "error", err)
		return nil, false
	}
	return &outcome, true
}

// store records the outcome for a request id and returns the winning entry,
// which may be a concurrent duplicate's.
func (s *Service) store(ctx context.Context, requestID string, outcome cachedOutcome) cachedOutcome {
	if s.cache == nil {
		return outcome
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return outcome
	}
	winner, err := s.cache.PutIfAbsent(ctx, requestID, payload)
	if err != nil {
		s.logger.Warn("idempotency cache write failed", "request_id", requestID, "error", err)
		return outcome
	}
	var stored cachedOutcome
	if err := json.Unmarshal(winner, &stored); err != nil {
		return outcome
	}
	return stored
}

func codeError(code string) error {
	switch code {
	case "":
		return nil
	case CodeSlotUnavailable:
		return ErrSlotUnavailable
	case CodeOTPInvalid:
		return ErrOTPInvalid
	case CodeOTPExpired:
		return ErrOTPExpired
	case CodeMaxAttempts:
		return ErrMaxAttempts
	case CodeReservationNotFound:
		return ErrReservationNotFound
	default:
		return ErrUnavailable
	}
}

func (s *Service) logEvent(ctx context.Context, reservationID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	resID := reservationID
	ev := BookingEvent{
		EventType:     eventType,
		ReservationID: &resID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("failed to insert booking event",
			"event_type", eventType, "reservation_id", reservationID, "error", err)
	}
}
