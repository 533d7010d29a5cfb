package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithDB allows injecting a mock connection in tests.
func NewPgRepositoryWithDB(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const reservationColumns = `id, org_id, provider_id, slot_start, slot_end,
		contact_name, contact_phone, contact_email, state,
		otp_code_hash, otp_attempts, otp_expires_at, lock_token,
		created_at, updated_at`

// Helpers

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var email *string

	err := row.Scan(
		&r.ID,
		&r.OrgID,
		&r.ProviderID,
		&r.SlotStart,
		&r.SlotEnd,
		&r.ContactName,
		&r.ContactPhone,
		&email,
		&r.State,
		&r.OTPCodeHash,
		&r.OTPAttempts,
		&r.OTPExpiresAt,
		&r.LockToken,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	r.ContactEmail = email
	return &r, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.OrgID,
		&a.ContactID,
		&a.ProviderID,
		&a.SlotStart,
		&a.SlotEnd,
		&a.ReservationID,
		&a.Status,
		&a.ConfirmationSent,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, active, created_at
		FROM organizations
		WHERE id = $1
	`, id)

	var org Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Active, &org.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *PgRepository) GetProvider(ctx context.Context, orgID, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, org_id, name, created_at
		FROM providers
		WHERE org_id = $1 AND id = $2
	`, orgID, id)

	var p Provider
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) SlotInCatalog(ctx context.Context, orgID uuid.UUID, key SlotKey) (bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM slots
			WHERE org_id = $1 AND provider_id = $2 AND start_time = $3 AND end_time = $4
		)
	`, orgID, key.ProviderID, key.Start, key.End)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) HasLiveReservationForPhone(ctx context.Context, orgID uuid.UUID, phone string) (bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE org_id = $1 AND contact_phone = $2 AND state IN ('held', 'verified')
		)
	`, orgID, phone)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) HasAppointmentForSlot(ctx context.Context, orgID uuid.UUID, key SlotKey) (bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE org_id = $1 AND provider_id = $2 AND slot_start = $3 AND slot_end = $4
			  AND status = 'confirmed'
		)
	`, orgID, key.ProviderID, key.Start, key.End)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) CreateHeldReservation(ctx context.Context, res *Reservation) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO reservations (
			id, org_id, provider_id, slot_start, slot_end,
			contact_name, contact_phone, contact_email, state,
			otp_code_hash, otp_attempts, otp_expires_at, lock_token,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'held', $9, 0, $10, $11, now(), now())
		RETURNING created_at, updated_at
	`, res.ID, res.OrgID, res.ProviderID, res.SlotStart, res.SlotEnd,
		res.ContactName, res.ContactPhone, res.ContactEmail,
		res.OTPCodeHash, res.OTPExpiresAt, res.LockToken)

	if err := row.Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Two partial unique indexes guard this insert; which one fired
			// decides the caller-facing error.
			if pgErr.ConstraintName == "uniq_live_reservation_per_phone" {
				return ErrContactBusy
			}
			return ErrSlotTaken
		}
		return err
	}

	res.State = StateHeld
	res.OTPAttempts = 0
	return nil
}

func (r *PgRepository) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (r *PgRepository) GetReservationForOrg(ctx context.Context, orgID, id uuid.UUID) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE org_id = $1 AND id = $2
	`, orgID, id)
	return scanReservation(row)
}

func (r *PgRepository) UpdateReservationState(ctx context.Context, id uuid.UUID, from, to ReservationState) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE reservations
		SET state = $3, updated_at = now()
		WHERE id = $1 AND state = $2
		RETURNING `+reservationColumns+`
	`, id, from, to)

	res, err := scanReservation(row)
	if errors.Is(err, ErrReservationNotFound) {
		// Distinguish a missing row from one that moved on concurrently.
		if _, getErr := r.GetReservation(ctx, id); getErr == nil {
			return nil, ErrStateConflict
		}
		return nil, ErrReservationNotFound
	}
	return res, err
}

func (r *PgRepository) ConsumeOTP(ctx context.Context, id uuid.UUID) (string, int, error) {
	// Single statement so the old hash is read and cleared atomically.
	row := r.db.QueryRow(ctx, `
		UPDATE reservations r
		SET otp_code_hash = '', otp_attempts = r.otp_attempts + 1, updated_at = now()
		FROM (SELECT id, otp_code_hash FROM reservations WHERE id = $1 FOR UPDATE) prev
		WHERE r.id = prev.id AND r.state IN ('held', 'verified')
		RETURNING prev.otp_code_hash, r.otp_attempts
	`, id)

	var hash string
	var attempts int
	if err := row.Scan(&hash, &attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrReservationNotFound
		}
		return "", 0, err
	}
	return hash, attempts, nil
}

func (r *PgRepository) StoreOTP(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE reservations
		SET otp_code_hash = $2, otp_expires_at = $3, updated_at = now()
		WHERE id = $1 AND state IN ('held', 'verified')
	`, id, hash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// Finalize is the commit transaction: contact upsert, appointment insert and
// the verified -> committed flip succeed or fail as one unit. A conflict on
// the conditional flip (reaper won the race) rolls everything back.
func (r *PgRepository) Finalize(ctx context.Context, res *Reservation) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var contactID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO contacts (id, org_id, name, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (org_id, phone) DO UPDATE
			SET name = EXCLUDED.name,
			    email = COALESCE(EXCLUDED.email, contacts.email)
		RETURNING id
	`, uuid.New(), res.OrgID, res.ContactName, res.ContactPhone, res.ContactEmail).Scan(&contactID)
	if err != nil {
		return nil, fmt.Errorf("upsert contact: %w", err)
	}

	appt := &Appointment{
		ID:            uuid.New(),
		OrgID:         res.OrgID,
		ContactID:     contactID,
		ProviderID:    res.ProviderID,
		SlotStart:     res.SlotStart,
		SlotEnd:       res.SlotEnd,
		ReservationID: res.ID,
		Status:        AppointmentConfirmed,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, org_id, contact_id, provider_id, slot_start, slot_end,
			reservation_id, status, confirmation_sent, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, now())
		RETURNING created_at
	`, appt.ID, appt.OrgID, appt.ContactID, appt.ProviderID,
		appt.SlotStart, appt.SlotEnd, appt.ReservationID, appt.Status).Scan(&appt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET state = 'committed', updated_at = now()
		WHERE id = $1 AND state = 'verified'
	`, res.ID)
	if err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrStateConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit finalize tx: %w", err)
	}

	res.State = StateCommitted
	return appt, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, org_id, contact_id, provider_id, slot_start, slot_end,
		       reservation_id, status, confirmation_sent, created_at
		FROM appointments
		WHERE org_id = $1 AND id = $2
	`, orgID, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByReservation(ctx context.Context, reservationID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, org_id, contact_id, provider_id, slot_start, slot_end,
		       reservation_id, status, confirmation_sent, created_at
		FROM appointments
		WHERE reservation_id = $1
	`, reservationID)
	return scanAppointment(row)
}

func (r *PgRepository) MarkConfirmationSent(ctx context.Context, appointmentID uuid.UUID, sent bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET confirmation_sent = $2
		WHERE id = $1
	`, appointmentID, sent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE state IN ('held', 'verified') AND otp_expires_at < $1
		ORDER BY otp_expires_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO booking_events (event_type, reservation_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, ev.EventType, ev.ReservationID, ev.Payload)
	return err
}
