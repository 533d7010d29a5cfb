// Package notify bridges committed bookings to the external SMS/email
// collaborator. Delivery is best-effort: a provider outage never fails or
// rolls back a booking, it only leaves confirmation_sent unset for the
// surrounding system to retry.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voicedesk/reservation-engine/internal/booking"
	"github.com/voicedesk/reservation-engine/pkg/logging"
)

// SMSSender is the boundary to the out-of-scope delivery transport.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ConfirmationStore records whether the confirmation message went out.
type ConfirmationStore interface {
	MarkConfirmationSent(ctx context.Context, appointmentID uuid.UUID, sent bool) error
}

type Dispatcher struct {
	sender SMSSender
	store  ConfirmationStore
	logger *logging.Logger
}

func NewDispatcher(sender SMSSender, store ConfirmationStore, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{sender: sender, store: store, logger: logger.Named("notify")}
}

// AppointmentCommitted sends the booking confirmation. Any failure is
// logged and swallowed; the appointment stands either way.
func (d *Dispatcher) AppointmentCommitted(ctx context.Context, evt booking.CommitEvent) {
	if d.sender == nil {
		d.logger.Debug("no sms sender configured, skipping confirmation",
			"appointment_id", evt.AppointmentID)
		return
	}

	body := fmt.Sprintf("Your appointment is confirmed for %s.",
		evt.SlotStart.Format("Monday, January 2 at 3:04 PM"))
	if evt.ProviderName != "" {
		body = fmt.Sprintf("Your appointment with %s is confirmed for %s.",
			evt.ProviderName, evt.SlotStart.Format("Monday, January 2 at 3:04 PM"))
	}

	if err := d.sender.SendSMS(ctx, evt.ContactPhone, body); err != nil {
		d.logger.Error("confirmation delivery failed, booking stands",
			"appointment_id", evt.AppointmentID, "org_id", evt.OrgID, "error", err)
		return
	}

	if d.store != nil {
		if err := d.store.MarkConfirmationSent(ctx, evt.AppointmentID, true); err != nil {
			d.logger.Error("failed to record confirmation_sent",
				"appointment_id", evt.AppointmentID, "error", err)
		}
	}

	d.logger.Info("confirmation sent",
		"appointment_id", evt.AppointmentID, "org_id", evt.OrgID)
}

// OTPIssued texts the one-time code the caller reads back over the call.
func (d *Dispatcher) OTPIssued(ctx context.Context, orgID uuid.UUID, phone, code string) {
	if d.sender == nil {
		d.logger.Debug("no sms sender configured, skipping otp delivery", "org_id", orgID)
		return
	}

	body := fmt.Sprintf("Your confirmation code is %s. It expires in 10 minutes.", code)
	if err := d.sender.SendSMS(ctx, phone, body); err != nil {
		d.logger.Error("otp delivery failed", "org_id", orgID, "error", err)
	}
}
