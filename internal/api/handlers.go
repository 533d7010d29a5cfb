package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voicedesk/reservation-engine/internal/booking"
	"github.com/voicedesk/reservation-engine/internal/tenancy"
)

// BookingService is what the handlers need from the booking layer.
type BookingService interface {
	RequestBooking(ctx context.Context, in booking.ReserveInput) (*booking.ReserveResult, error)
	ConfirmBooking(ctx context.Context, in booking.ConfirmInput) (*booking.ConfirmResult, error)
	ReissueOTP(ctx context.Context, reservationID uuid.UUID) error
	GetReservationStatus(ctx context.Context, orgID, id uuid.UUID) (*booking.Reservation, error)
	GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*booking.Appointment, error)
}

func reserveHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "could not parse JSON body", "")
			return
		}

		if req.RequestID == "" {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "requestId is required", req.OrgID)
			return
		}

		orgID, err := uuid.Parse(req.OrgID)
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "orgId must be a valid UUID", req.OrgID)
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "providerId must be a valid UUID", req.OrgID)
			return
		}
		slotStart, err := time.Parse(time.RFC3339, req.SlotStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "slotStart must be RFC 3339", req.OrgID)
			return
		}
		slotEnd, err := time.Parse(time.RFC3339, req.SlotEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "slotEnd must be RFC 3339", req.OrgID)
			return
		}

		ctx := tenancy.WithOrgID(r.Context(), orgID)

		result, err := svc.RequestBooking(ctx, booking.ReserveInput{
			RequestID:   req.RequestID,
			OrgID:       orgID,
			ProviderID:  providerID,
			SlotStart:   slotStart,
			SlotEnd:     slotEnd,
			CallerPhone: req.CallerPhone,
			CallerName:  req.CallerName,
			CallerEmail: req.CallerEmail,
		})
		if err != nil {
			handleBookingError(w, err, req.OrgID)
			return
		}

		writeJSON(w, http.StatusOK, ReserveResponse{
			OrgID:         result.OrgID,
			ReservationID: result.ReservationID,
			OTPRequired:   result.OTPRequired,
		})
	}
}

func confirmHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "could not parse JSON body", "")
			return
		}

		if req.RequestID == "" {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "requestId is required", "")
			return
		}

		reservationID, err := uuid.Parse(req.ReservationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "reservationId must be a valid UUID", "")
			return
		}

		result, err := svc.ConfirmBooking(r.Context(), booking.ConfirmInput{
			RequestID:     req.RequestID,
			ReservationID: reservationID,
			OTPCode:       req.OTPCode,
		})
		if err != nil {
			handleBookingError(w, err, "")
			return
		}

		writeJSON(w, http.StatusOK, ConfirmResponse{
			OrgID:         result.OrgID,
			AppointmentID: result.AppointmentID,
			Status:        result.Status,
		})
	}
}

func resendCodeHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "id must be a valid UUID", "")
			return
		}

		if err := svc.ReissueOTP(r.Context(), reservationID); err != nil {
			handleBookingError(w, err, "")
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"otpRequired": true})
	}
}

func getReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "id must be a valid UUID", "")
			return
		}
		orgID, err := uuid.Parse(r.URL.Query().Get("orgId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "orgId query parameter is required", "")
			return
		}

		ctx := tenancy.WithOrgID(r.Context(), orgID)
		res, err := svc.GetReservationStatus(ctx, orgID, id)
		if err != nil {
			handleBookingError(w, err, orgID.String())
			return
		}

		writeJSON(w, http.StatusOK, ReservationResponse{
			OrgID:         res.OrgID,
			ReservationID: res.ID,
			ProviderID:    res.ProviderID,
			SlotStart:     res.SlotStart,
			SlotEnd:       res.SlotEnd,
			State:         string(res.State),
			OTPExpiresAt:  res.OTPExpiresAt,
		})
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "id must be a valid UUID", "")
			return
		}
		orgID, err := uuid.Parse(r.URL.Query().Get("orgId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, "orgId query parameter is required", "")
			return
		}

		ctx := tenancy.WithOrgID(r.Context(), orgID)
		appt, err := svc.GetAppointment(ctx, orgID, id)
		if err != nil {
			handleBookingError(w, err, orgID.String())
			return
		}

		writeJSON(w, http.StatusOK, AppointmentResponse{
			OrgID:            appt.OrgID,
			AppointmentID:    appt.ID,
			ProviderID:       appt.ProviderID,
			SlotStart:        appt.SlotStart,
			SlotEnd:          appt.SlotEnd,
			Status:           string(appt.Status),
			ConfirmationSent: appt.ConfirmationSent,
		})
	}
}

// handleBookingError maps service errors to the structured codes the voice
// pipeline translates into prompts. Raw error text never reaches the
// caller for internal failures.
func handleBookingError(w http.ResponseWriter, err error, orgID string) {
	var invalid *booking.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, booking.CodeInvalidInput, invalid.Detail, orgID)
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, booking.CodeSlotUnavailable, "", orgID)
	case errors.Is(err, booking.ErrOTPInvalid):
		writeError(w, http.StatusConflict, booking.CodeOTPInvalid, "", orgID)
	case errors.Is(err, booking.ErrOTPExpired):
		writeError(w, http.StatusConflict, booking.CodeOTPExpired, "", orgID)
	case errors.Is(err, booking.ErrMaxAttempts):
		writeError(w, http.StatusConflict, booking.CodeMaxAttempts, "", orgID)
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, booking.CodeReservationNotFound, "", orgID)
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "APPOINTMENT_NOT_FOUND", "", orgID)
	case errors.Is(err, booking.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, booking.CodeServiceUnavailable, "", orgID)
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "", orgID)
	}
}
