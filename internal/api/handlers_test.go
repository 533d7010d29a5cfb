package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk/reservation-engine/internal/booking"
)

// stubService scripts one response per operation.
type stubService struct {
	reserveResult  *booking.ReserveResult
	reserveErr     error
	confirmResult  *booking.ConfirmResult
	confirmErr     error
	reissueErr     error
	reservation    *booking.Reservation
	reservationErr error
	appointment    *booking.Appointment
	appointmentErr error

	lastReserve booking.ReserveInput
	lastConfirm booking.ConfirmInput
}

func (s *stubService) RequestBooking(ctx context.Context, in booking.ReserveInput) (*booking.ReserveResult, error) {
	s.lastReserve = in
	return s.reserveResult, s.reserveErr
}

func (s *stubService) ConfirmBooking(ctx context.Context, in booking.ConfirmInput) (*booking.ConfirmResult, error) {
	s.lastConfirm = in
	return s.confirmResult, s.confirmErr
}

func (s *stubService) ReissueOTP(ctx context.Context, reservationID uuid.UUID) error {
	return s.reissueErr
}

func (s *stubService) GetReservationStatus(ctx context.Context, orgID, id uuid.UUID) (*booking.Reservation, error) {
	return s.reservation, s.reservationErr
}

func (s *stubService) GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*booking.Appointment, error) {
	return s.appointment, s.appointmentErr
}

func newTestRouter(svc BookingService) http.Handler {
	return NewRouter(RouterConfig{Service: svc, Env: "test", Version: "test"})
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func validReserveRequest() ReserveRequest {
	return ReserveRequest{
		RequestID:   "req-1",
		OrgID:       uuid.NewString(),
		ProviderID:  uuid.NewString(),
		SlotStart:   "2026-09-01T14:00:00Z",
		SlotEnd:     "2026-09-01T14:30:00Z",
		CallerPhone: "(555) 000-1111",
		CallerName:  "Jane Doe",
	}
}

func TestReserveEndpointSuccess(t *testing.T) {
	svc := &stubService{
		reserveResult: &booking.ReserveResult{
			ReservationID: uuid.New(),
			OrgID:         uuid.New(),
			OTPRequired:   true,
		},
	}
	router := newTestRouter(svc)

	req := validReserveRequest()
	rec := postJSON(t, router, "/bookings/reserve", req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReserveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, svc.reserveResult.ReservationID, resp.ReservationID)
	assert.True(t, resp.OTPRequired)

	// Timestamps parse into the service input as RFC 3339.
	assert.Equal(t, req.RequestID, svc.lastReserve.RequestID)
	assert.Equal(t, time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC), svc.lastReserve.SlotStart.UTC())
}

func TestReserveEndpointRequiresRequestID(t *testing.T) {
	router := newTestRouter(&stubService{})

	req := validReserveRequest()
	req.RequestID = ""
	rec := postJSON(t, router, "/bookings/reserve", req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, booking.CodeInvalidInput, resp.Error)
	assert.Equal(t, "requestId is required", resp.Detail)
	assert.Equal(t, req.OrgID, resp.OrgID, "orgId is echoed even on validation failures")
}

func TestReserveEndpointRejectsMalformedFields(t *testing.T) {
	router := newTestRouter(&stubService{})

	cases := []struct {
		name   string
		mutate func(*ReserveRequest)
	}{
		{"bad org uuid", func(r *ReserveRequest) { r.OrgID = "not-a-uuid" }},
		{"bad provider uuid", func(r *ReserveRequest) { r.ProviderID = "nope" }},
		{"bad slot start", func(r *ReserveRequest) { r.SlotStart = "tomorrow at 2" }},
		{"bad slot end", func(r *ReserveRequest) { r.SlotEnd = "30 minutes later" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validReserveRequest()
			tc.mutate(&req)
			rec := postJSON(t, router, "/bookings/reserve", req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, booking.CodeInvalidInput, decodeError(t, rec).Error)
		})
	}
}

func TestReserveEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"slot unavailable", booking.ErrSlotUnavailable, http.StatusConflict, booking.CodeSlotUnavailable},
		{"invalid input", &booking.InvalidInputError{Detail: "callerName is required"}, http.StatusBadRequest, booking.CodeInvalidInput},
		{"backend down", booking.ErrUnavailable, http.StatusServiceUnavailable, booking.CodeServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubService{reserveErr: tc.err})
			rec := postJSON(t, router, "/bookings/reserve", validReserveRequest())
			require.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestConfirmEndpointSuccess(t *testing.T) {
	svc := &stubService{
		confirmResult: &booking.ConfirmResult{
			AppointmentID: uuid.New(),
			OrgID:         uuid.New(),
			Status:        "confirmed",
		},
	}
	router := newTestRouter(svc)

	reservationID := uuid.New()
	rec := postJSON(t, router, "/bookings/confirm", ConfirmRequest{
		RequestID:     "req-2",
		ReservationID: reservationID.String(),
		OTPCode:       "123456",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConfirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, svc.confirmResult.AppointmentID, resp.AppointmentID)
	assert.Equal(t, "confirmed", resp.Status)
	assert.Equal(t, reservationID, svc.lastConfirm.ReservationID)
	assert.Equal(t, "123456", svc.lastConfirm.OTPCode)
}

func TestConfirmEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"wrong code", booking.ErrOTPInvalid, http.StatusConflict, booking.CodeOTPInvalid},
		{"slot stolen before commit", booking.ErrSlotUnavailable, http.StatusConflict, booking.CodeSlotUnavailable},
		{"expired", booking.ErrOTPExpired, http.StatusConflict, booking.CodeOTPExpired},
		{"attempts exhausted", booking.ErrMaxAttempts, http.StatusConflict, booking.CodeMaxAttempts},
		{"unknown reservation", booking.ErrReservationNotFound, http.StatusNotFound, booking.CodeReservationNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubService{confirmErr: tc.err})
			rec := postJSON(t, router, "/bookings/confirm", ConfirmRequest{
				RequestID:     "req-1",
				ReservationID: uuid.NewString(),
				OTPCode:       "000000",
			})
			require.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestConfirmEndpointRejectsBadReservationID(t *testing.T) {
	router := newTestRouter(&stubService{})

	rec := postJSON(t, router, "/bookings/confirm", ConfirmRequest{
		RequestID:     "req-1",
		ReservationID: "garbage",
		OTPCode:       "123456",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, booking.CodeInvalidInput, decodeError(t, rec).Error)
}

func TestResendCodeEndpoint(t *testing.T) {
	router := newTestRouter(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/resend-code", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["otpRequired"])
}

func TestResendCodeEndpointMaxAttempts(t *testing.T) {
	router := newTestRouter(&stubService{reissueErr: booking.ErrMaxAttempts})

	req := httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/resend-code", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, booking.CodeMaxAttempts, decodeError(t, rec).Error)
}

func TestGetReservationEndpoint(t *testing.T) {
	orgID := uuid.New()
	res := &booking.Reservation{
		ID:           uuid.New(),
		OrgID:        orgID,
		ProviderID:   uuid.New(),
		SlotStart:    time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
		SlotEnd:      time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC),
		State:        booking.StateHeld,
		OTPExpiresAt: time.Date(2026, 9, 1, 13, 10, 0, 0, time.UTC),
	}
	router := newTestRouter(&stubService{reservation: res})

	req := httptest.NewRequest(http.MethodGet, "/bookings/"+res.ID.String()+"?orgId="+orgID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReservationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, res.ID, resp.ReservationID)
	assert.Equal(t, "held", resp.State)
}

func TestGetReservationEndpointRequiresOrgID(t *testing.T) {
	router := newTestRouter(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, booking.CodeInvalidInput, decodeError(t, rec).Error)
}

func TestGetReservationEndpointNotFound(t *testing.T) {
	router := newTestRouter(&stubService{reservationErr: booking.ErrReservationNotFound})

	req := httptest.NewRequest(http.MethodGet, "/bookings/"+uuid.NewString()+"?orgId="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, booking.CodeReservationNotFound, decodeError(t, rec).Error)
}

func TestGetAppointmentEndpoint(t *testing.T) {
	orgID := uuid.New()
	appt := &booking.Appointment{
		ID:               uuid.New(),
		OrgID:            orgID,
		ProviderID:       uuid.New(),
		SlotStart:        time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
		SlotEnd:          time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC),
		Status:           booking.AppointmentConfirmed,
		ConfirmationSent: true,
	}
	router := newTestRouter(&stubService{appointment: appt})

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+appt.ID.String()+"?orgId="+orgID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, appt.ID, resp.AppointmentID)
	assert.Equal(t, "confirmed", resp.Status)
	assert.True(t, resp.ConfirmationSent)
}

func TestRequestIDHeaderAssigned(t *testing.T) {
	router := newTestRouter(&stubService{reserveResult: &booking.ReserveResult{}})

	rec := postJSON(t, router, "/bookings/reserve", validReserveRequest())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
