package api

import (
	"time"

	"github.com/google/uuid"
)

type ReserveRequest struct {
	RequestID   string `json:"requestId"`
	OrgID       string `json:"orgId"`
	ProviderID  string `json:"providerId"`
	SlotStart   string `json:"slotStart"`
	SlotEnd     string `json:"slotEnd"`
	CallerPhone string `json:"callerPhone"`
	CallerName  string `json:"callerName"`
	CallerEmail string `json:"callerEmail,omitempty"`
}

type ReserveResponse struct {
	OrgID         uuid.UUID `json:"orgId"`
	ReservationID uuid.UUID `json:"reservationId"`
	OTPRequired   bool      `json:"otpRequired"`
}

type ConfirmRequest struct {
	RequestID     string `json:"requestId"`
	ReservationID string `json:"reservationId"`
	OTPCode       string `json:"otpCode"`
}

type ConfirmResponse struct {
	OrgID         uuid.UUID `json:"orgId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	Status        string    `json:"status"`
}

type ReservationResponse struct {
	OrgID         uuid.UUID `json:"orgId"`
	ReservationID uuid.UUID `json:"reservationId"`
	ProviderID    uuid.UUID `json:"providerId"`
	SlotStart     time.Time `json:"slotStart"`
	SlotEnd       time.Time `json:"slotEnd"`
	State         string    `json:"state"`
	OTPExpiresAt  time.Time `json:"otpExpiresAt"`
}

type AppointmentResponse struct {
	OrgID            uuid.UUID `json:"orgId"`
	AppointmentID    uuid.UUID `json:"appointmentId"`
	ProviderID       uuid.UUID `json:"providerId"`
	SlotStart        time.Time `json:"slotStart"`
	SlotEnd          time.Time `json:"slotEnd"`
	Status           string    `json:"status"`
	ConfirmationSent bool      `json:"confirmationSent"`
}

type ErrorResponse struct {
	OrgID  string `json:"orgId,omitempty"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
