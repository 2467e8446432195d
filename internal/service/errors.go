package service

import "errors"

var (
	ErrUnauthenticated          = errors.New("not authenticated")
	ErrInvalidState             = errors.New("invalid or expired oauth state")
	ErrServiceUnavailable       = errors.New("one or more services are unavailable")
	ErrProductUnavailable       = errors.New("one or more products are unavailable")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrMultiSellerNotSupported  = errors.New("items from more than one seller are not supported")
	ErrSellerNotConnected       = errors.New("seller has not connected a mercado pago account")
	ErrSlotFull                 = errors.New("time slot is full")
	ErrSignatureInvalid         = errors.New("webhook signature is invalid")
	ErrMalformedWebhookPayload  = errors.New("malformed webhook payload")
	ErrMissingBaseURL           = errors.New("could not determine app base url")
	ErrAppointmentLocked        = errors.New("appointment can no longer be changed")
	ErrAppointmentNotFound      = errors.New("appointment not found")
	ErrInvalidAppointmentStatus = errors.New("appointment is not in the required status")
	ErrInvalidRequest           = errors.New("invalid request")
)
