package domain

import "errors"

// Outbound (order submitter) failures.
var (
	ErrTransport           = errors.New("merchant api transport failure")
	ErrRemoteRejected      = errors.New("merchant api rejected the request")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotPending     = errors.New("order is not pending payment")
	ErrUnsupportedCurrency = errors.New("currency not supported by merchant api")
)

// Inbound (payment notification) rejections. None of them mutate state.
var (
	ErrAuthenticationFailed = errors.New("notification signature mismatch")
	ErrMalformedPayload     = errors.New("malformed notification payload")
	ErrCorrelationMismatch  = errors.New("notification does not match any order")
)

var (
	ErrInvalidTransition        = errors.New("invalid order status transition")
	ErrDeliveryAlreadyProcessed = errors.New("notification delivery already processed")
)
