package domain

import (
	"fmt"
	"net/url"
)

// NotificationStatus is the payment outcome reported by the processor. Any
// value it sends that is not known here maps to StatusUnrecognized, which is
// handled as a failed payment.
type NotificationStatus int

const (
	StatusUnrecognized NotificationStatus = iota
	StatusPaid
	StatusPartial
	StatusCancelled
)

func ParseNotificationStatus(raw string) NotificationStatus {
	switch raw {
	case "paid":
		return StatusPaid
	case "partial":
		return StatusPartial
	case "cancelled":
		return StatusCancelled
	default:
		return StatusUnrecognized
	}
}

func (s NotificationStatus) String() string {
	switch s {
	case StatusPaid:
		return "paid"
	case StatusPartial:
		return "partial"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unrecognized"
	}
}

// Notification is a verified payment notification.
type Notification struct {
	Status      NotificationStatus
	RawStatus   string
	PaymentID   string
	Correlation Correlation
}

// ParseNotification decodes the form encoded notification body. It must only
// be called on a body whose signature has already been checked.
func ParseNotification(body []byte) (*Notification, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	paymentID := form.Get("payment_id")
	if paymentID == "" {
		return nil, fmt.Errorf("%w: missing payment_id", ErrMalformedPayload)
	}

	correlation, err := DecodeCorrelation(form.Get("data"))
	if err != nil {
		return nil, err
	}

	raw := form.Get("status")
	return &Notification{
		Status:      ParseNotificationStatus(raw),
		RawStatus:   raw,
		PaymentID:   paymentID,
		Correlation: correlation,
	}, nil
}
