package domain

import "time"

// CheckoutRequestedEvent is consumed from Kafka when the shop starts a
// checkout asynchronously.
type CheckoutRequestedEvent struct {
	OrderID  int64  `json:"order_id"`
	OrderKey string `json:"order_key"`
}

// CheckoutCreatedEvent is published once the processor accepted the order.
type CheckoutCreatedEvent struct {
	OrderID       int64     `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	RedirectURL   string    `json:"redirect_url"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentStatusChangedEvent is published for every applied notification so
// that fulfillment can react to it.
type PaymentStatusChangedEvent struct {
	OrderID        int64     `json:"order_id"`
	PaymentID      string    `json:"payment_id"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	ReportedStatus string    `json:"reported_status"`
	Timestamp      time.Time `json:"timestamp"`
}
