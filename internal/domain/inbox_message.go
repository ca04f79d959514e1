package domain

import "time"

type DeliveryStatus string

const (
	DeliveryStatusNew       DeliveryStatus = "NEW"
	DeliveryStatusProcessed DeliveryStatus = "PROCESSED"
)

// WebhookDelivery is the inbox record of one applied notification. The pair
// (PaymentID, Status) is unique, so a repeated delivery is detected before it
// has any effect. processed_at is stamped in SQL when the delivery is marked
// PROCESSED and is never read back.
type WebhookDelivery struct {
	ID         string
	PaymentID  string
	Status     string
	OrderID    int64
	Payload    []byte
	State      DeliveryStatus
	ReceivedAt time.Time
}
