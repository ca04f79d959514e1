package domain

import (
	"crypto/subtle"
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOnHold    OrderStatus = "on-hold"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether a notification may still move the order.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// Order is owned by the host shop. This service only changes its status and
// attaches the remote transaction and payment identifiers.
type Order struct {
	ID            int64
	Key           string
	Total         float64
	Currency      string
	Status        OrderStatus
	TransactionID string
	PaymentID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MatchesKey compares the stored order key with the one echoed back by the
// payment processor in constant time.
func (o *Order) MatchesKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(o.Key), []byte(key)) == 1
}

func (o *Order) CanTransitionTo(next OrderStatus) bool {
	if o.Status.IsTerminal() || o.Status == next {
		return false
	}
	switch next {
	case OrderStatusOnHold:
		return o.Status == OrderStatusPending
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed:
		return o.Status == OrderStatusPending || o.Status == OrderStatusOnHold
	}
	return false
}

func (o *Order) TransitionTo(next OrderStatus) error {
	if !o.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return nil
}

type OrderNote struct {
	OrderID         int64
	Text            string
	CustomerVisible bool
	CreatedAt       time.Time
}

// CheckoutResult is what the shopper needs to continue paying on the
// processor's side.
type CheckoutResult struct {
	OrderID       int64
	TransactionID string
	RedirectURL   string
}
