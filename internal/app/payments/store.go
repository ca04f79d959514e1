package payments

import (
	"context"

	"merchantpay/internal/domain"
)

// Tx is the unit of work a checkout or a notification runs in. All writes made
// through one Tx are committed together or not at all.
type Tx interface {
	// GetOrderForUpdate locks the order row until the transaction ends.
	GetOrderForUpdate(ctx context.Context, orderID int64) (*domain.Order, error)
	SetTransactionID(ctx context.Context, orderID int64, transactionID string) error
	SetPaymentID(ctx context.Context, orderID int64, paymentID string) error
	// CompareAndSetStatus fails with domain.ErrInvalidTransition when the order
	// is no longer in status from.
	CompareAndSetStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus) error
	AddNote(ctx context.Context, note *domain.OrderNote) error
	ReduceStock(ctx context.Context, orderID int64) error
	ClearCart(ctx context.Context, orderID int64) error
	// RecordDelivery fails with domain.ErrDeliveryAlreadyProcessed for a
	// (payment id, status) pair that was seen before.
	RecordDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	MarkDeliveryProcessed(ctx context.Context, deliveryID string) error
	EnqueueMessage(ctx context.Context, msg *domain.OutboxMessage) error
}

type Store interface {
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
