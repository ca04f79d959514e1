package inbox_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"merchantpay/internal/domain"
)

type inboxRepository struct{}

func NewInboxRepository() *inboxRepository {
	return &inboxRepository{}
}

// CreateDeliveryTx stores a webhook delivery. A (payment_id, status) pair that
// is already stored yields domain.ErrDeliveryAlreadyProcessed.
func (r *inboxRepository) CreateDeliveryTx(ctx context.Context, querier domain.Querier, d *domain.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (id, payment_id, status, order_id, payload, state, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_id, status) DO NOTHING
		RETURNING id
	`
	var id string
	err := querier.QueryRowContext(ctx, query,
		d.ID,
		d.PaymentID,
		d.Status,
		d.OrderID,
		d.Payload,
		d.State,
		d.ReceivedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: payment %s status %s", domain.ErrDeliveryAlreadyProcessed, d.PaymentID, d.Status)
		}
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

func (r *inboxRepository) MarkProcessedTx(ctx context.Context, querier domain.Querier, id string) error {
	query := `
		UPDATE webhook_deliveries
		SET state = $1, processed_at = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, domain.DeliveryStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for webhook delivery update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("webhook delivery with id %s not found for status update", id)
	}
	return nil
}
