package orders_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"merchantpay/internal/domain"
)

type orderRepository struct{}

func NewOrderRepository() *orderRepository {
	return &orderRepository{}
}

const selectOrder = `
	SELECT id, order_key, total, currency, status, transaction_id, payment_id, created_at, updated_at
	FROM orders
	WHERE id = $1
`

func (r *orderRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Order, error) {
	return r.get(ctx, querier, selectOrder, id)
}

// GetByIDForUpdateTx locks the order row; concurrent notifications for the
// same order are applied one after another.
func (r *orderRepository) GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Order, error) {
	return r.get(ctx, querier, selectOrder+" FOR UPDATE", id)
}

func (r *orderRepository) get(ctx context.Context, querier domain.Querier, query string, id int64) (*domain.Order, error) {
	order := &domain.Order{}
	var transactionID, paymentID sql.NullString
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.Key,
		&order.Total,
		&order.Currency,
		&order.Status,
		&transactionID,
		&paymentID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	order.TransactionID = transactionID.String
	order.PaymentID = paymentID.String
	return order, nil
}

func (r *orderRepository) SetTransactionIDTx(ctx context.Context, querier domain.Querier, id int64, transactionID string) error {
	query := `UPDATE orders SET transaction_id = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, querier, query, id, transactionID, time.Now(), id)
}

func (r *orderRepository) SetPaymentIDTx(ctx context.Context, querier domain.Querier, id int64, paymentID string) error {
	query := `UPDATE orders SET payment_id = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, querier, query, id, paymentID, time.Now(), id)
}

func (r *orderRepository) CompareAndSetStatusTx(ctx context.Context, querier domain.Querier, id int64, from, to domain.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := querier.ExecContext(ctx, query, string(to), time.Now(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update status of order %d: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order status update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: order %d is no longer %s", domain.ErrInvalidTransition, id, from)
	}
	return nil
}

func (r *orderRepository) AddNoteTx(ctx context.Context, querier domain.Querier, note *domain.OrderNote) error {
	query := `
		INSERT INTO order_notes (order_id, note, customer_visible, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := querier.ExecContext(ctx, query, note.OrderID, note.Text, note.CustomerVisible, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add note to order %d: %w", note.OrderID, err)
	}
	return nil
}

// ReduceStockTx decrements managed stock for every item of the order that has
// not been counted yet. Items are flagged so a later call is a no-op.
func (r *orderRepository) ReduceStockTx(ctx context.Context, querier domain.Querier, id int64) error {
	query := `
		WITH items AS (
			UPDATE order_items
			SET stock_reduced = TRUE
			WHERE order_id = $1 AND stock_reduced = FALSE
			RETURNING product_id, quantity
		)
		UPDATE products p
		SET stock = p.stock - i.quantity
		FROM (SELECT product_id, SUM(quantity) AS quantity FROM items GROUP BY product_id) i
		WHERE p.id = i.product_id AND p.stock IS NOT NULL
	`
	if _, err := querier.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to reduce stock for order %d: %w", id, err)
	}
	return nil
}

func (r *orderRepository) ClearCartTx(ctx context.Context, querier domain.Querier, id int64) error {
	if _, err := querier.ExecContext(ctx, `DELETE FROM carts WHERE order_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear cart for order %d: %w", id, err)
	}
	return nil
}

func (r *orderRepository) exec(ctx context.Context, querier domain.Querier, query string, id int64, args ...any) error {
	res, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
