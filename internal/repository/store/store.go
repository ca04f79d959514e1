// Package store runs checkout and notification units of work against
// Postgres, one database transaction per unit.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"merchantpay/internal/app/payments"
	"merchantpay/internal/domain"
)

type OrderRepository interface {
	GetByIDTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Order, error)
	GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id int64) (*domain.Order, error)
	SetTransactionIDTx(ctx context.Context, querier domain.Querier, id int64, transactionID string) error
	SetPaymentIDTx(ctx context.Context, querier domain.Querier, id int64, paymentID string) error
	CompareAndSetStatusTx(ctx context.Context, querier domain.Querier, id int64, from, to domain.OrderStatus) error
	AddNoteTx(ctx context.Context, querier domain.Querier, note *domain.OrderNote) error
	ReduceStockTx(ctx context.Context, querier domain.Querier, id int64) error
	ClearCartTx(ctx context.Context, querier domain.Querier, id int64) error
}

type InboxRepository interface {
	CreateDeliveryTx(ctx context.Context, querier domain.Querier, d *domain.WebhookDelivery) error
	MarkProcessedTx(ctx context.Context, querier domain.Querier, id string) error
}

type OutboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
}

type Store struct {
	db         *sql.DB
	orderRepo  OrderRepository
	inboxRepo  InboxRepository
	outboxRepo OutboxRepository
	logger     *zap.Logger
}

var _ payments.Store = (*Store)(nil)

func New(db *sql.DB, orderRepo OrderRepository, inboxRepo InboxRepository, outboxRepo OutboxRepository, logger *zap.Logger) *Store {
	return &Store{
		db:         db,
		orderRepo:  orderRepo,
		inboxRepo:  inboxRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.orderRepo.GetByIDTx(ctx, s.db, orderID)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx payments.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Panic during transaction, rolling back")
			_ = sqlTx.Rollback()
			panic(p)
		} else if err != nil {
			s.logger.Debug("Rolling back transaction", zap.Error(err))
			_ = sqlTx.Rollback()
		} else {
			err = sqlTx.Commit()
			if err != nil {
				s.logger.Error("Failed to commit transaction", zap.Error(err))
				err = fmt.Errorf("failed to commit transaction: %w", err)
			}
		}
	}()

	err = fn(ctx, &tx{Tx: sqlTx, store: s})
	return err
}

type tx struct {
	*sql.Tx
	store *Store
}

func (t *tx) GetOrderForUpdate(ctx context.Context, orderID int64) (*domain.Order, error) {
	return t.store.orderRepo.GetByIDForUpdateTx(ctx, t.Tx, orderID)
}

func (t *tx) SetTransactionID(ctx context.Context, orderID int64, transactionID string) error {
	return t.store.orderRepo.SetTransactionIDTx(ctx, t.Tx, orderID, transactionID)
}

func (t *tx) SetPaymentID(ctx context.Context, orderID int64, paymentID string) error {
	return t.store.orderRepo.SetPaymentIDTx(ctx, t.Tx, orderID, paymentID)
}

func (t *tx) CompareAndSetStatus(ctx context.Context, orderID int64, from, to domain.OrderStatus) error {
	return t.store.orderRepo.CompareAndSetStatusTx(ctx, t.Tx, orderID, from, to)
}

func (t *tx) AddNote(ctx context.Context, note *domain.OrderNote) error {
	return t.store.orderRepo.AddNoteTx(ctx, t.Tx, note)
}

func (t *tx) ReduceStock(ctx context.Context, orderID int64) error {
	return t.store.orderRepo.ReduceStockTx(ctx, t.Tx, orderID)
}

func (t *tx) ClearCart(ctx context.Context, orderID int64) error {
	return t.store.orderRepo.ClearCartTx(ctx, t.Tx, orderID)
}

func (t *tx) RecordDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	return t.store.inboxRepo.CreateDeliveryTx(ctx, t.Tx, delivery)
}

func (t *tx) MarkDeliveryProcessed(ctx context.Context, deliveryID string) error {
	return t.store.inboxRepo.MarkProcessedTx(ctx, t.Tx, deliveryID)
}

func (t *tx) EnqueueMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	return t.store.outboxRepo.CreateMessageTx(ctx, t.Tx, msg)
}
