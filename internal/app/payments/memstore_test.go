package payments

import (
	"context"
	"fmt"
	"sync"

	"merchantpay/internal/domain"
)

type deliveryKey struct {
	paymentID string
	status    string
}

type memState struct {
	orders     map[int64]domain.Order
	notes      []domain.OrderNote
	stock      map[int64]int
	carts      map[int64]bool
	deliveries map[deliveryKey]domain.WebhookDelivery
	outbox     []domain.OutboxMessage
}

func (s memState) clone() memState {
	c := memState{
		orders:     make(map[int64]domain.Order, len(s.orders)),
		notes:      append([]domain.OrderNote(nil), s.notes...),
		stock:      make(map[int64]int, len(s.stock)),
		carts:      make(map[int64]bool, len(s.carts)),
		deliveries: make(map[deliveryKey]domain.WebhookDelivery, len(s.deliveries)),
		outbox:     append([]domain.OutboxMessage(nil), s.outbox...),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.deliveries {
		c.deliveries[k] = v
	}
	return c
}

// memStore is an in-memory Store. RunInTx works on a copy of the state and
// only publishes it when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state memState
}

func newMemStore(orders ...domain.Order) *memStore {
	s := &memStore{state: memState{
		orders:     make(map[int64]domain.Order),
		stock:      make(map[int64]int),
		carts:      make(map[int64]bool),
		deliveries: make(map[deliveryKey]domain.WebhookDelivery),
	}}
	for _, o := range orders {
		s.state.orders[o.ID] = o
		s.state.stock[o.ID] = 5
		s.state.carts[o.ID] = true
	}
	return s
}

func (s *memStore) GetOrder(_ context.Context, orderID int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memStore) order(id int64) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.orders[id]
}

func (s *memStore) snapshot() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

type memTx struct {
	state memState
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID int64) (*domain.Order, error) {
	o, ok := t.state.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (t *memTx) SetTransactionID(_ context.Context, orderID int64, transactionID string) error {
	o := t.state.orders[orderID]
	o.TransactionID = transactionID
	t.state.orders[orderID] = o
	return nil
}

func (t *memTx) SetPaymentID(_ context.Context, orderID int64, paymentID string) error {
	o := t.state.orders[orderID]
	o.PaymentID = paymentID
	t.state.orders[orderID] = o
	return nil
}

func (t *memTx) CompareAndSetStatus(_ context.Context, orderID int64, from, to domain.OrderStatus) error {
	o := t.state.orders[orderID]
	if o.Status != from {
		return fmt.Errorf("%w: order %d is %s", domain.ErrInvalidTransition, orderID, o.Status)
	}
	o.Status = to
	t.state.orders[orderID] = o
	return nil
}

func (t *memTx) AddNote(_ context.Context, note *domain.OrderNote) error {
	t.state.notes = append(t.state.notes, *note)
	return nil
}

func (t *memTx) ReduceStock(_ context.Context, orderID int64) error {
	t.state.stock[orderID]--
	return nil
}

func (t *memTx) ClearCart(_ context.Context, orderID int64) error {
	delete(t.state.carts, orderID)
	return nil
}

func (t *memTx) RecordDelivery(_ context.Context, d *domain.WebhookDelivery) error {
	k := deliveryKey{paymentID: d.PaymentID, status: d.Status}
	if _, ok := t.state.deliveries[k]; ok {
		return domain.ErrDeliveryAlreadyProcessed
	}
	t.state.deliveries[k] = *d
	return nil
}

func (t *memTx) MarkDeliveryProcessed(_ context.Context, deliveryID string) error {
	for k, d := range t.state.deliveries {
		if d.ID == deliveryID {
			d.State = domain.DeliveryStatusProcessed
			t.state.deliveries[k] = d
			return nil
		}
	}
	return fmt.Errorf("delivery %s not found", deliveryID)
}

func (t *memTx) EnqueueMessage(_ context.Context, msg *domain.OutboxMessage) error {
	t.state.outbox = append(t.state.outbox, *msg)
	return nil
}
