package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"merchantpay/internal/domain"
	"merchantpay/internal/merchant"
	"merchantpay/internal/util"
)

type CheckoutService interface {
	// StartCheckout registers a pending order with the payment processor and
	// returns where the shopper has to be sent to pay. orderKey must be the
	// order's secret key; anything else is rejected as a correlation mismatch.
	StartCheckout(ctx context.Context, orderID int64, orderKey string) (*domain.CheckoutResult, error)
	// HandleNotification authenticates a payment notification and applies it
	// to the order it refers to. A nil error means the notification may be
	// acknowledged, including duplicates that were already applied.
	HandleNotification(ctx context.Context, body []byte, signature string) error
}

type Gateway interface {
	CreateOrder(ctx context.Context, req merchant.CreateOrderRequest) (*merchant.CreateOrderResult, error)
}

type Verifier interface {
	Sign(body []byte) string
	Verify(body []byte, signature string) error
}

type Options struct {
	CallbackURL      string
	ReturnSuccessURL string
	ReturnFailureURL string
	Description      string
	Email            bool
	AutoSell         bool
	InstantOnly      bool
	EventsTopic      string
}

type checkoutService struct {
	store    Store
	gateway  Gateway
	verifier Verifier
	opts     Options
	logger   *zap.Logger
}

func NewCheckoutService(store Store, gateway Gateway, verifier Verifier, opts Options, logger *zap.Logger) CheckoutService {
	return &checkoutService{
		store:    store,
		gateway:  gateway,
		verifier: verifier,
		opts:     opts,
		logger:   logger,
	}
}

func (s *checkoutService) StartCheckout(ctx context.Context, orderID int64, orderKey string) (*domain.CheckoutResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if orderKey == "" || !order.MatchesKey(orderKey) {
		s.logger.Warn("Checkout requested with wrong order key", zap.Int64("order_id", orderID))
		return nil, fmt.Errorf("%w: order key mismatch for order %d", domain.ErrCorrelationMismatch, orderID)
	}
	if order.Status != domain.OrderStatusPending {
		s.logger.Warn("Checkout requested for order that is not pending",
			zap.Int64("order_id", orderID), zap.String("status", string(order.Status)))
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, domain.ErrOrderNotPending)
	}
	if !domain.IsSupportedCurrency(order.Currency) {
		return nil, fmt.Errorf("order %d currency %q: %w", orderID, order.Currency, domain.ErrUnsupportedCurrency)
	}

	data, err := domain.Correlation{OrderID: order.ID, OrderKey: order.Key}.Encode()
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.CreateOrder(ctx, merchant.CreateOrderRequest{
		Currency:      order.Currency,
		Amount:        order.Total,
		CallbackURL:   s.opts.CallbackURL,
		Description:   s.opts.Description,
		Data:          data,
		Email:         s.opts.Email,
		AutoSell:      s.opts.AutoSell,
		InstantOnly:   s.opts.InstantOnly,
		ReturnSuccess: withOrderQuery(s.opts.ReturnSuccessURL, order),
		ReturnFailure: withOrderQuery(s.opts.ReturnFailureURL, order),
	})
	if err != nil {
		s.logger.Error("Failed to initiate payment", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("create merchant order for order %d: %w", orderID, err)
	}

	result := &domain.CheckoutResult{
		OrderID:       order.ID,
		TransactionID: res.TransactionID,
		RedirectURL:   res.PaymentURL,
	}

	msg, err := s.newOutboxMessage(order.ID, domain.MessageTypeCheckoutCreated, domain.CheckoutCreatedEvent{
		OrderID:       order.ID,
		TransactionID: res.TransactionID,
		RedirectURL:   res.PaymentURL,
		Timestamp:     time.Now(),
	})
	if err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.SetTransactionID(ctx, order.ID, res.TransactionID); err != nil {
			return err
		}
		return tx.EnqueueMessage(ctx, msg)
	})
	if err != nil {
		s.logger.Error("Failed to store transaction id", zap.Int64("order_id", orderID),
			zap.String("transaction_id", res.TransactionID), zap.Error(err))
		return nil, fmt.Errorf("store transaction for order %d: %w", orderID, err)
	}

	s.logger.Info("Checkout created",
		zap.Int64("order_id", orderID),
		zap.String("transaction_id", res.TransactionID),
	)
	return result, nil
}

func (s *checkoutService) HandleNotification(ctx context.Context, body []byte, signature string) error {
	if err := s.verifier.Verify(body, signature); err != nil {
		s.logger.Debug("Notification signature mismatch",
			zap.String("expected", s.verifier.Sign(body)),
			zap.String("received", signature),
		)
		s.logger.Warn("Rejected payment notification", zap.Error(err))
		return err
	}

	s.logger.Debug("Payment notification received", zap.ByteString("body", body))

	n, err := domain.ParseNotification(body)
	if err != nil {
		s.logger.Warn("Rejected payment notification", zap.Error(err))
		return err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return s.applyNotification(ctx, tx, n, body)
	})
	switch {
	case errors.Is(err, domain.ErrDeliveryAlreadyProcessed):
		s.logger.Info("Duplicate payment notification ignored",
			zap.Int64("order_id", n.Correlation.OrderID),
			zap.String("payment_id", n.PaymentID),
			zap.String("status", n.RawStatus),
		)
		return nil
	case err != nil:
		s.logger.Warn("Payment notification not applied",
			zap.Int64("order_id", n.Correlation.OrderID),
			zap.String("payment_id", n.PaymentID),
			zap.Error(err),
		)
		return err
	}

	s.logger.Debug("Processed payment notification", zap.String("payment_id", n.PaymentID))
	return nil
}

func (s *checkoutService) applyNotification(ctx context.Context, tx Tx, n *domain.Notification, body []byte) error {
	order, err := tx.GetOrderForUpdate(ctx, n.Correlation.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return fmt.Errorf("%w: order %d does not exist", domain.ErrCorrelationMismatch, n.Correlation.OrderID)
	}
	if err != nil {
		return err
	}
	if !order.MatchesKey(n.Correlation.OrderKey) {
		return fmt.Errorf("%w: order key mismatch for order %d", domain.ErrCorrelationMismatch, order.ID)
	}

	delivery := &domain.WebhookDelivery{
		ID:         util.NewID(),
		PaymentID:  n.PaymentID,
		Status:     n.RawStatus,
		OrderID:    order.ID,
		Payload:    body,
		State:      domain.DeliveryStatusNew,
		ReceivedAt: time.Now(),
	}
	if err := tx.RecordDelivery(ctx, delivery); err != nil {
		return err
	}

	if err := tx.SetPaymentID(ctx, order.ID, n.PaymentID); err != nil {
		return err
	}

	previous := order.Status
	next := targetStatus(n.Status)
	if err := order.TransitionTo(next); err != nil {
		s.logger.Warn("Notification does not apply to current order status",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(previous)),
			zap.String("reported_status", n.RawStatus),
			zap.String("payment_id", n.PaymentID),
			zap.Error(err),
		)
		return tx.MarkDeliveryProcessed(ctx, delivery.ID)
	}
	if err := tx.CompareAndSetStatus(ctx, order.ID, previous, next); err != nil {
		return err
	}

	if err := s.applySideEffects(ctx, tx, order.ID, n); err != nil {
		return err
	}

	msg, err := s.newOutboxMessage(order.ID, domain.MessageTypePaymentStatusChanged, domain.PaymentStatusChangedEvent{
		OrderID:        order.ID,
		PaymentID:      n.PaymentID,
		PreviousStatus: string(previous),
		Status:         string(next),
		ReportedStatus: n.RawStatus,
		Timestamp:      time.Now(),
	})
	if err != nil {
		return err
	}
	if err := tx.EnqueueMessage(ctx, msg); err != nil {
		return err
	}

	s.logger.Info("Order status updated from payment notification",
		zap.Int64("order_id", order.ID),
		zap.String("payment_id", n.PaymentID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	return tx.MarkDeliveryProcessed(ctx, delivery.ID)
}

func targetStatus(s domain.NotificationStatus) domain.OrderStatus {
	switch s {
	case domain.StatusPaid:
		return domain.OrderStatusPaid
	case domain.StatusPartial:
		return domain.OrderStatusOnHold
	case domain.StatusCancelled:
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusFailed
	}
}

func (s *checkoutService) applySideEffects(ctx context.Context, tx Tx, orderID int64, n *domain.Notification) error {
	switch n.Status {
	case domain.StatusPaid:
		return tx.AddNote(ctx, shopNote(orderID, fmt.Sprintf("Bitcoin payment completed (Payment ID: %s)", n.PaymentID)))

	case domain.StatusPartial:
		if err := tx.AddNote(ctx, customerNote(orderID, fmt.Sprintf(
			"Your payment was received but is still waiting for network confirmation, so your order is on hold. "+
				"Please contact us for more information about your order and payment. (Payment ID: %s)", n.PaymentID))); err != nil {
			return err
		}
		if err := tx.AddNote(ctx, shopNote(orderID, fmt.Sprintf(
			"Order on hold: the payment was still waiting for network confirmation and the merchant account was not credited immediately. "+
				"Check that the full amount was credited. (Payment ID: %s)", n.PaymentID))); err != nil {
			return err
		}
		return tx.ReduceStock(ctx, orderID)

	case domain.StatusCancelled:
		return tx.ClearCart(ctx, orderID)

	default:
		if err := tx.AddNote(ctx, customerNote(orderID, fmt.Sprintf(
			"Your payment could not be processed and your order was cancelled. You were NOT charged for this order. "+
				"Please contact us for assistance. (Payment ID: %s)", n.PaymentID))); err != nil {
			return err
		}
		return tx.AddNote(ctx, shopNote(orderID, fmt.Sprintf(
			"Payment failed to process (Status: %s, Payment ID: %s)", n.RawStatus, n.PaymentID)))
	}
}

func customerNote(orderID int64, text string) *domain.OrderNote {
	return &domain.OrderNote{OrderID: orderID, Text: text, CustomerVisible: true, CreatedAt: time.Now()}
}

func shopNote(orderID int64, text string) *domain.OrderNote {
	return &domain.OrderNote{OrderID: orderID, Text: text, CreatedAt: time.Now()}
}

func (s *checkoutService) newOutboxMessage(orderID int64, messageType string, event any) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event for order %d: %w", messageType, orderID, err)
	}
	key := strconv.FormatInt(orderID, 10)
	return &domain.OutboxMessage{
		ID:          util.NewID(),
		AggregateID: key,
		MessageType: messageType,
		Topic:       s.opts.EventsTopic,
		Key:         key,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   time.Now(),
	}, nil
}

// withOrderQuery appends the order id and key the shop needs to show the
// right order page when the shopper comes back from the processor.
func withOrderQuery(base string, order *domain.Order) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("order_id", strconv.FormatInt(order.ID, 10))
	q.Set("key", order.Key)
	u.RawQuery = q.Encode()
	return u.String()
}
