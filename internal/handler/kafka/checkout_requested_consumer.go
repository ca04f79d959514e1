package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"merchantpay/internal/app/payments"
	"merchantpay/internal/domain"
	kafka_infra "merchantpay/internal/infrastructure/kafka"
)

// CheckoutRequestedMessageHandler starts a checkout for every request record.
// Requests that can never succeed are logged and committed; transport
// failures are returned so the record is retried.
func CheckoutRequestedMessageHandler(checkoutService payments.CheckoutService, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event domain.CheckoutRequestedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil || event.OrderID <= 0 {
			logger.Error("Discarding malformed checkout request",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		res, err := checkoutService.StartCheckout(ctx, event.OrderID, event.OrderKey)
		switch {
		case errors.Is(err, domain.ErrOrderNotFound),
			errors.Is(err, domain.ErrCorrelationMismatch),
			errors.Is(err, domain.ErrOrderNotPending),
			errors.Is(err, domain.ErrUnsupportedCurrency),
			errors.Is(err, domain.ErrRemoteRejected):
			logger.Warn("Checkout request dropped",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err),
			)
			return nil
		case err != nil:
			return fmt.Errorf("failed to start checkout for order %d: %w", event.OrderID, err)
		}

		logger.Info("Checkout started from request",
			zap.Int64("order_id", res.OrderID),
			zap.String("transaction_id", res.TransactionID),
		)
		return nil
	}
}
