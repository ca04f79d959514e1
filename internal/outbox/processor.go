package outbox

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"merchantpay/internal/domain"
	kafkaInfra "merchantpay/internal/infrastructure/kafka"
)

const batchSize = 10

type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	MarkMessagesAsSentTx(ctx context.Context, querier domain.Querier, ids []string) error
}

// Processor relays committed outbox rows to Kafka. Rows are locked with
// SKIP LOCKED, so several replicas can poll the same table.
type Processor struct {
	db            *sql.DB
	outboxRepo    OutboxRepository
	kafkaProducer kafkaInfra.Producer
	pollInterval  time.Duration
	pollTimeout   time.Duration
	logger        *zap.Logger
}

func NewProcessor(
	db *sql.DB,
	outboxRepo OutboxRepository,
	kafkaProducer kafkaInfra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:            db,
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		logger:        logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return nil
		case <-ticker.C:
			p.processOutboxMessages(ctx)
		}
	}
}

func (p *Processor) processOutboxMessages(ctx context.Context) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		p.logger.Error("Failed to begin transaction for outbox batch", zap.Error(err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	messages, err := p.outboxRepo.GetPendingMessages(queryCtx, tx, batchSize)
	cancel()
	if err != nil {
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return
	}

	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	sent := p.dispatch(ctx, messages)
	if len(sent) == 0 {
		return
	}
	if err := p.outboxRepo.MarkMessagesAsSentTx(ctx, tx, sent); err != nil {
		p.logger.Error("Failed to mark outbox messages as SENT", zap.Strings("message_ids", sent), zap.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		p.logger.Error("Failed to commit outbox batch", zap.Int("sent", len(sent)), zap.Error(err))
		return
	}
	p.logger.Info("Outbox messages relayed", zap.Int("count", len(sent)))
}

// dispatch publishes messages in order and returns the ids that reached the
// broker. It stops at the first failure so events of one order never overtake
// each other; the remaining rows stay PENDING for the next poll.
func (p *Processor) dispatch(ctx context.Context, messages []domain.OutboxMessage) []string {
	sent := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := p.kafkaProducer.Produce(ctx, msg.Key, msg.Topic, msg.Payload); err != nil {
			p.logger.Error("Failed to send message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.MessageType),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			break
		}
		sent = append(sent, msg.ID)
		p.logger.Debug("Outbox message sent",
			zap.String("message_id", msg.ID),
			zap.String("message_type", msg.MessageType),
			zap.String("aggregate_id", msg.AggregateID))
	}
	return sent
}
