package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fitsync/platform/internal/domain"
	"github.com/fitsync/platform/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxPoller drains the event_outbox table into Kafka. Session lifecycle
// events are written transactionally with the state change they describe;
// the poller gives them at-least-once delivery downstream.
type OutboxPoller struct {
	pool      *pgxpool.Pool
	outbox    repository.OutboxRepository
	producer  *KafkaProducer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, outbox repository.OutboxRepository, producer *KafkaProducer, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		pool:      pool,
		outbox:    outbox,
		producer:  producer,
		logger:    logger,
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if err := p.poll(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

// topicFor derives the Kafka topic from an outbox draft. Event types already
// carry the aggregate prefix (session.created, session.terminated), so the
// topic is just the service namespace on top: fitsync.session.created.
func topicFor(e domain.OutboxDraft) string {
	return "fitsync." + string(e.EventType)
}

func (p *OutboxPoller) poll(ctx context.Context) error {
	rows, err := p.outbox.FetchUnpublished(ctx, p.pool, p.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]int64, 0, len(rows))
	for _, row := range rows {
		e := row.Draft
		topic := topicFor(e)
		key := []byte(e.PartitionKey)

		msg, _ := json.Marshal(e)

		if err := p.producer.Publish(ctx, topic, key, msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			// Stop the batch here so ordering per partition key holds.
			break
		}
		published = append(published, row.SeqID)
	}

	if err := p.outbox.MarkPublished(ctx, p.pool, published); err != nil {
		return err
	}

	if len(published) > 0 {
		p.logger.Debug("outbox poll complete", "published", len(published))
	}
	return nil
}
