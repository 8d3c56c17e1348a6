// Package consumer reads ingestion events from Kafka and indexes them via
// the shard router, and announces sealed segments to the catalog and the
// index.complete topic.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/kafka"
)

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that routes each ingest
// event to the shard engine owning its document id. Events that cannot be
// decoded or carry no document id are rejected with ErrInvalidInput so the
// consumer skips them.
func HandleMessage(router *shard.Router) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return err
		}
		if event.DocumentID == "" {
			return fmt.Errorf("%w: ingest event without document_id", apperrors.ErrInvalidInput)
		}

		shardID := router.ShardFor(event.DocumentID)
		logger.Debug("processing ingest event",
			"doc_id", event.DocumentID,
			"shard_id", shardID,
		)
		if err := router.ForDocument(event.DocumentID).IndexDocument(ctx, event.DocumentID, event.FieldTexts()); err != nil {
			return fmt.Errorf("indexing document %s in shard %d: %w", event.DocumentID, shardID, err)
		}
		logger.Debug("document buffered",
			"doc_id", event.DocumentID,
			"shard_id", shardID,
		)
		return nil
	}
}

// Registrar records sealed segments; catalog.Catalog implements it.
type Registrar interface {
	Register(ctx context.Context, shardID int, m *segment.Manifest) error
}

// Publisher sends events to Kafka; kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// SealNotifier returns an engine seal hook that registers each sealed
// segment and then publishes a SegmentSealedEvent. Either side may be nil.
// Failures are logged: the segment is already durable on disk.
func SealNotifier(reg Registrar, pub Publisher) indexer.SealHook {
	logger := slog.Default().With("component", "seal-notifier")
	return func(ctx context.Context, shardID int, m *segment.Manifest) {
		if reg != nil {
			if err := reg.Register(ctx, shardID, m); err != nil {
				logger.Error("failed to register segment",
					"shard_id", shardID,
					"segment", m.Name,
					"error", err,
				)
			}
		}
		if pub == nil {
			return
		}
		fields := make([]string, 0, len(m.Fields))
		for _, f := range m.Fields {
			fields = append(fields, f.Name)
		}
		event := ingestion.SegmentSealedEvent{
			ShardID:  shardID,
			Segment:  m.Name,
			Docs:     len(m.DocIDs),
			Fields:   fields,
			Tokens:   m.Tokens(),
			SealedAt: time.Now().UTC(),
		}
		if err := pub.Publish(ctx, kafka.Event{Key: strconv.Itoa(shardID), Value: event}); err != nil {
			logger.Error("failed to publish sealed segment",
				"shard_id", shardID,
				"segment", m.Name,
				"error", err,
			)
		}
	}
}
