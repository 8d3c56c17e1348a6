// Package publisher turns accepted ingestion requests into IngestEvents on
// the document-ingest topic. Events are keyed by document id so every
// version of a document lands on the same partition in order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/resilience"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// Producer sends events to Kafka; kafka.Producer implements it.
type Producer interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Publisher guards the producer with a circuit breaker so a broker outage
// fails requests fast instead of stacking them up.
type Publisher struct {
	producer Producer
	breaker  *resilience.CircuitBreaker
	logger   *slog.Logger
}

// New wraps producer. m may be nil; otherwise the breaker state is exported
// as circuit_breaker_state{name="ingest-publish"}.
func New(producer Producer, m *metrics.Metrics) *Publisher {
	return &Publisher{
		producer: producer,
		breaker: resilience.NewCircuitBreaker("ingest-publish", resilience.CircuitBreakerConfig{
			OnStateChange: breakerMetrics(m),
		}),
		logger: slog.Default().With("component", "publisher"),
	}
}

func breakerMetrics(m *metrics.Metrics) func(string, resilience.State, resilience.State) {
	if m == nil {
		return nil
	}
	return func(name string, from, to resilience.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if from != to {
			m.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
		}
	}
}

// Ingest publishes req, assigning a document id when the request has none.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	event := kafka.Event{
		Key: docID,
		Value: ingestion.IngestEvent{
			DocumentID: docID,
			Title:      req.Title,
			Body:       req.Body,
			Fields:     req.Fields,
			IngestedAt: time.Now().UTC(),
		},
	}
	err := p.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, publishTimeout, "publish ingest event", func(ctx context.Context) error {
			return p.producer.Publish(ctx, event)
		})
	})
	if err != nil {
		p.logger.Error("failed to publish ingest event",
			"doc_id", docID,
			"circuit", p.breaker.GetState(),
			"error", err,
		)
		return nil, fmt.Errorf("publishing document %s: %w", docID, err)
	}
	return &ingestion.IngestResponse{DocumentID: docID, Status: "ACCEPTED"}, nil
}
