package publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
	calls  int
}

func (f *fakeProducer) Publish(_ context.Context, events ...kafka.Event) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func TestIngestKeysByDocumentID(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, nil)

	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{DocumentID: "doc-1", Body: "text"})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.Equal(t, "ACCEPTED", resp.Status)

	resp, err = p.Ingest(context.Background(), &ingestion.IngestRequest{Body: "anonymous"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.DocumentID)

	require.Len(t, prod.events, 2)
	assert.Equal(t, "doc-1", prod.events[0].Key)
	ev := prod.events[1].Value.(ingestion.IngestEvent)
	assert.Equal(t, resp.DocumentID, ev.DocumentID)
	assert.Equal(t, resp.DocumentID, prod.events[1].Key)
	assert.False(t, ev.IngestedAt.IsZero())
}

func TestIngestFailsFastWhenBrokerDown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	prod := &fakeProducer{err: errors.New("broker unreachable")}
	p := New(prod, m)
	assert.Equal(t, 0.0, breakerValue(t, reg, "circuit_breaker_state", "ingest-publish"))
	req := &ingestion.IngestRequest{Body: "x"}
	for i := 0; i < 5; i++ {
		_, err := p.Ingest(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, p.breaker.GetState())

	_, err := p.Ingest(context.Background(), req)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, 5, prod.calls)
	assert.Equal(t, float64(resilience.StateOpen), breakerValue(t, reg, "circuit_breaker_state", "ingest-publish"))
	assert.Equal(t, 1.0, breakerValue(t, reg, "circuit_breaker_transitions_total", "ingest-publish"))
}

func TestRejectedEventsDoNotTripBreaker(t *testing.T) {
	prod := &fakeProducer{err: fmt.Errorf("%w: message too large", apperrors.ErrInvalidInput)}
	p := New(prod, nil)
	for i := 0; i < 8; i++ {
		_, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Body: "x"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
	assert.Equal(t, resilience.StateClosed, p.breaker.GetState())
	assert.Equal(t, 8, prod.calls)
}

// breakerValue reads the gauge or counter name for breaker, summed over its
// other labels.
func breakerValue(t *testing.T, reg *prometheus.Registry, name, breaker string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "name" && lp.GetValue() == breaker {
					total += m.GetGauge().GetValue() + m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
