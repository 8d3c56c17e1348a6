package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/resilience"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader hands out msgs in order, then cancels the consume loop.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestConsumerRetriesAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: []byte("flaky")},
		{Offset: 2, Value: []byte("poison")},
		{Offset: 3, Value: []byte("broken")},
		{Offset: 4, Value: []byte("fine")},
	}}
	calls := map[string]int{}
	c := newConsumer(r, "test", func(_ context.Context, _, value []byte) error {
		v := string(value)
		calls[v]++
		switch {
		case v == "flaky" && calls[v] < 2:
			return errors.New("temporary")
		case v == "poison":
			return fmt.Errorf("%w: bad payload", apperrors.ErrInvalidInput)
		case v == "broken":
			return errors.New("always")
		}
		return nil
	})
	c.retry = resilience.FixedRetry(3, time.Millisecond)
	c.retry.Retryable = func(err error) bool { return !errors.Is(err, apperrors.ErrInvalidInput) }

	require.NoError(t, c.Start(ctx))
	assert.True(t, r.closed)
	assert.Equal(t, 2, calls["flaky"])
	assert.Equal(t, 1, calls["poison"])
	assert.Equal(t, 3, calls["broken"])
	assert.Equal(t, []int64{1, 2, 4}, r.committed)
}

func TestDecodeJSON(t *testing.T) {
	type event struct {
		ID string `json:"id"`
	}
	ev, err := DecodeJSON[event]([]byte(`{"id":"doc-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", ev.ID)

	_, err = DecodeJSON[event]([]byte(`{`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
