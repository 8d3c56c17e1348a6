package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, opts ...indexer.Option) *shard.Router {
	t.Helper()
	cfg := config.DefaultForward()
	cfg.DataDir = t.TempDir()
	cfg.NumShards = 2
	cfg.SegmentMaxDocs = 0
	cfg.Fields = []string{"title", "body"}
	cfg.LockSleep = 5 * time.Millisecond
	r, err := shard.NewRouter(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func encode(t *testing.T, ev ingestion.IngestEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleMessageIndexesIntoOwningShard(t *testing.T) {
	r := newRouter(t)
	h := HandleMessage(r)
	ctx := context.Background()

	require.NoError(t, h(ctx, []byte("doc-1"), encode(t, ingestion.IngestEvent{
		DocumentID: "doc-1",
		Body:       "Kafka feeds the index.",
	})))
	owner := r.ForDocument("doc-1")
	assert.Equal(t, 1, owner.BufferedDocs())

	require.NoError(t, r.FlushAll(ctx))
	tok, err := owner.GetByID("doc-1", "body", 1)
	require.NoError(t, err)
	assert.Equal(t, "kafka", tok.Postfix())
}

func TestHandleMessageRejectsBadEvents(t *testing.T) {
	h := HandleMessage(newRouter(t))
	err := h(context.Background(), nil, []byte("{not json"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = h(context.Background(), nil, encode(t, ingestion.IngestEvent{Body: "orphan"}))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

type fakeRegistrar struct {
	shards []int
	err    error
}

func (f *fakeRegistrar) Register(_ context.Context, shardID int, _ *segment.Manifest) error {
	f.shards = append(f.shards, shardID)
	return f.err
}

type fakePublisher struct {
	events []kafka.Event
}

func (f *fakePublisher) Publish(_ context.Context, events ...kafka.Event) error {
	f.events = append(f.events, events...)
	return nil
}

func TestSealNotifierRegistersAndPublishes(t *testing.T) {
	reg := &fakeRegistrar{err: errors.New("catalog down")}
	pub := &fakePublisher{}
	r := newRouter(t, indexer.WithSealHook(SealNotifier(reg, pub)))
	h := HandleMessage(r)
	ctx := context.Background()

	require.NoError(t, h(ctx, nil, encode(t, ingestion.IngestEvent{DocumentID: "doc-1", Title: "Sealed"})))
	require.NoError(t, r.FlushAll(ctx))

	shardID := r.ShardFor("doc-1")
	assert.Equal(t, []int{shardID}, reg.shards)
	require.Len(t, pub.events, 1)
	ev, ok := pub.events[0].Value.(ingestion.SegmentSealedEvent)
	require.True(t, ok)
	assert.Equal(t, shardID, ev.ShardID)
	assert.Equal(t, 1, ev.Docs)
	assert.Equal(t, []string{"title", "body"}, ev.Fields)
	assert.Positive(t, ev.Tokens)
}

func TestSealNotifierToleratesNilSides(t *testing.T) {
	hook := SealNotifier(nil, nil)
	assert.NotPanics(t, func() {
		hook(context.Background(), 0, &segment.Manifest{Name: "seg_1"})
	})
}
