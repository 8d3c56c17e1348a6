package shard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, shards int) config.ForwardConfig {
	cfg := config.DefaultForward()
	cfg.DataDir = t.TempDir()
	cfg.NumShards = shards
	cfg.SegmentMaxDocs = 0
	cfg.LockSleep = 5 * time.Millisecond
	return cfg
}

func TestShardForIsStable(t *testing.T) {
	r, err := NewRouter(testConfig(t, 4))
	require.NoError(t, err)
	defer r.Close()

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("doc-%d", i)
		s := r.ShardFor(id)
		require.Equal(t, s, r.ShardFor(id))
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, 4)
		seen[s] = true

		e, err := r.Route(s)
		require.NoError(t, err)
		assert.Same(t, e, r.ForDocument(id))
	}
	assert.Len(t, seen, 4)
}

func TestRouteUnknownShard(t *testing.T) {
	r, err := NewRouter(testConfig(t, 2))
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Route(2)
	assert.ErrorIs(t, err, apperrors.ErrShardUnknown)
	_, err = r.Route(-1)
	assert.ErrorIs(t, err, apperrors.ErrShardUnknown)
}

func TestFlushAllAndReadOnlyReload(t *testing.T) {
	cfg := testConfig(t, 3)
	w, err := NewRouter(cfg)
	require.NoError(t, err)
	defer w.Close()
	ro, err := NewRouter(cfg, indexer.ReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("doc-%d", i)
		require.NoError(t, w.ForDocument(id).IndexDocument(ctx, id, map[string]string{"body": "Shards seal in parallel."}))
	}
	require.NoError(t, w.FlushAll(ctx))
	assert.Equal(t, 3, w.SegmentCount())

	assert.Equal(t, 3, ro.ReloadAll())
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("doc-%d", i)
		tok, err := ro.ForDocument(id).GetByID(id, "body", 1)
		require.NoError(t, err)
		assert.Equal(t, "shards", tok.Postfix())
	}
}

func TestFlushAllReportsFailure(t *testing.T) {
	r, err := NewRouter(testConfig(t, 2))
	require.NoError(t, err)
	defer r.Close()
	e, err := r.Route(0)
	require.NoError(t, err)
	require.NoError(t, e.IndexDocument(context.Background(), "doc", map[string]string{"body": "x"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, r.FlushAll(ctx))
	assert.Equal(t, 1, e.BufferedDocs())
}
