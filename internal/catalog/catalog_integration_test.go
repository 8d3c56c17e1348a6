//go:build integration

// Run with a reachable PostgreSQL (SP_POSTGRES_* overrides apply):
//
//	go test -tags=integration ./internal/catalog/...
package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndList(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	c := New(db)
	require.NoError(t, c.EnsureSchema(ctx))

	shard := int(uuid.New().ID() % 1_000_000)
	m := &segment.Manifest{
		Name:      "seg_test_" + uuid.NewString()[:8],
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Delegate:  "Lucene50",
		DocIDs:    []string{"a", "b"},
		Fields: []segment.FieldSummary{
			{Name: "body", Docs: 2, Terms: 10, Prefixes: 3, Tokens: 40},
			{Name: "title", Docs: 1, Terms: 2, Prefixes: 2, Tokens: 3},
		},
	}
	t.Cleanup(func() { c.Forget(ctx, m.Name) })
	require.NoError(t, c.Register(ctx, shard, m))
	require.NoError(t, c.Register(ctx, shard, m))

	segs, err := c.Segments(ctx, shard)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, m.Name, segs[0].Name)
	assert.Equal(t, 2, segs[0].Docs)
	assert.Equal(t, m.Fields, segs[0].Fields)
	assert.True(t, m.CreatedAt.Equal(segs[0].CreatedAt))

	require.NoError(t, c.Forget(ctx, m.Name))
	segs, err = c.Segments(ctx, shard)
	require.NoError(t, err)
	assert.Empty(t, segs)
}
