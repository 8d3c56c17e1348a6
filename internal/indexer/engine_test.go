package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.ForwardConfig {
	t.Helper()
	cfg := config.DefaultForward()
	cfg.DataDir = t.TempDir()
	cfg.Fields = []string{"title", "body"}
	cfg.SegmentMaxDocs = 0
	cfg.LockSleep = 5 * time.Millisecond
	return cfg
}

func newEngine(t *testing.T, cfg config.ForwardConfig, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func indexDoc(t *testing.T, e *Engine, docID, title, body string) {
	t.Helper()
	require.NoError(t, e.IndexDocument(context.Background(), docID, map[string]string{"title": title, "body": body}))
}

func TestIndexFlushLookup(t *testing.T) {
	e := newEngine(t, testConfig(t))
	indexDoc(t, e, "doc-1", "Forward index", "The cat sat. Dogs run!")
	indexDoc(t, e, "doc-2", "Other", "Nothing here.")

	_, err := e.GetByID("doc-1", "body", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "unsealed documents are not visible")

	m, err := e.Flush(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"doc-1", "doc-2"}, m.DocIDs)
	assert.Equal(t, 1, e.SegmentCount())
	assert.Equal(t, 0, e.BufferedDocs())

	tok, err := e.GetByID("doc-1", "body", 2)
	require.NoError(t, err)
	assert.Equal(t, token.JoinValue(tokenizer.LayerToken, "cat"), tok.Value)

	hits, err := e.GetByPositionRange("doc-1", "body", 1, 1, nil)
	require.NoError(t, err)
	values := make([]string, 0, len(hits))
	for _, h := range hits {
		values = append(values, h.Value)
	}
	assert.Equal(t, []string{
		token.JoinValue(tokenizer.LayerSentence, "0"),
		token.JoinValue(tokenizer.LayerToken, "cat"),
		token.JoinValue(tokenizer.LayerLemma, "cat"),
	}, values)

	lemmas, err := e.GetByPositionRange("doc-1", "body", 0, 10, []string{tokenizer.LayerLemma})
	require.NoError(t, err)
	assert.Len(t, lemmas, 4)

	children, err := e.GetByParent("doc-1", "body", 7)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	stats, err := e.Stats("doc-1", "title")
	require.NoError(t, err)
	assert.Equal(t, m.Name, stats.Segment)
	assert.Equal(t, len(tokenizer.Annotate("Forward index")), stats.Tokens)
	assert.Equal(t, 2, stats.Positions)

	_, err = e.GetByID("doc-9", "body", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = e.GetByID("doc-1", "summary", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFlushNothing(t *testing.T) {
	e := newEngine(t, testConfig(t))
	m, err := e.Flush(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 0, e.SegmentCount())
}

func TestNewerSegmentShadowsOlder(t *testing.T) {
	e := newEngine(t, testConfig(t))
	indexDoc(t, e, "doc-1", "", "first version")
	_, err := e.Flush(context.Background())
	require.NoError(t, err)
	indexDoc(t, e, "doc-1", "", "second")
	_, err = e.Flush(context.Background())
	require.NoError(t, err)

	tok, err := e.GetByID("doc-1", "body", 1)
	require.NoError(t, err)
	assert.Equal(t, "second", tok.Postfix())
}

func TestSegmentMaxDocsTriggersFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.SegmentMaxDocs = 2
	e := newEngine(t, cfg)
	indexDoc(t, e, "a", "", "one")
	assert.Equal(t, 0, e.SegmentCount())
	indexDoc(t, e, "b", "", "two")
	assert.Equal(t, 1, e.SegmentCount())
	assert.Equal(t, 0, e.BufferedDocs())
}

func TestRejectsEmptyDocID(t *testing.T) {
	e := newEngine(t, testConfig(t))
	err := e.IndexDocument(context.Background(), "", map[string]string{"body": "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFailedFlushKeepsDocuments(t *testing.T) {
	e := newEngine(t, testConfig(t))
	indexDoc(t, e, "doc-1", "", "kept")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, e.BufferedDocs())

	_, err = e.Flush(context.Background())
	require.NoError(t, err)
	_, err = e.GetByID("doc-1", "body", 1)
	require.NoError(t, err)
}

func TestRecoveryReopensSegmentsAndDropsStale(t *testing.T) {
	cfg := testConfig(t)
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	indexDoc(t, e, "doc-1", "", "persisted")
	require.NoError(t, e.Close())

	stale := filepath.Join(cfg.DataDir, "seg_1_abcdef00.tmp")
	require.NoError(t, os.Mkdir(stale, 0755))

	e2 := newEngine(t, cfg)
	assert.Equal(t, 1, e2.SegmentCount())
	assert.NoDirExists(t, stale)
	tok, err := e2.GetByID("doc-1", "body", 1)
	require.NoError(t, err)
	assert.Equal(t, "persisted", tok.Postfix())
}

func TestRestartAfterCrashedBuild(t *testing.T) {
	cfg := testConfig(t)
	cfg.LockMaxAttempts = 3
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0755))
	// a build killed mid-flight leaves its lock file and tmp segment
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, cfg.LockFile), []byte("dead-owner\n"), 0644))
	stale := filepath.Join(cfg.DataDir, "seg_1_abcdef00.tmp")
	require.NoError(t, os.Mkdir(stale, 0755))

	e := newEngine(t, cfg)
	assert.NoDirExists(t, stale)
	indexDoc(t, e, "doc-1", "", "restarted")
	_, err := e.Flush(context.Background())
	require.NoError(t, err)
	tok, err := e.GetByID("doc-1", "body", 1)
	require.NoError(t, err)
	assert.Equal(t, "restarted", tok.Postfix())
}

func TestFlushReopensSealedSegmentAfterOpenFailure(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg)
	other := newEngine(t, cfg)
	indexDoc(t, other, "doc-1", "", "sealed elsewhere")
	_, err := other.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, e.SegmentCount())

	// a flush that sealed its segment but failed to open it
	e.unopened.Store(true)
	_, err = e.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.SegmentCount())
	assert.False(t, e.unopened.Load())
	_, err = e.GetByID("doc-1", "body", 1)
	require.NoError(t, err)
}

func TestReadOnlyEngineReloads(t *testing.T) {
	cfg := testConfig(t)
	writer := newEngine(t, cfg)
	stale := filepath.Join(cfg.DataDir, "seg_1_abcdef00.tmp")
	require.NoError(t, os.Mkdir(stale, 0755))

	ro := newEngine(t, cfg, ReadOnly())
	assert.DirExists(t, stale)
	err := ro.IndexDocument(context.Background(), "doc-1", map[string]string{"body": "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	indexDoc(t, writer, "doc-1", "", "visible later")
	_, err = writer.Flush(context.Background())
	require.NoError(t, err)

	_, err = ro.GetByID("doc-1", "body", 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 1, ro.ReloadSegments())
	assert.Equal(t, 0, ro.ReloadSegments())
	_, err = ro.GetByID("doc-1", "body", 0)
	require.NoError(t, err)
}

// gathered returns the value of the counter or gauge name whose labels
// include labels.
func gathered(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			have := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if have[k] != v {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestSealHookAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	var sealed []*segment.Manifest
	e := newEngine(t, testConfig(t), WithShardID(3), WithMetrics(m),
		WithSealHook(func(_ context.Context, shardID int, man *segment.Manifest) {
			assert.Equal(t, 3, shardID)
			sealed = append(sealed, man)
		}))
	indexDoc(t, e, "doc-1", "", "counted tokens")
	_, err := e.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, sealed, 1)

	_, err = e.GetByID("doc-1", "body", 0)
	require.NoError(t, err)
	_, err = e.GetByID("doc-2", "body", 0)
	require.Error(t, err)

	assert.Equal(t, 1.0, gathered(t, reg, "docs_indexed_total", nil))
	assert.Equal(t, float64(sealed[0].Tokens()), gathered(t, reg, "forward_tokens_written_total", nil))
	assert.Equal(t, 1.0, gathered(t, reg, "segment_flushes_total", map[string]string{"status": "ok"}))
	assert.Equal(t, 1.0, gathered(t, reg, "active_segments", map[string]string{"shard_id": "3"}))
	assert.Equal(t, 1.0, gathered(t, reg, "forward_lookups_total", map[string]string{"operation": "by_id", "status": "ok"}))
	assert.Equal(t, 1.0, gathered(t, reg, "forward_lookups_total", map[string]string{"operation": "by_id", "status": "not_found"}))
}

func TestConcurrentIndexAndLookup(t *testing.T) {
	e := newEngine(t, testConfig(t))
	indexDoc(t, e, "seed", "", "always there")
	_, err := e.Flush(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				docID := string(rune('a'+w)) + string(rune('a'+i))
				assert.NoError(t, e.IndexDocument(context.Background(), docID, map[string]string{"body": "concurrent words here"}))
				if i%5 == 0 {
					_, err := e.Flush(context.Background())
					assert.NoError(t, err)
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tok, err := e.GetByID("seed", "body", 1)
				if assert.NoError(t, err) {
					assert.Equal(t, "always", tok.Postfix())
				}
			}
		}()
	}
	wg.Wait()
	_, err = e.Flush(context.Background())
	require.NoError(t, err)
	for w := 0; w < 4; w++ {
		for i := 0; i < 20; i++ {
			_, err := e.GetByID(string(rune('a'+w))+string(rune('a'+i)), "body", 0)
			require.NoError(t, err)
		}
	}
}

const benchBody = "Forward indexes store every token of a document. Lookups walk the interval tree by position! Parents link lemmas to surface tokens."

func BenchmarkIndexDocument(b *testing.B) {
	cfg := config.DefaultForward()
	cfg.DataDir = b.TempDir()
	cfg.SegmentMaxDocs = 0
	e, err := NewEngine(cfg)
	require.NoError(b, err)
	defer e.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.IndexDocument(context.Background(), fmt.Sprintf("doc-%d", i), map[string]string{"body": benchBody}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetByPositionRangeParallel(b *testing.B) {
	cfg := config.DefaultForward()
	cfg.DataDir = b.TempDir()
	cfg.SegmentMaxDocs = 0
	e, err := NewEngine(cfg)
	require.NoError(b, err)
	defer e.Close()
	for i := 0; i < 1000; i++ {
		require.NoError(b, e.IndexDocument(context.Background(), fmt.Sprintf("doc-%d", i), map[string]string{"body": benchBody}))
	}
	_, err = e.Flush(context.Background())
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := e.GetByPositionRange(fmt.Sprintf("doc-%d", i%1000), "body", 3, 9, nil); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}
