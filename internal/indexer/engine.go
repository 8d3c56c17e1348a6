// Package indexer runs the forward index of one shard: documents are
// annotated and buffered in memory, sealed into segments by size or on a
// timer, and served from the open segments. A document indexed again in a
// later segment shadows its older copies.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/builder"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/lock"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/reader"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/metrics"
)

// SealHook is called after a segment has been sealed and opened.
type SealHook func(ctx context.Context, shardID int, m *segment.Manifest)

type Option func(*Engine)

func WithShardID(id int) Option {
	return func(e *Engine) { e.shardID = id }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithSealHook(h SealHook) Option {
	return func(e *Engine) { e.onSeal = h }
}

// ReadOnly opens the engine for lookups only. It never writes, and it leaves
// unfinished segments of a concurrent writer alone.
func ReadOnly() Option {
	return func(e *Engine) { e.readOnly = true }
}

type Engine struct {
	shardID  int
	readOnly bool
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	segments []*segment.Reader
	segMu    sync.RWMutex
	flushMu  sync.Mutex
	// unopened is set when a segment was sealed but could not be opened;
	// the next flush or tick rescans the data directory for it.
	unopened atomic.Bool
	cfg      config.ForwardConfig
	metrics  *metrics.Metrics
	onSeal   SealHook
	logger   *slog.Logger
}

func NewEngine(cfg config.ForwardConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		memIndex: index.NewMemoryIndex(cfg.Fields),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = slog.Default().With("component", "indexer", "shard_id", e.shardID)
	if !e.readOnly {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating index data directory: %w", err)
		}
	}
	e.writer = segment.NewWriter(cfg.DataDir, builder.Options{
		DelegateName: cfg.DelegateName,
		LockName:     cfg.LockFile,
		Lock:         lock.Policy{MaxAttempts: cfg.LockMaxAttempts, Sleep: cfg.LockSleep},
		Logger:       slog.Default().With("shard_id", e.shardID),
	})
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// IndexDocument annotates the configured fields of a document and buffers
// it. Reaching SegmentMaxDocs seals the buffer.
func (e *Engine) IndexDocument(ctx context.Context, docID string, fields map[string]string) error {
	if e.readOnly {
		return fmt.Errorf("%w: engine is read-only", apperrors.ErrInvalidInput)
	}
	if docID == "" {
		return fmt.Errorf("%w: empty document id", apperrors.ErrInvalidInput)
	}
	annotated := make(map[string][]*token.Token, len(e.cfg.Fields))
	count := 0
	for _, f := range e.cfg.Fields {
		text, ok := fields[f]
		if !ok {
			continue
		}
		annotated[f] = tokenizer.Annotate(text)
		count += len(annotated[f])
	}
	e.memIndex.AddDocument(docID, annotated)
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
		e.metrics.BufferedDocs.WithLabelValues(e.shardLabel()).Set(float64(e.memIndex.DocCount()))
	}
	e.logger.Debug("document buffered",
		"doc_id", docID,
		"token_count", count,
		"buffered_docs", e.memIndex.DocCount(),
	)
	if e.cfg.SegmentMaxDocs > 0 && e.memIndex.DocCount() >= e.cfg.SegmentMaxDocs {
		e.logger.Info("memory index reached max docs, sealing segment",
			"docs", e.memIndex.DocCount(),
			"threshold", e.cfg.SegmentMaxDocs,
		)
		if _, err := e.Flush(ctx); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// Flush seals the buffered documents into a new segment. It returns nil
// when nothing was buffered. On failure the documents stay buffered.
func (e *Engine) Flush(ctx context.Context) (*segment.Manifest, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.reopenSealed()
	snap := e.memIndex.Drain()
	if snap.Empty() {
		return nil, nil
	}
	start := time.Now()
	m, err := e.writer.Write(ctx, snap)
	if err != nil {
		e.memIndex.Requeue(snap)
		e.recordFlush("error", 0, 0)
		return nil, fmt.Errorf("writing segment: %w", err)
	}
	r, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, m.Name))
	if err != nil {
		// The documents are durable in the sealed segment, so they are not
		// requeued.
		e.unopened.Store(true)
		e.recordFlush("error", 0, 0)
		return nil, fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.segMu.Lock()
	e.segments = append(e.segments, r)
	active := len(e.segments)
	e.segMu.Unlock()

	e.recordFlush("ok", time.Since(start), m.Tokens())
	if e.metrics != nil {
		e.metrics.LockWait.Observe(m.LockWait.Seconds())
		e.metrics.ActiveSegments.WithLabelValues(e.shardLabel()).Set(float64(active))
		e.metrics.BufferedDocs.WithLabelValues(e.shardLabel()).Set(float64(e.memIndex.DocCount()))
	}
	e.logger.Info("segment flushed",
		"segment", m.Name,
		"docs", len(m.DocIDs),
		"tokens", m.Tokens(),
		"active_segments", active,
	)
	if e.onSeal != nil {
		e.onSeal(ctx, e.shardID, m)
	}
	return m, nil
}

func (e *Engine) recordFlush(status string, took time.Duration, tokens int64) {
	if e.metrics == nil {
		return
	}
	e.metrics.SegmentFlushesTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		e.metrics.BuildDuration.Observe(took.Seconds())
		e.metrics.TokensIndexedTotal.Add(float64(tokens))
	}
}

func (e *Engine) shardLabel() string {
	return strconv.Itoa(e.shardID)
}

// DocStats summarizes one document of one field.
type DocStats struct {
	DocID     string   `json:"doc_id"`
	Field     string   `json:"field"`
	Segment   string   `json:"segment"`
	Tokens    int      `json:"tokens"`
	Positions int      `json:"positions"`
	Prefixes  []string `json:"prefixes"`
}

// withDoc runs fn against a private reader of the newest segment holding
// docID. Segments stay open until fn returns.
func (e *Engine) withDoc(docID, field string, fn func(seg *segment.Reader, r *reader.Reader, local int) error) error {
	e.segMu.RLock()
	defer e.segMu.RUnlock()
	for _, seg := range slices.Backward(e.segments) {
		local, ok := seg.Lookup(docID)
		if !ok {
			continue
		}
		fr, ok := seg.Field(field)
		if !ok {
			return fmt.Errorf("%w: field %s in segment %s", apperrors.ErrNotFound, field, seg.Name())
		}
		return fn(seg, fr.Clone(), local)
	}
	return fmt.Errorf("%w: document %s", apperrors.ErrNotFound, docID)
}

// GetByID returns token id of a document field.
func (e *Engine) GetByID(docID, field string, id int) (*token.Token, error) {
	start := time.Now()
	var tok *token.Token
	err := e.withDoc(docID, field, func(_ *segment.Reader, r *reader.Reader, local int) error {
		var err error
		tok, err = r.GetByID(local, id)
		return err
	})
	e.observe("by_id", start, err, 1)
	return tok, err
}

// GetByPositionRange returns the tokens of a document field with a position
// in [start,end], ordered by id. A non-empty prefixes list keeps only
// tokens of those layers.
func (e *Engine) GetByPositionRange(docID, field string, start, end int, prefixes []string) ([]*token.Token, error) {
	began := time.Now()
	var tokens []*token.Token
	err := e.withDoc(docID, field, func(_ *segment.Reader, r *reader.Reader, local int) error {
		var err error
		if len(prefixes) > 0 {
			tokens, err = r.GetPrefixFilteredByPositionRange(local, prefixes, start, end)
		} else {
			tokens, err = r.GetByPositionRange(local, start, end)
		}
		return err
	})
	e.observe("by_position", began, err, len(tokens))
	return tokens, err
}

// GetByParent returns the children of parentID, ordered by id.
func (e *Engine) GetByParent(docID, field string, parentID int) ([]*token.Token, error) {
	start := time.Now()
	var tokens []*token.Token
	err := e.withDoc(docID, field, func(_ *segment.Reader, r *reader.Reader, local int) error {
		var err error
		tokens, err = r.GetByParent(local, parentID)
		return err
	})
	e.observe("by_parent", start, err, len(tokens))
	return tokens, err
}

func (e *Engine) Stats(docID, field string) (*DocStats, error) {
	start := time.Now()
	var stats *DocStats
	err := e.withDoc(docID, field, func(seg *segment.Reader, r *reader.Reader, local int) error {
		d, err := r.Doc(local)
		if err != nil {
			return err
		}
		stats = &DocStats{
			DocID:     docID,
			Field:     field,
			Segment:   seg.Name(),
			Tokens:    d.Size,
			Positions: d.NumberOfPositions(),
			Prefixes:  r.Prefixes(),
		}
		return nil
	})
	e.observe("stats", start, err, 0)
	return stats, err
}

func (e *Engine) observe(op string, start time.Time, err error, n int) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case apperrors.IsNotFound(err):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	e.metrics.LookupsTotal.WithLabelValues(op, status).Inc()
	e.metrics.LookupLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil && n > 0 {
		e.metrics.LookupTokens.Observe(float64(n))
	}
}

func (e *Engine) BufferedDocs() int {
	return e.memIndex.DocCount()
}

func (e *Engine) SegmentCount() int {
	e.segMu.RLock()
	defer e.segMu.RUnlock()
	return len(e.segments)
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if _, err := e.Flush(context.Background()); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				e.reopenSealed()
				if e.memIndex.DocCount() > 0 {
					if _, err := e.Flush(ctx); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) reopenSealed() {
	if !e.unopened.Load() {
		return
	}
	if e.ReloadSegments() > 0 {
		e.unopened.Store(false)
	}
}

// ReloadSegments opens segments sealed by another process since the last
// scan and returns how many were added.
func (e *Engine) ReloadSegments() int {
	sealed, _, err := segment.List(e.cfg.DataDir)
	if err != nil {
		e.logger.Error("segment scan failed", "error", err)
		return 0
	}
	e.segMu.Lock()
	defer e.segMu.Unlock()
	known := make(map[string]bool, len(e.segments))
	for _, s := range e.segments {
		known[s.Name()] = true
	}
	added := 0
	for _, name := range sealed {
		if known[name] {
			continue
		}
		r, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping", "segment", name, "error", err)
			continue
		}
		e.segments = append(e.segments, r)
		added++
	}
	if added > 0 {
		slices.SortFunc(e.segments, bySealTime)
		e.logger.Info("segments reloaded", "added", added, "active_segments", len(e.segments))
		if e.metrics != nil {
			e.metrics.ActiveSegments.WithLabelValues(e.shardLabel()).Set(float64(len(e.segments)))
		}
	}
	return added
}

func (e *Engine) Close() error {
	if !e.readOnly {
		if _, err := e.Flush(context.Background()); err != nil {
			e.logger.Error("final flush on close failed", "error", err)
		}
	}
	e.segMu.Lock()
	defer e.segMu.Unlock()
	for _, r := range e.segments {
		if err := r.Close(); err != nil {
			e.logger.Error("closing segment reader", "segment", r.Name(), "error", err)
		}
	}
	e.segments = nil
	return nil
}

func (e *Engine) loadExistingSegments() error {
	sealed, stale, err := segment.List(e.cfg.DataDir)
	if err != nil {
		return err
	}
	if !e.readOnly && len(stale) > 0 {
		if err := e.removeStale(stale); err != nil {
			return err
		}
	}
	for _, name := range sealed {
		r, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.segments = append(e.segments, r)
		e.logger.Info("loaded existing segment",
			"segment", name,
			"docs", r.DocCount(),
		)
	}
	slices.SortFunc(e.segments, bySealTime)
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.segments))
	return nil
}

// removeStale deletes segments left behind by interrupted writes. The build
// lock keeps it from racing a writer that is still running.
func (e *Engine) removeStale(stale []string) error {
	l, err := lock.Acquire(context.Background(), e.cfg.DataDir, e.cfg.LockFile,
		lock.Policy{MaxAttempts: e.cfg.LockMaxAttempts, Sleep: e.cfg.LockSleep})
	if err != nil {
		return fmt.Errorf("locking %s for cleanup: %w", e.cfg.DataDir, err)
	}
	defer l.Release()
	for _, name := range stale {
		e.logger.Warn("removing unfinished segment", "segment", name)
		if err := os.RemoveAll(filepath.Join(e.cfg.DataDir, name)); err != nil {
			return fmt.Errorf("removing unfinished segment %s: %w", name, err)
		}
	}
	return nil
}

func bySealTime(a, b *segment.Reader) int {
	ma, mb := a.Manifest(), b.Manifest()
	if c := ma.CreatedAt.Compare(mb.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(ma.Name, mb.Name)
}
