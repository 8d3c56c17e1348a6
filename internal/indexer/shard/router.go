// Package shard provides hash-based shard routing for index engines. Each
// shard owns an independent indexer.Engine instance backed by its own data
// directory, and the Router dispatches documents by document id.
package shard

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Router maps shard IDs to dedicated indexer.Engine instances.
type Router struct {
	engines   map[int]*indexer.Engine
	mu        sync.RWMutex
	numShards int
	logger    *slog.Logger
}

// NewRouter creates cfg.NumShards engines, each in its own sub-directory
// under cfg.DataDir. opts apply to every engine; the shard id is added.
func NewRouter(cfg config.ForwardConfig, opts ...indexer.Option) (*Router, error) {
	r := &Router{
		engines:   make(map[int]*indexer.Engine, cfg.NumShards),
		numShards: cfg.NumShards,
		logger:    slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < cfg.NumShards; i++ {
		shardCfg := cfg
		shardCfg.DataDir = ShardDir(cfg.DataDir, i)
		engine, err := indexer.NewEngine(shardCfg, append(opts[:len(opts):len(opts)], indexer.WithShardID(i))...)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines[i] = engine
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", cfg.NumShards)
	return r, nil
}

func ShardDir(dataDir string, shardID int) string {
	return filepath.Join(dataDir, fmt.Sprintf("shard-%d", shardID))
}

// ShardFor deterministically maps a document id to a shard.
func (r *Router) ShardFor(docID string) int {
	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(r.numShards))
}

// Route returns the Engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[shardID]
	if !ok {
		return nil, fmt.Errorf("%w: %d (valid range: 0-%d)", apperrors.ErrShardUnknown, shardID, r.numShards-1)
	}
	return engine, nil
}

// ForDocument returns the Engine that owns docID.
func (r *Router) ForDocument(docID string) *indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[r.ShardFor(docID)]
}

// GetAllEngines returns a snapshot map of all shard engines.
func (r *Router) GetAllEngines() map[int]*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[int]*indexer.Engine, len(r.engines))
	for id, engine := range r.engines {
		result[id] = engine
	}
	return result
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// FlushAll seals the buffered documents of every shard in parallel.
func (r *Router) FlushAll(ctx context.Context) error {
	engines := r.GetAllEngines()
	g, ctx := errgroup.WithContext(ctx)
	for id, engine := range engines {
		g.Go(func() error {
			if _, err := engine.Flush(ctx); err != nil {
				r.logger.Error("flush failed", "shard_id", id, "error", err)
				return fmt.Errorf("flushing shard %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ReloadAll tells every shard engine to re-scan for newly flushed segments.
// Returns the total number of new segments loaded across all shards.
func (r *Router) ReloadAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, engine := range r.engines {
		total += engine.ReloadSegments()
	}
	return total
}

// SegmentCount sums the open segments of all shards.
func (r *Router) SegmentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, engine := range r.engines {
		total += engine.SegmentCount()
	}
	return total
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

// closeAll closes every shard engine, collecting the first error encountered.
func (r *Router) closeAll() error {
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
