// Package cache memoises rendered forward index lookups in Redis.
// Concurrent misses for the same key are collapsed with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "fwd:"

// Store is the key-value backend; pkg/redis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one lookup of a document field.
type Key struct {
	DocID string
	Field string
	Op    string
	Args  []string
}

// String renders the storage key. The document id is hashed on its own so
// every key of a document shares one pattern.
func (k Key) String() string {
	doc := sha256.Sum256([]byte(k.DocID))
	query := sha256.Sum256([]byte(k.Field + "\x00" + k.Op + "\x00" + strings.Join(k.Args, "\x00")))
	return fmt.Sprintf("%s%x:%x", keyPrefix, doc[:12], query[:16])
}

func docPattern(docID string) string {
	doc := sha256.Sum256([]byte(docID))
	return fmt.Sprintf("%s%x:*", keyPrefix, doc[:12])
}

type LookupCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *LookupCache {
	return &LookupCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "lookup-cache"),
	}
}

// Get returns the cached value for k. Backend errors count as misses.
func (c *LookupCache) Get(ctx context.Context, k Key) ([]byte, bool) {
	key := k.String()
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if !ok {
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "doc_id", k.DocID, "op", k.Op, "key", key)
	return data, true
}

func (c *LookupCache) Set(ctx context.Context, k Key, value []byte) {
	key := k.String()
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value for k, or computes and stores it.
// cached reports whether the value came from the store.
func (c *LookupCache) GetOrCompute(ctx context.Context, k Key, compute func() ([]byte, error)) (value []byte, cached bool, err error) {
	if data, ok := c.Get(ctx, k); ok {
		return data, true, nil
	}
	val, err, _ := c.group.Do(k.String(), func() (any, error) {
		data, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), false, nil
}

// InvalidateDoc drops every cached lookup of docID.
func (c *LookupCache) InvalidateDoc(ctx context.Context, docID string) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, docPattern(docID))
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache for %s: %w", docID, err)
	}
	c.logger.Info("cache invalidate", "doc_id", docID, "keys_deleted", deleted)
	return deleted, nil
}

// InvalidateAll drops every cached lookup.
func (c *LookupCache) InvalidateAll(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *LookupCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LookupCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *LookupCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
