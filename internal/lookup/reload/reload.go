// Package reload keeps a read-only shard router current: it opens segments
// announced on the index.complete topic and rescans every shard on a timer
// in case an announcement was missed.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/kafka"
)

// HandleSealed returns a Kafka MessageHandler for SegmentSealedEvents. It
// reloads the announced shard and drops cached lookups once new segments
// are open. lookupCache may be nil.
func HandleSealed(router *shard.Router, lookupCache *cache.LookupCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "segment-reloader")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.SegmentSealedEvent](value)
		if err != nil {
			logger.Error("failed to decode sealed event", "error", err, "key", string(key))
			return err
		}
		engine, err := router.Route(event.ShardID)
		if err != nil {
			return fmt.Errorf("reloading for segment %s: %w", event.Segment, err)
		}
		loaded := engine.ReloadSegments()
		logger.Debug("sealed event applied",
			"shard_id", event.ShardID,
			"segment", event.Segment,
			"segments_loaded", loaded,
		)
		if loaded > 0 {
			invalidate(ctx, lookupCache, logger)
		}
		return nil
	}
}

// Start rescans all shards every interval until ctx is cancelled.
func Start(ctx context.Context, router *shard.Router, lookupCache *cache.LookupCache, interval time.Duration) {
	logger := slog.Default().With("component", "segment-reloader")
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if loaded := router.ReloadAll(); loaded > 0 {
					logger.Info("periodic reload opened segments", "segments_loaded", loaded)
					invalidate(ctx, lookupCache, logger)
				}
			}
		}
	}()
}

func invalidate(ctx context.Context, lookupCache *cache.LookupCache, logger *slog.Logger) {
	if lookupCache == nil {
		return
	}
	if _, err := lookupCache.InvalidateAll(ctx); err != nil {
		logger.Warn("cache invalidation after reload failed", "error", err)
	}
}
