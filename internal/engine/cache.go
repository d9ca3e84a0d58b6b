package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/metrics"
	pkgredis "github.com/Anubhav12123/AI-Recommender-System/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "reco:"

// ResultCache caches ranked results in redis, collapsing concurrent
// identical queries through singleflight. Keys include the serving version
// id so a publish naturally misses; Invalidate clears the old entries
// eagerly.
type ResultCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewResultCache(client *pkgredis.Client, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "result-cache"),
	}
}

func (c *ResultCache) get(ctx context.Context, key string) (*Result, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.hits.Add(1)
	metrics.CacheHitsTotal.Inc()
	return &result, true
}

func (c *ResultCache) set(ctx context.Context, key string, result *Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for the key parts, or runs
// computeFn once per key across concurrent callers and caches its result.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	keyParts string,
	computeFn func() (*Result, error),
) (*Result, bool, error) {
	key := c.buildKey(keyParts)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Result), false, nil
}

// Invalidate drops every cached result, called after a new version is
// published.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("result cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) buildKey(parts string) string {
	hash := sha256.Sum256([]byte(parts))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}
