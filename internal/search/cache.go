package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
)

// Cache stores search results by normalized query.
type Cache interface {
	Get(ctx context.Context, key string) ([]WebResult, bool, error)
	Set(ctx context.Context, key string, results []WebResult) error
}

// MemoryCache is an in-process cache.
type MemoryCache struct {
	cache *cache.Cache
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{cache: cache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]WebResult, bool, error) {
	if x, found := m.cache.Get(key); found {
		return x.([]WebResult), true, nil
	}
	return nil, false, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, results []WebResult) error {
	m.cache.Set(key, results, cache.DefaultExpiration)
	return nil
}

// RedisCache shares cached results between instances.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]WebResult, bool, error) {
	data, err := r.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var results []WebResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, results []WebResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, redisKey(key), data, r.ttl).Err()
}

func redisKey(key string) string {
	return "search:" + key
}

// CachedSearcher serves repeated queries from a cache. Cache failures fall
// through to the live search.
type CachedSearcher struct {
	next   WebSearcher
	cache  Cache
	logger *logger.Logger
}

// NewCachedSearcher wraps next with cache.
func NewCachedSearcher(next WebSearcher, c Cache, log *logger.Logger) *CachedSearcher {
	return &CachedSearcher{next: next, cache: c, logger: log}
}

func (c *CachedSearcher) Search(ctx context.Context, query string) ([]WebResult, error) {
	key := normalizeQuery(query)

	results, found, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.SearchCacheHits.WithLabelValues("error").Inc()
		c.logger.Warn("search cache read failed", zap.Error(err))
	case found:
		metrics.SearchCacheHits.WithLabelValues("hit").Inc()
		return results, nil
	default:
		metrics.SearchCacheHits.WithLabelValues("miss").Inc()
	}

	results, err = c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, results); err != nil {
		c.logger.Warn("search cache write failed", zap.Error(err))
	}
	return results, nil
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
