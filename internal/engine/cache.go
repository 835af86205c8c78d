package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Per-source search results are cached in two tiers: L1 in-memory and an
// optional L2 Redis that survives restarts. A hit skips dedup and transport
// entirely.
var searchCache *tieredCache

var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

type tieredCache struct {
	l1              sync.Map      // key → *cacheEntry
	rdb             *redis.Client // nil if Redis unavailable
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// InitCache sets up the result cache. Call after Init().
// redisURL can be empty to disable L2.
func InitCache(redisURL string) {
	c := &tieredCache{
		ttl:             cfg.CacheTTL,
		maxEntries:      cfg.CacheMaxEntries,
		cleanupInterval: cfg.CacheCleanupInterval,
	}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
			} else {
				c.rdb = rdb
				slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}

	searchCache = c
	slog.Info("cache: initialized",
		slog.Duration("ttl", c.ttl),
		slog.Bool("redis", c.rdb != nil),
		slog.Int("max_entries", c.maxEntries))

	go c.cleanupLoop()
}

// CacheKey builds a deterministic cache key from parts.
func CacheKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("vs:%x", hash[:12])
}

// CacheGet tries L1, then L2. On L2 hit, populates L1.
func CacheGet(ctx context.Context, key string) (*SearchResponse, bool) {
	if searchCache == nil {
		cacheMisses.Add(1)
		return nil, false
	}

	if val, ok := searchCache.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			var out SearchResponse
			if json.Unmarshal(entry.data, &out) == nil {
				cacheHits.Add(1)
				return &out, true
			}
		}
		searchCache.l1.Delete(key) // expired or corrupt
	}

	if searchCache.rdb != nil {
		data, err := searchCache.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var out SearchResponse
			if json.Unmarshal(data, &out) == nil {
				cacheHits.Add(1)
				searchCache.l1.Store(key, &cacheEntry{
					data:      data,
					expiresAt: time.Now().Add(searchCache.ttl),
				})
				return &out, true
			}
		}
	}

	cacheMisses.Add(1)
	return nil, false
}

// CacheSet stores a successful response in both tiers.
func CacheSet(ctx context.Context, key string, value *SearchResponse) {
	if searchCache == nil || value == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	searchCache.evictIfNeeded()

	searchCache.l1.Store(key, &cacheEntry{
		data:      data,
		expiresAt: time.Now().Add(searchCache.ttl),
	})

	if searchCache.rdb != nil {
		if err := searchCache.rdb.Set(ctx, key, data, searchCache.ttl).Err(); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
		}
	}
}

// CacheStats returns hit/miss counters.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}

// evictIfNeeded drops expired entries when L1 is over budget, then oldest
// entries if still over.
func (c *tieredCache) evictIfNeeded() {
	var count int
	c.l1.Range(func(_, _ any) bool { count++; return true })
	if count < c.maxEntries {
		return
	}
	now := time.Now()
	c.l1.Range(func(k, v any) bool {
		if now.After(v.(*cacheEntry).expiresAt) {
			c.l1.Delete(k)
			count--
		}
		return count >= c.maxEntries
	})
	if count < c.maxEntries {
		return
	}
	// Still over: drop arbitrary entries down to 3/4 of the budget.
	target := c.maxEntries * 3 / 4
	c.l1.Range(func(k, _ any) bool {
		c.l1.Delete(k)
		count--
		return count > target
	})
}

// cleanupLoop periodically sweeps expired L1 entries.
func (c *tieredCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.l1.Range(func(k, v any) bool {
			if now.After(v.(*cacheEntry).expiresAt) {
				c.l1.Delete(k)
			}
			return true
		})
	}
}
