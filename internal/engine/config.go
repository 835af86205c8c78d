package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	// Concurrency planning (see PlanConcurrency).
	BaseConcurrency int // default 3
	MinConcurrency  int // default 1
	MaxConcurrency  int // default 6

	// Per-source fetch behaviour.
	Timeout    time.Duration // per-source search timeout, default 8s
	MaxRetries int           // transient-status retries within the timeout, default 0
	ProxyURL   string        // optional proxy prefix for upstream API URLs

	// Aggregation.
	TopKFirstBatch      int  // sources that must contribute before early abort, default 4
	EarlyAbortAfterTopK bool // cancel remaining fetches once TopK reached

	// Result cache.
	CacheTTL             time.Duration // default 10m; 0 keeps the default
	CacheMaxEntries      int           // L1 eviction threshold, default 512
	CacheCleanupInterval time.Duration // default 5m

	HTTPClient *http.Client

	Health  *HealthStore   // required; NewHealthStore(store.NewMemory()) is fine
	Quality QualitySignal  // nil = assume good network
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages.
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
// Defaults are applied once here; zero values never leak into the planner.
func Init(c Config) {
	if c.BaseConcurrency <= 0 {
		c.BaseConcurrency = 3
	}
	if c.MinConcurrency <= 0 {
		c.MinConcurrency = 1
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 6
	}
	if c.MaxConcurrency < c.MinConcurrency {
		c.MaxConcurrency = c.MinConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.TopKFirstBatch <= 0 {
		c.TopKFirstBatch = 4
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = 512
	}
	if c.CacheCleanupInterval <= 0 {
		c.CacheCleanupInterval = 5 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	cfg = c
	Cfg = &cfg
}
