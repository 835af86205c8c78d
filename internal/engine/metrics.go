package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	AggregatedSearches atomic.Int64
	SourceFetches      atomic.Int64
	FetchErrors        atomic.Int64
	FetchTimeouts      atomic.Int64
	DedupShares        atomic.Int64
	EarlyAborts        atomic.Int64
	ScrapeFetches      atomic.Int64
	ItemsDelivered     atomic.Int64
}

// GetMetrics returns a snapshot of all counters including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"aggregated_searches": metrics.AggregatedSearches.Load(),
		"source_fetches":      metrics.SourceFetches.Load(),
		"fetch_errors":        metrics.FetchErrors.Load(),
		"fetch_timeouts":      metrics.FetchTimeouts.Load(),
		"dedup_shares":        metrics.DedupShares.Load(),
		"early_aborts":        metrics.EarlyAborts.Load(),
		"scrape_fetches":      metrics.ScrapeFetches.Load(),
		"items_delivered":     metrics.ItemsDelivered.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"aggregated_searches", "source_fetches",
		"fetch_errors", "fetch_timeouts",
		"dedup_shares", "early_aborts", "scrape_fetches",
		"items_delivered",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}
