package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hello-github-ui/vodsearch/internal/store"
)

// healthKey is the fixed KV key the full health map persists under.
const healthKey = "source_health"

// SourceHealth is the exponentially smoothed latency/success history for one
// source. Records are created lazily on the first completed call and never
// deleted; the set of distinct sources is small.
type SourceHealth struct {
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	SuccessCount  int       `json:"success_count"`
	FailureCount  int       `json:"failure_count"`
	LastLatencyMs float64   `json:"last_latency_ms"`
	LastUpdated   time.Time `json:"last_updated"`
}

// HealthStore tracks per-source reliability statistics and scores sources
// for dispatch ordering. Persistence is best-effort: load and save failures
// are swallowed.
type HealthStore struct {
	mu      sync.Mutex
	records map[string]*SourceHealth
	kv      store.KV
}

// NewHealthStore creates a store persisting through kv and loads any prior
// history. A load failure just means "no history".
func NewHealthStore(ctx context.Context, kv store.KV) *HealthStore {
	h := &HealthStore{records: make(map[string]*SourceHealth), kv: kv}
	raw, ok, err := kv.Load(ctx, healthKey)
	if err != nil || !ok {
		if err != nil {
			slog.Debug("health: load failed, starting empty", slog.Any("error", err))
		}
		return h
	}
	if err := json.Unmarshal([]byte(raw), &h.records); err != nil {
		slog.Debug("health: corrupt history, starting empty", slog.Any("error", err))
		h.records = make(map[string]*SourceHealth)
	}
	return h
}

// Record folds one completed call into the source's history and persists the
// full map. Latency smooths at 0.7/0.3 on success and 0.8/0.2 on failure, so
// timeout-length failure latencies pull the average more slowly.
func (h *HealthStore) Record(ctx context.Context, sourceID string, ok bool, latency time.Duration) {
	ms := float64(latency.Milliseconds())

	h.mu.Lock()
	rec, exists := h.records[sourceID]
	if !exists {
		rec = &SourceHealth{}
		h.records[sourceID] = rec
	}
	if ok {
		rec.AvgLatencyMs = rec.AvgLatencyMs*0.7 + ms*0.3
		rec.SuccessCount++
	} else {
		rec.AvgLatencyMs = rec.AvgLatencyMs*0.8 + ms*0.2
		rec.FailureCount++
	}
	rec.LastLatencyMs = ms
	rec.LastUpdated = time.Now()
	raw, err := json.Marshal(h.records)
	h.mu.Unlock()

	if err != nil {
		return
	}
	if err := h.kv.Save(ctx, healthKey, string(raw)); err != nil {
		slog.Debug("health: save failed", slog.Any("error", err))
	}
}

// Score ranks a source in roughly [0,1]: 0 for unknown sources, otherwise
// successRate*0.7 + latencyScore*0.3 where an attempt-free record scores a
// neutral 0.5 success rate and latencyScore = 1/max(100, avgLatencyMs).
func (h *HealthStore) Score(sourceID string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[sourceID]
	if !ok {
		return 0
	}
	attempts := rec.SuccessCount + rec.FailureCount
	successRate := 0.5
	if attempts > 0 {
		successRate = float64(rec.SuccessCount) / float64(attempts)
	}
	avg := rec.AvgLatencyMs
	if avg < 100 {
		avg = 100
	}
	latencyScore := 1 / avg
	return successRate*0.7 + latencyScore*0.3
}

// FailureRatio reports recorded failures over recorded attempts across the
// given sources, 0 when there is no history.
func (h *HealthStore) FailureRatio(sourceIDs []string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var attempts, failures int
	for _, id := range sourceIDs {
		if rec, ok := h.records[id]; ok {
			attempts += rec.SuccessCount + rec.FailureCount
			failures += rec.FailureCount
		}
	}
	if attempts == 0 {
		return 0
	}
	return float64(failures) / float64(attempts)
}

// Snapshot returns a copy of every record, keyed by source id.
func (h *HealthStore) Snapshot() map[string]SourceHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]SourceHealth, len(h.records))
	for id, rec := range h.records {
		out[id] = *rec
	}
	return out
}
