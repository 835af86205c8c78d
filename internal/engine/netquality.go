package engine

import (
	"sync"
	"time"
)

// NetworkTier is a coarse connection-quality classification.
type NetworkTier int

const (
	TierUnknown NetworkTier = iota
	TierGood
	TierMedium
	TierSlow
)

func (t NetworkTier) String() string {
	switch t {
	case TierGood:
		return "good"
	case TierMedium:
		return "medium"
	case TierSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// QualitySignal reports the current network quality tier. Unknown fails open:
// the planner treats it as a good connection.
type QualitySignal interface {
	Tier() NetworkTier
}

// StaticQuality is a fixed-tier signal, useful for injection and tests.
type StaticQuality NetworkTier

func (s StaticQuality) Tier() NetworkTier { return NetworkTier(s) }

// LatencyQuality classifies the connection from an exponentially smoothed
// average of observed fetch latencies. The fetcher feeds it on every
// successful call; with no observations the tier is Unknown.
type LatencyQuality struct {
	mu    sync.Mutex
	avgMs float64
	seen  bool

	// Tier thresholds on the smoothed average.
	MediumAbove time.Duration // default 1s
	SlowAbove   time.Duration // default 3s
}

// Observe folds one request latency into the average.
func (q *LatencyQuality) Observe(latency time.Duration) {
	ms := float64(latency.Milliseconds())
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.seen {
		q.avgMs = ms
		q.seen = true
		return
	}
	q.avgMs = q.avgMs*0.7 + ms*0.3
}

// Tier classifies the current smoothed latency.
func (q *LatencyQuality) Tier() NetworkTier {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.seen {
		return TierUnknown
	}
	medium := q.MediumAbove
	if medium <= 0 {
		medium = time.Second
	}
	slow := q.SlowAbove
	if slow <= 0 {
		slow = 3 * time.Second
	}
	switch {
	case q.avgMs >= float64(slow.Milliseconds()):
		return TierSlow
	case q.avgMs >= float64(medium.Milliseconds()):
		return TierMedium
	default:
		return TierGood
	}
}
