package engine

import (
	"log/slog"
	"math"
)

// PlanConcurrency computes the parallelism for one aggregation session:
// base scaled down by network quality and by the recent failure ratio of the
// selected sources, clamped to [min, max]. It throttles under poor
// connectivity or upstream trouble without ever dropping below min.
func PlanConcurrency(selected []string) int {
	base := cfg.BaseConcurrency
	minC := cfg.MinConcurrency
	maxC := cfg.MaxConcurrency

	netFactor := 1.0
	tier := TierUnknown
	if cfg.Quality != nil {
		tier = cfg.Quality.Tier()
	}
	switch tier {
	case TierSlow:
		netFactor = 0.4
	case TierMedium:
		netFactor = 0.7
	}

	healthFactor := 1.0
	if cfg.Health != nil {
		healthFactor = math.Max(0.6, 1-cfg.Health.FailureRatio(selected))
	}

	n := int(math.Round(float64(base) * netFactor * healthFactor))
	if n < minC {
		n = minC
	}
	if n > maxC {
		n = maxC
	}
	slog.Debug("concurrency plan",
		slog.Int("limit", n),
		slog.String("network", tier.String()),
		slog.Float64("health_factor", healthFactor),
		slog.Int("sources", len(selected)))
	return n
}
