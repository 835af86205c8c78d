package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// aggregateSession is the per-call state of one aggregated search: the seen
// set, the per-source cancel controllers, and the top-K accounting. All of it
// is guarded by mu; result delivery is serialized under the same lock so a
// batch's callback and the early-abort trigger it may cause stay ordered.
type aggregateSession struct {
	mu          sync.Mutex
	seen        map[string]bool
	cancels     []context.CancelFunc
	contributed int
	failed      int
	unique      int
	aborted     bool
	onNew       func([]VideoItem)
}

// admit filters a source's items against the seen set, delivers the
// first-seen ones, and reports whether this source pushed the contributor
// count to the early-abort threshold.
func (s *aggregateSession) admit(items []VideoItem) (reachedTopK bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := items[:0:0]
	for _, it := range items {
		if k := it.Key(); !s.seen[k] {
			s.seen[k] = true
			fresh = append(fresh, it)
		}
	}
	if len(fresh) == 0 {
		return false
	}
	s.contributed++
	s.unique += len(fresh)
	metrics.ItemsDelivered.Add(int64(len(fresh)))
	if s.onNew != nil {
		s.onNew(fresh)
	}
	return cfg.EarlyAbortAfterTopK && !s.aborted && s.contributed == cfg.TopKFirstBatch
}

// abortRemaining cancels every per-source controller. Cancelling sources that
// already settled is a no-op.
func (s *aggregateSession) abortRemaining() {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	cancels := s.cancels
	s.mu.Unlock()

	metrics.EarlyAborts.Add(1)
	slog.Debug("early abort: enough sources answered",
		slog.Int("contributed", cfg.TopKFirstBatch))
	for _, cancel := range cancels {
		cancel()
	}
}

// selection is one dispatch target: a registered source code, optionally
// carrying the custom endpoint it was built from.
type selection struct {
	code   string
	custom *CustomEndpoint
}

// AggregatedSearch fans the query out over the selected sources, streaming
// deduplicated per-source batches to onNewResults in arrival order. It
// returns once every source task settles, or with ctx.Err() as soon as the
// caller's context fires, whichever happens first. Individual source
// failures never fail the session; they just contribute nothing.
func AggregatedSearch(ctx context.Context, query string, sourceIDs []string, custom []CustomEndpoint, onNewResults func([]VideoItem)) (*AggregateStats, error) {
	metrics.AggregatedSearches.Add(1)

	session := &aggregateSession{
		seen:  make(map[string]bool),
		onNew: onNewResults,
	}

	// Planning: resolve the selection, bail out on the trivial cases.
	selected := make([]selection, 0, len(sourceIDs)+len(custom))
	for _, id := range sourceIDs {
		selected = append(selected, selection{code: id})
	}
	for i := range custom {
		src, err := RegisterCustom(i, custom[i])
		if err != nil {
			slog.Warn("custom endpoint rejected", slog.Any("error", err))
			session.failed++
			continue
		}
		selected = append(selected, selection{code: src.Code, custom: &custom[i]})
	}
	stats := &AggregateStats{SourcesSelected: len(selected) + session.failed}

	if len(selected) == 0 && session.failed == 0 {
		return stats, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Order by health score, best first. Stable: unscored sources keep
	// their relative input order at the tail.
	codes := make([]string, len(selected))
	for i, sel := range selected {
		codes[i] = sel.code
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return cfg.Health.Score(selected[i].code) > cfg.Health.Score(selected[j].code)
	})

	limiter := NewLimiter(PlanConcurrency(codes))

	// One child controller per source, derived from the session signal.
	ctxs := make([]context.Context, len(selected))
	session.cancels = make([]context.CancelFunc, len(selected))
	for i := range selected {
		ctxs[i], session.cancels[i] = context.WithCancel(ctx)
	}
	defer func() {
		for _, cancel := range session.cancels {
			cancel()
		}
	}()

	// Dispatch in score order. Admission through the limiter happens in this
	// loop so queued sources start strictly in dispatch order; each admitted
	// fetch runs and settles on its own goroutine.
	var wg sync.WaitGroup
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, sel := range selected {
			childCtx := ctxs[i]
			if err := limiter.acquire(childCtx); err != nil {
				session.noteFailure(childCtx, sel.code, err)
				continue
			}
			wg.Add(1)
			go func(sel selection, childCtx context.Context) {
				defer wg.Done()
				defer limiter.release()
				runSource(childCtx, session, query, sel)
			}(sel, childCtx)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// The session rejects as cancelled even while tasks drain.
		return nil, ctx.Err()
	}

	session.mu.Lock()
	stats.SourcesContributed = session.contributed
	stats.SourcesFailed = session.failed
	stats.UniqueItems = session.unique
	stats.EarlyAborted = session.aborted
	session.mu.Unlock()

	slog.Info("aggregated search settled",
		slog.String("query", query),
		slog.Int("sources", stats.SourcesSelected),
		slog.Int("contributed", stats.SourcesContributed),
		slog.Int("unique_items", stats.UniqueItems),
		slog.Bool("early_aborted", stats.EarlyAborted))
	return stats, nil
}

// runSource fetches one source and folds its outcome into the session.
func runSource(ctx context.Context, session *aggregateSession, query string, sel selection) {
	resp, err := SearchSource(ctx, query, sel.code, sel.custom)
	if err != nil {
		session.noteFailure(ctx, sel.code, err)
		return
	}
	if session.admit(resp.List) {
		session.abortRemaining()
	}
}

// noteFailure converts a per-source failure into zero results. A failure is
// benign cancellation only when this source's own controller fired (early
// abort or the caller leaving); a fetch that ran out its own timeout while
// the controller was still live is a genuine transport failure.
func (s *aggregateSession) noteFailure(ctx context.Context, code string, err error) {
	cancelled := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if cancelled && ctx.Err() != nil {
		slog.Debug("source cancelled", slog.String("source", code))
		return
	}
	slog.Warn("source failed, continuing without it",
		slog.String("source", code), slog.Any("error", err))
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}
