package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterNeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 2, 5} {
		l := NewLimiter(limit)
		var running, peak atomic.Int64
		var wg sync.WaitGroup

		for range 30 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = RunLimited(context.Background(), l, func() (struct{}, error) {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					running.Add(-1)
					return struct{}{}, nil
				})
			}()
		}
		wg.Wait()

		if got := peak.Load(); got > int64(limit) {
			t.Errorf("limit %d: observed %d concurrent tasks", limit, got)
		}
	}
}

func TestLimiterFIFOAdmission(t *testing.T) {
	l := NewLimiter(1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = RunLimited(context.Background(), l, func() (struct{}, error) {
			close(started)
			<-release
			return struct{}{}, nil
		})
	}()
	<-started

	// Queue three more in a known order: wait until each goroutine has
	// joined the queue before starting the next, then observe run order.
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = RunLimited(context.Background(), l, func() (struct{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return struct{}{}, nil
			})
		}(i)
		for {
			l.mu.Lock()
			queued := len(l.queue)
			l.mu.Unlock()
			if queued >= i {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	close(release)
	wg.Wait()

	if len(order) != 3 {
		t.Fatalf("ran %d queued tasks, want 3", len(order))
	}
	for i, got := range order {
		if got != i+1 {
			t.Fatalf("admission order = %v, want [1 2 3]", order)
		}
	}
}

func TestLimiterTaskFailureDoesNotStopGate(t *testing.T) {
	l := NewLimiter(1)
	boom := errors.New("boom")

	_, err := RunLimited(context.Background(), l, func() (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, err := RunLimited(context.Background(), l, func() (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("gate stuck after failure: got %d, err %v", got, err)
	}
}

func TestLimiterQueuedCallerHonorsContext(t *testing.T) {
	l := NewLimiter(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = RunLimited(context.Background(), l, func() (struct{}, error) {
			close(started)
			<-release
			return struct{}{}, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := RunLimited(ctx, l, func() (struct{}, error) {
			t.Error("cancelled task must not run")
			return struct{}{}, nil
		})
		errc <- err
	}()

	// Let the second caller queue, then cancel it.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued caller did not abort on cancellation")
	}

	// Gate still works afterwards.
	close(release)
	if _, err := RunLimited(context.Background(), l, func() (struct{}, error) {
		return struct{}{}, nil
	}); err != nil {
		t.Errorf("gate broken after queued cancellation: %v", err)
	}
}
