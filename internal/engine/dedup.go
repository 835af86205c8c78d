package engine

import "sync"

// flightCall is one in-flight upstream request; joiners wait on done and
// read the shared outcome.
type flightCall struct {
	done chan struct{}
	resp *SearchResponse
	err  error
}

// Flight collapses concurrent identical requests into one upstream call.
// All callers sharing a key observe the identical outcome, success or
// failure; the entry is removed when the call settles so later requests go
// upstream fresh.
type Flight struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

// NewFlight creates an empty deduplicator.
func NewFlight() *Flight {
	return &Flight{calls: make(map[string]*flightCall)}
}

// Do returns the result of fn for key, issuing at most one concurrent fn
// invocation per key. shared reports whether this caller joined an existing
// in-flight call rather than starting its own.
func (f *Flight) Do(key string, fn func() (*SearchResponse, error)) (resp *SearchResponse, shared bool, err error) {
	f.mu.Lock()
	if c, ok := f.calls[key]; ok {
		f.mu.Unlock()
		<-c.done
		return c.resp, true, c.err
	}
	c := &flightCall{done: make(chan struct{})}
	f.calls[key] = c
	f.mu.Unlock()

	c.resp, c.err = fn()

	f.mu.Lock()
	delete(f.calls, key)
	f.mu.Unlock()
	close(c.done)

	return c.resp, false, c.err
}

// Pending reports the number of keys with an outstanding upstream call.
func (f *Flight) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
