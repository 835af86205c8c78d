package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// statusError is a non-2xx upstream response. Some statuses are worth one
// more try inside the fetch deadline; most are not.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return "upstream status " + http.StatusText(e.Code)
}

// retryTransient runs fn up to 1+cfg.MaxRetries times, backing off between
// attempts, and gives up immediately on non-transient errors or when ctx
// fires. The whole dance stays inside the caller's fetch deadline.
func retryTransient[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	wait := 250 * time.Millisecond
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == cfg.MaxRetries {
			return zero, err
		}
		slog.Debug("transient upstream error, retrying",
			slog.Int("attempt", attempt+1), slog.Any("error", err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		if wait *= 2; wait > 2*time.Second {
			wait = 2 * time.Second
		}
	}
	return zero, lastErr
}

// isTransient reports whether an error is worth another attempt: throttling
// and server-side statuses, dial/DNS failures, and network timeouts.
// Context cancellation is never transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
