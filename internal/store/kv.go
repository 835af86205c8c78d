// Package store provides key-value persistence adapters for engine state.
// All adapters are best-effort by contract: callers treat load misses and
// save failures as non-fatal.
package store

import "context"

// KV is the persistence substrate for health statistics and similar small
// blobs. Load returns ok=false when the key has never been saved.
type KV interface {
	Load(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
	Close() error
}
