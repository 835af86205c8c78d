package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hello-github-ui/vodsearch/internal/store"
)

// initTest resets the engine to a known config for one test. Fields in
// override replace the defaults before Init applies its own.
func initTest(t *testing.T, override func(*Config)) {
	t.Helper()
	c := Config{
		Timeout:             2 * time.Second,
		TopKFirstBatch:      4,
		EarlyAbortAfterTopK: true,
		Health:              NewHealthStore(context.Background(), store.NewMemory()),
		Quality:             StaticQuality(TierGood),
	}
	if override != nil {
		override(&c)
	}
	Init(c)
	searchCache = nil // each test opts into the result cache explicitly
}
