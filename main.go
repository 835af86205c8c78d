// vodsearch — aggregated multi-source VOD search MCP server.
//
// Exposes four MCP tools: aggregated_search, source_search, list_sources,
// source_health. Runs over stdio or streamable HTTP (with a plain-text
// /metrics endpoint in HTTP mode).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hello-github-ui/vodsearch/internal/engine"
	"github.com/hello-github-ui/vodsearch/internal/store"
	"github.com/hello-github-ui/vodsearch/internal/vodserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	kv := openStore()
	defer kv.Close()

	initEngine(kv)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "vodsearch",
		Version: version,
	}, nil)
	vodserver.RegisterTools(server)
	slog.Info("tools registered", slog.Int("count", 4))

	ctx := context.Background()
	if port := envStr("MCP_PORT", ""); port != "" {
		if err := runHTTP(ctx, server, ":"+port); err != nil {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func initEngine(kv store.KV) {
	quality := &engine.LatencyQuality{}

	engine.Init(engine.Config{
		BaseConcurrency:      envInt("BASE_CONCURRENCY", 3),
		MinConcurrency:       envInt("MIN_CONCURRENCY", 1),
		MaxConcurrency:       envInt("MAX_CONCURRENCY", 6),
		Timeout:              envDuration("SOURCE_TIMEOUT", 8*time.Second),
		MaxRetries:           envInt("MAX_RETRIES", 1),
		ProxyURL:             envStr("PROXY_URL", ""),
		TopKFirstBatch:       envInt("TOP_K_FIRST_BATCH", 4),
		EarlyAbortAfterTopK:  envBool("EARLY_ABORT_AFTER_TOP_K", true),
		CacheTTL:             envDuration("CACHE_TTL", 10*time.Minute),
		CacheMaxEntries:      envInt("CACHE_MAX_ENTRIES", 512),
		CacheCleanupInterval: envDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		Health:  engine.NewHealthStore(context.Background(), kv),
		Quality: quality,
	})
	engine.InitCache(envStr("REDIS_URL", ""))

	slog.Info("engine initialized",
		slog.Int("sources", len(engine.ListSources())),
		slog.String("version", version))
}

// openStore picks the health persistence substrate from HEALTH_STORE:
// sqlite (default), file, redis, or memory. Any setup failure degrades to
// memory — health history is loss-tolerant by contract.
func openStore() store.KV {
	kind := envStr("HEALTH_STORE", "sqlite")
	dataDir := envStr("DATA_DIR", defaultDataDir())

	var kv store.KV
	var err error
	switch kind {
	case "memory":
		return store.NewMemory()
	case "file":
		kv, err = store.NewFile(filepath.Join(dataDir, "health.json"))
	case "redis":
		kv, err = store.NewRedis(envStr("REDIS_URL", "redis://127.0.0.1:6379"), "")
	default:
		kv, err = store.NewSQLite(filepath.Join(dataDir, "vodsearch.db"))
	}
	if err != nil {
		slog.Warn("health store unavailable, using memory", slog.String("kind", kind), slog.Any("error", err))
		return store.NewMemory()
	}
	slog.Info("health store ready", slog.String("kind", kind))
	return kv
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vodsearch"
	}
	return filepath.Join(home, ".vodsearch")
}

// runHTTP serves the MCP server over streamable HTTP plus a /metrics text
// endpoint, shutting down cleanly when ctx ends.
func runHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(engine.FormatMetrics()))
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      600 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("starting vodsearch", slog.String("addr", addr))
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// --- env helpers ---

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
