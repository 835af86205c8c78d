// Package vodserver registers the VOD search MCP tools: aggregated_search,
// source_search, list_sources, and source_health.
package vodserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hello-github-ui/vodsearch/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools registers all VOD search tools on the given MCP server.
func RegisterTools(server *mcp.Server) {
	registerAggregatedSearch(server)
	registerSourceSearch(server)
	registerListSources(server)
	registerSourceHealth(server)
}

// AggregatedSearchInput is the input schema for aggregated_search.
type AggregatedSearchInput struct {
	Query           string                  `json:"query" jsonschema:"the title or keyword to search for"`
	Sources         []string                `json:"sources,omitempty" jsonschema:"source codes to query; empty means all built-in sources"`
	CustomEndpoints []engine.CustomEndpoint `json:"custom_endpoints,omitempty" jsonschema:"extra user-supplied API endpoints to include"`
	TimeoutSec      int                     `json:"timeout_sec,omitempty" jsonschema:"overall session timeout in seconds (default 30)"`
}

// AggregatedSearchOutput is the output schema for aggregated_search.
type AggregatedSearchOutput struct {
	Items []engine.VideoItem    `json:"items"`
	Count int                   `json:"count"`
	Stats engine.AggregateStats `json:"stats"`
}

func registerAggregatedSearch(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "aggregated_search",
		Description: "Search multiple VOD sources at once. Results are deduplicated per source, streamed internally and returned as one merged list together with per-session stats.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input AggregatedSearchInput) (*mcp.CallToolResult, AggregatedSearchOutput, error) {
		if input.Query == "" {
			return nil, AggregatedSearchOutput{}, errors.New("query is required")
		}

		sources := input.Sources
		if len(sources) == 0 {
			for _, s := range engine.ListSources() {
				sources = append(sources, s.Code)
			}
		}

		timeout := 30 * time.Second
		if input.TimeoutSec > 0 {
			timeout = time.Duration(input.TimeoutSec) * time.Second
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var mu sync.Mutex
		var items []engine.VideoItem
		stats, err := engine.AggregatedSearch(ctx, input.Query, sources, input.CustomEndpoints, func(batch []engine.VideoItem) {
			mu.Lock()
			items = append(items, batch...)
			mu.Unlock()
		})
		if err != nil {
			return nil, AggregatedSearchOutput{}, err
		}

		return nil, AggregatedSearchOutput{Items: items, Count: len(items), Stats: *stats}, nil
	})
}

// SourceSearchInput is the input schema for source_search.
type SourceSearchInput struct {
	Query     string `json:"query" jsonschema:"the title or keyword to search for"`
	Source    string `json:"source,omitempty" jsonschema:"source code from list_sources"`
	CustomURL string `json:"custom_url,omitempty" jsonschema:"ad-hoc API base URL instead of a registered source"`
	Name      string `json:"name,omitempty" jsonschema:"display name for the custom endpoint"`
}

// SourceSearchOutput is the output schema for source_search.
type SourceSearchOutput struct {
	Items []engine.VideoItem `json:"items"`
	Count int                `json:"count"`
}

func registerSourceSearch(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "source_search",
		Description: "Search a single VOD source by code, or an ad-hoc custom endpoint URL.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input SourceSearchInput) (*mcp.CallToolResult, SourceSearchOutput, error) {
		var custom *engine.CustomEndpoint
		if input.CustomURL != "" {
			custom = &engine.CustomEndpoint{URL: input.CustomURL, Name: input.Name}
		}
		resp, err := engine.SearchSource(ctx, input.Query, input.Source, custom)
		if err != nil {
			return nil, SourceSearchOutput{}, err
		}
		return nil, SourceSearchOutput{Items: resp.List, Count: len(resp.List)}, nil
	})
}

// SourceInfo describes one registered source.
type SourceInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Scrape bool   `json:"scrape,omitempty"`
}

// ListSourcesOutput is the output schema for list_sources.
type ListSourcesOutput struct {
	Sources []SourceInfo `json:"sources"`
	Count   int          `json:"count"`
}

func registerListSources(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sources",
		Description: "List all registered VOD sources with their codes and display names.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, ListSourcesOutput, error) {
		all := engine.ListSources()
		out := ListSourcesOutput{Sources: make([]SourceInfo, 0, len(all)), Count: len(all)}
		for _, s := range all {
			out.Sources = append(out.Sources, SourceInfo{
				Code:   s.Code,
				Name:   s.Name,
				Scrape: s.Kind == engine.KindScrape,
			})
		}
		return nil, out, nil
	})
}

// SourceHealthInfo is one source's reliability snapshot.
type SourceHealthInfo struct {
	Code          string  `json:"code"`
	Score         float64 `json:"score"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	SuccessCount  int     `json:"success_count"`
	FailureCount  int     `json:"failure_count"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// SourceHealthOutput is the output schema for source_health.
type SourceHealthOutput struct {
	Sources []SourceHealthInfo `json:"sources"`
}

func registerSourceHealth(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "source_health",
		Description: "Report per-source reliability statistics: smoothed latency, success/failure counts, and the dispatch score derived from them.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, SourceHealthOutput, error) {
		snap := engine.Cfg.Health.Snapshot()
		out := SourceHealthOutput{Sources: make([]SourceHealthInfo, 0, len(snap))}
		for code, rec := range snap {
			out.Sources = append(out.Sources, SourceHealthInfo{
				Code:          code,
				Score:         engine.Cfg.Health.Score(code),
				AvgLatencyMs:  rec.AvgLatencyMs,
				SuccessCount:  rec.SuccessCount,
				FailureCount:  rec.FailureCount,
				LastLatencyMs: rec.LastLatencyMs,
			})
		}
		sort.Slice(out.Sources, func(i, j int) bool { return out.Sources[i].Code < out.Sources[j].Code })
		return nil, out, nil
	})
}
