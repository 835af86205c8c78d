package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	searchPath = "/api.php/provide/vod/?ac=videolist&wd="
	scrapePath = "/index.php/vod/search.html?wd="
)

// inflight collapses concurrent identical upstream calls engine-wide.
var inflight = NewFlight()

// wire shapes: upstream APIs are loose about types, vod_id in particular
// arrives as either a number or a string.
type wireResponse struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	List *[]wireItem `json:"list"`
}

type wireItem struct {
	VodID      json.Number `json:"vod_id"`
	VodName    string      `json:"vod_name"`
	VodPic     string      `json:"vod_pic"`
	VodRemarks string      `json:"vod_remarks"`
	VodYear    string      `json:"vod_year"`
	VodArea    string      `json:"vod_area"`
	TypeName   string      `json:"type_name"`
	VodPlayURL string      `json:"vod_play_url"`
}

// SearchSource performs one source's search call: URL construction, dedup,
// timeout, validation, result tagging, and health recording. custom overrides
// the registry lookup for user-supplied endpoints.
func SearchSource(ctx context.Context, query, sourceID string, custom *CustomEndpoint) (*SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}

	var src Source
	if custom != nil {
		if custom.URL == "" {
			return nil, errors.New("custom endpoint url is required")
		}
		name := custom.Name
		if name == "" {
			name = "自定义源"
		}
		src = Source{Code: sourceID, Name: name, API: custom.URL}
		if src.Code == "" {
			src.Code = CustomSourcePrefix + "0"
		}
	} else {
		s, ok := LookupSource(sourceID)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", sourceID)
		}
		src = s
	}
	return fetchSource(ctx, src, query)
}

// fetchSource drives the resolved source through cache, dedup, transport and
// health accounting. Every settlement of the actual upstream call, including
// cancellation, records a health observation.
func fetchSource(ctx context.Context, src Source, query string) (*SearchResponse, error) {
	metrics.SourceFetches.Add(1)

	cacheKey := CacheKey("source_search", src.Code, src.API, query)
	if resp, ok := CacheGet(ctx, cacheKey); ok {
		return resp, nil
	}

	requestURL := buildSearchURL(src, query)

	resp, shared, err := inflight.Do(requestURL, func() (*SearchResponse, error) {
		start := time.Now()
		r, ferr := doSourceFetch(ctx, src, requestURL)
		elapsed := time.Since(start)

		healthOK := ferr == nil
		cfg.Health.Record(ctx, src.Code, healthOK, elapsed)
		if healthOK {
			if q, ok := cfg.Quality.(*LatencyQuality); ok && q != nil {
				q.Observe(elapsed)
			}
		}
		return r, ferr
	})
	if shared {
		metrics.DedupShares.Add(1)
	}
	if err != nil {
		metrics.FetchErrors.Add(1)
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.FetchTimeouts.Add(1)
		}
		return nil, fmt.Errorf("source %s: %w", src.Code, err)
	}

	CacheSet(ctx, cacheKey, resp)
	return resp, nil
}

// doSourceFetch is the single upstream call: timeout composed with the caller
// signal, optional polite throttle, transport, and response validation.
func doSourceFetch(ctx context.Context, src Source, requestURL string) (*SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if lim := sourceLimiter(src); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if src.Kind == KindScrape {
		return scrapeSearch(ctx, src, requestURL)
	}

	body, err := retryTransient(ctx, func() ([]byte, error) {
		return httpGet(ctx, requestURL)
	})
	if err != nil {
		return nil, err
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wire.Code != 200 {
		msg := wire.Msg
		if msg == "" {
			msg = "unspecified upstream error"
		}
		return nil, fmt.Errorf("upstream code %d: %s", wire.Code, msg)
	}
	if wire.List == nil {
		return nil, errors.New("malformed response: missing list field")
	}

	out := &SearchResponse{Code: 200, Msg: wire.Msg, List: make([]VideoItem, 0, len(*wire.List))}
	for _, w := range *wire.List {
		out.List = append(out.List, tagItem(w, src))
	}
	slog.Debug("source fetch complete",
		slog.String("source", src.Code),
		slog.Int("items", len(out.List)))
	return out, nil
}

// httpGet performs a GET and returns the body, converting non-2xx statuses to
// statusError so transient ones can be retried.
func httpGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		// The transport wraps context errors; surface them unambiguously.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// buildSearchURL resolves the upstream search URL for a source, routing it
// through the configured proxy when one is set. The resolved URL doubles as
// the dedup key.
func buildSearchURL(src Source, query string) string {
	base := strings.TrimSuffix(src.API, "/")
	target := base + searchPath + url.QueryEscape(query)
	if src.Kind == KindScrape {
		target = base + scrapePath + url.QueryEscape(query)
	}
	if cfg.ProxyURL != "" {
		return cfg.ProxyURL + url.QueryEscape(target)
	}
	return target
}

// tagItem converts a wire item and stamps the originating source onto it.
func tagItem(w wireItem, src Source) VideoItem {
	item := VideoItem{
		VodID:      w.VodID.String(),
		VodName:    w.VodName,
		VodPic:     w.VodPic,
		VodRemarks: w.VodRemarks,
		VodYear:    w.VodYear,
		VodArea:    w.VodArea,
		TypeName:   w.TypeName,
		VodPlayURL: w.VodPlayURL,
		SourceCode: src.Code,
		SourceName: src.Name,
	}
	if strings.HasPrefix(src.Code, CustomSourcePrefix) {
		item.APIURL = src.API
	}
	return item
}
