package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

const okBody = `{"code":200,"list":[
	{"vod_id":101,"vod_name":"流浪地球","vod_remarks":"HD"},
	{"vod_id":"102","vod_name":"流浪地球2","vod_remarks":"TC"}
]}`

func TestSearchSourceSuccess(t *testing.T) {
	initTest(t, nil)
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		jsonHandler(okBody)(w, r)
	}))
	defer srv.Close()

	resp, err := SearchSource(context.Background(), "流浪地球", "custom_x", &CustomEndpoint{URL: srv.URL, Name: "测试源"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.List) != 2 {
		t.Fatalf("got %d items, want 2", len(resp.List))
	}
	if !strings.Contains(gotPath, "wd=") || !strings.Contains(gotPath, "provide/vod") {
		t.Errorf("unexpected search path %q", gotPath)
	}

	// Numeric and string vod_ids both normalize; every item is tagged.
	if resp.List[0].VodID != "101" || resp.List[1].VodID != "102" {
		t.Errorf("vod ids = %q/%q", resp.List[0].VodID, resp.List[1].VodID)
	}
	for _, it := range resp.List {
		if it.SourceCode != "custom_x" || it.SourceName != "测试源" {
			t.Errorf("item not tagged: %+v", it)
		}
		if it.APIURL != srv.URL {
			t.Errorf("custom item missing api url: %+v", it)
		}
	}
}

func TestSearchSourceValidation(t *testing.T) {
	initTest(t, nil)
	tests := []struct {
		name   string
		query  string
		source string
		custom *CustomEndpoint
	}{
		{"empty query", "  ", "dyttzy", nil},
		{"unknown source", "q", "no_such_source", nil},
		{"custom without url", "q", "custom_0", &CustomEndpoint{Name: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SearchSource(context.Background(), tt.query, tt.source, tt.custom); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSearchSourceUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"upstream code not 200", jsonHandler(`{"code":-1,"msg":"参数错误"}`)},
		{"missing list field", jsonHandler(`{"code":200,"msg":"ok"}`)},
		{"not json", jsonHandler(`<html>blocked</html>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t, nil)
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := SearchSource(context.Background(), "q", "custom_f", &CustomEndpoint{URL: srv.URL})
			if err == nil {
				t.Fatal("expected error")
			}
			rec, ok := cfg.Health.Snapshot()["custom_f"]
			if !ok || rec.FailureCount != 1 {
				t.Errorf("failure not recorded to health store: %+v", rec)
			}
		})
	}
}

func TestSearchSourceRecordsSuccessHealth(t *testing.T) {
	initTest(t, nil)
	srv := httptest.NewServer(jsonHandler(okBody))
	defer srv.Close()

	if _, err := SearchSource(context.Background(), "q", "custom_h", &CustomEndpoint{URL: srv.URL}); err != nil {
		t.Fatal(err)
	}
	rec, ok := cfg.Health.Snapshot()["custom_h"]
	if !ok || rec.SuccessCount != 1 || rec.FailureCount != 0 {
		t.Errorf("success not recorded: %+v", rec)
	}
	if cfg.Health.Score("custom_h") <= 0 {
		t.Error("successful source should have a positive score")
	}
}

func TestSearchSourceTimeout(t *testing.T) {
	initTest(t, func(c *Config) { c.Timeout = 50 * time.Millisecond })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := SearchSource(context.Background(), "q", "custom_t", &CustomEndpoint{URL: srv.URL})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, want ~50ms", elapsed)
	}
	if rec := cfg.Health.Snapshot()["custom_t"]; rec.FailureCount != 1 {
		t.Errorf("timeout not recorded as failure: %+v", rec)
	}
}

func TestSearchSourceCallerCancellation(t *testing.T) {
	initTest(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := SearchSource(ctx, "q", "custom_c", &CustomEndpoint{URL: srv.URL})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConcurrentIdenticalFetchesShareOneCall(t *testing.T) {
	initTest(t, nil)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		jsonHandler(okBody)(w, r)
	}))
	defer srv.Close()

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := SearchSource(context.Background(), "q", "custom_d", &CustomEndpoint{URL: srv.URL}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hit %d times, want 1", got)
	}
	// Exactly one completed call in the health record as well.
	if rec := cfg.Health.Snapshot()["custom_d"]; rec.SuccessCount != 1 {
		t.Errorf("health recorded %d successes, want 1", rec.SuccessCount)
	}
}

func TestSequentialFetchesGoUpstreamFresh(t *testing.T) {
	initTest(t, nil)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		jsonHandler(okBody)(w, r)
	}))
	defer srv.Close()

	custom := &CustomEndpoint{URL: srv.URL}
	for range 2 {
		if _, err := SearchSource(context.Background(), "q", "custom_s", custom); err != nil {
			t.Fatal(err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hit %d times, want 2 (dedup entry must clear on settlement)", got)
	}
}

func TestProxyPrefixedURL(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		jsonHandler(okBody)(w, r)
	}))
	defer srv.Close()
	initTest(t, func(c *Config) { c.ProxyURL = srv.URL + "/proxy?u=" })

	if _, err := SearchSource(context.Background(), "q", "dyttzy", nil); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(gotURI, "/proxy?u=") {
		t.Errorf("request went to %q, want proxy-prefixed", gotURI)
	}
	if !strings.Contains(gotURI, "caiji.dyttzyapi.com") {
		t.Errorf("proxied URI %q does not carry the encoded upstream URL", gotURI)
	}
}
