package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleSearchPage = `<!DOCTYPE html>
<html><body>
<div class="module-items">
  <a href="/index.php/vod/detail/id/4821.html" title="狂飙">狂飙</a>
  <a href="/vod/detail/id/4822.html"><span>三体</span></a>
  <a href="/index.php/vod/detail/id/4821.html" title="狂飙">重复链接</a>
  <a href="/index.php/vod/play/id/9999.html" title="播放页">播放页</a>
  <a href="/about.html">关于我们</a>
  <a href="/vod/detail/id/4823.html" title=""> </a>
</div>
</body></html>`

func TestExtractDetailItems(t *testing.T) {
	src := Source{Code: "huya", Name: "虎牙资源", Kind: KindScrape}
	items, err := extractDetailItems([]byte(sampleSearchPage), src)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}
	if items[0].VodID != "4821" || items[0].VodName != "狂飙" {
		t.Errorf("item 0 = %+v", items[0])
	}
	// Title attribute missing: anchor text wins.
	if items[1].VodID != "4822" || items[1].VodName != "三体" {
		t.Errorf("item 1 = %+v", items[1])
	}
	for _, it := range items {
		if it.SourceCode != "huya" || it.SourceName != "虎牙资源" {
			t.Errorf("item not tagged: %+v", it)
		}
	}
}

func TestExtractDetailItemsEmptyPage(t *testing.T) {
	items, err := extractDetailItems([]byte("<html><body>无结果</body></html>"), Source{Code: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items from empty page", len(items))
	}
}

func TestScrapeSourceThroughFetcher(t *testing.T) {
	initTest(t, nil)
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(sampleSearchPage))
	}))
	defer srv.Close()

	src := Source{Code: "scrape_test", Name: "刮削源", API: srv.URL, Kind: KindScrape}
	resp, err := fetchSource(context.Background(), src, "狂飙")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Code != 200 || len(resp.List) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(gotPath, "search.html?wd=") {
		t.Errorf("scrape path = %q", gotPath)
	}
	// Scrape sources share the fetcher contract: health is recorded.
	if rec := cfg.Health.Snapshot()["scrape_test"]; rec.SuccessCount != 1 {
		t.Errorf("scrape success not recorded: %+v", rec)
	}
}
