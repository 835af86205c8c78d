package engine

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// SourceKind selects the fetch backend for a source.
type SourceKind int

const (
	// KindJSON is a MacCMS-style provide/vod JSON API.
	KindJSON SourceKind = iota
	// KindScrape is an HTML page whose episode links are extracted by
	// pattern matching. Same fetcher contract, different backend.
	KindScrape
)

// Source is one upstream content-search backend.
type Source struct {
	Code string
	Name string
	API  string     // base URL; KindJSON gets the provide/vod path appended
	Kind SourceKind
	RPS  float64 // polite per-source request cap; 0 = unthrottled
}

// Built-in source table. Custom endpoints are registered at runtime and lead
// with the custom_ prefix.
var builtinSources = []Source{
	{Code: "dyttzy", Name: "电影天堂资源", API: "http://caiji.dyttzyapi.com"},
	{Code: "heimuer", Name: "黑木耳", API: "https://json.heimuer.xyz"},
	{Code: "ruyi", Name: "如意资源", API: "https://cj.rycjapi.com"},
	{Code: "bfzy", Name: "暴风资源", API: "https://bfzyapi.com"},
	{Code: "tyyszy", Name: "天涯资源", API: "https://tyyszy.com"},
	{Code: "ffzy", Name: "非凡影视", API: "http://ffzy5.tv", RPS: 2},
	{Code: "zy360", Name: "360资源", API: "https://360zy.com"},
	{Code: "wolong", Name: "卧龙资源", API: "https://wolongzyw.com"},
	{Code: "jisu", Name: "极速资源", API: "https://jszyapi.com", RPS: 2},
	{Code: "dbzy", Name: "豆瓣资源", API: "https://dbzy.tv"},
	{Code: "mozhua", Name: "魔爪资源", API: "https://mozhuazy.com"},
	{Code: "mdzy", Name: "魔都资源", API: "https://www.mdzyapi.com"},
	{Code: "zuid", Name: "最大资源", API: "https://api.zuidapi.com"},
	{Code: "yinghua", Name: "樱花资源", API: "https://m3u8.apiyhzy.com"},
	{Code: "baidu", Name: "百度云资源", API: "https://api.apibdzy.com"},
	{Code: "wujin", Name: "无尽资源", API: "https://api.wujinapi.me"},
	{Code: "wwzy", Name: "旺旺短剧", API: "https://wwzy.tv"},
	{Code: "ikun", Name: "iKun资源", API: "https://ikunzyapi.com"},
	{Code: "huya", Name: "虎牙资源", API: "https://www.huyaapi.com", Kind: KindScrape},
}

// CustomSourcePrefix marks runtime-registered endpoints in codes and health
// records, keeping them apart from the built-in table.
const CustomSourcePrefix = "custom_"

var (
	sourcesMu sync.RWMutex
	sources   = func() map[string]Source {
		m := make(map[string]Source, len(builtinSources))
		for _, s := range builtinSources {
			m[s.Code] = s
		}
		return m
	}()
	sourceLimiters sync.Map // code → *rate.Limiter
)

// LookupSource resolves a source code against the registry.
func LookupSource(code string) (Source, bool) {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()
	s, ok := sources[code]
	return s, ok
}

// ListSources returns every registered source ordered by code.
func ListSources() []Source {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// RegisterCustom turns a user-supplied endpoint into a registered source and
// returns its code (custom_<index>). The endpoint must carry a parseable URL.
func RegisterCustom(index int, ep CustomEndpoint) (Source, error) {
	if ep.URL == "" {
		return Source{}, fmt.Errorf("custom endpoint %d: url is required", index)
	}
	if _, err := url.Parse(ep.URL); err != nil {
		return Source{}, fmt.Errorf("custom endpoint %d: %w", index, err)
	}
	name := ep.Name
	if name == "" {
		name = fmt.Sprintf("自定义源%d", index+1)
	}
	s := Source{
		Code: fmt.Sprintf("%s%d", CustomSourcePrefix, index),
		Name: name,
		API:  ep.URL,
	}
	sourcesMu.Lock()
	sources[s.Code] = s
	sourcesMu.Unlock()
	return s, nil
}

// sourceLimiter returns the polite throttle for a source, or nil when the
// source is unthrottled.
func sourceLimiter(s Source) *rate.Limiter {
	if s.RPS <= 0 {
		return nil
	}
	if v, ok := sourceLimiters.Load(s.Code); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(s.RPS), 1)
	actual, _ := sourceLimiters.LoadOrStore(s.Code, lim)
	return actual.(*rate.Limiter)
}
