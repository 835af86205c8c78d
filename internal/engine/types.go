package engine

// VideoItem is one search hit from an upstream VOD source, tagged with the
// source it came from. Identity for dedup purposes is (SourceCode, VodID).
type VideoItem struct {
	VodID      string `json:"vod_id"`
	VodName    string `json:"vod_name"`
	VodPic     string `json:"vod_pic,omitempty"`
	VodRemarks string `json:"vod_remarks,omitempty"`
	VodYear    string `json:"vod_year,omitempty"`
	VodArea    string `json:"vod_area,omitempty"`
	TypeName   string `json:"type_name,omitempty"`
	VodPlayURL string `json:"vod_play_url,omitempty"`
	SourceCode string `json:"source_code"`
	SourceName string `json:"source_name"`
	APIURL     string `json:"api_url,omitempty"` // set for custom endpoints only
}

// Key returns the composite dedup identity for this item.
func (v VideoItem) Key() string {
	return v.SourceCode + "_" + v.VodID
}

// SearchResponse is the wire shape returned by MacCMS-style provide/vod APIs.
// Code==200 signals success; List must be present on success.
type SearchResponse struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	List []VideoItem `json:"list"`
}

// CustomEndpoint is a user-supplied source: a raw API base URL plus a
// display name. It participates in aggregation like any built-in source.
type CustomEndpoint struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// AggregateStats summarises one aggregation session for callers that want
// more than the streamed items.
type AggregateStats struct {
	SourcesSelected    int  `json:"sources_selected"`
	SourcesContributed int  `json:"sources_contributed"`
	SourcesFailed      int  `json:"sources_failed"`
	UniqueItems        int  `json:"unique_items"`
	EarlyAborted       bool `json:"early_aborted"`
}
