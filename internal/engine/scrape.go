package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Detail-page links look like /vod/detail/id/12345.html or
// /index.php/vod/detail/id/12345.html; the trailing number is the vod id.
var detailLinkRe = regexp.MustCompile(`/(?:vod/)?detail/id/(\d+)(?:\.html)?`)

// scrapeSearch is the alternate fetch backend for sources without a
// structured API: it pulls the HTML search page and extracts result links by
// pattern matching. Best-effort parsing behind the same fetcher contract.
func scrapeSearch(ctx context.Context, src Source, pageURL string) (*SearchResponse, error) {
	metrics.ScrapeFetches.Add(1)

	body, err := retryTransient(ctx, func() ([]byte, error) {
		return httpGet(ctx, pageURL)
	})
	if err != nil {
		return nil, err
	}

	items, err := extractDetailItems(body, src)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Code: 200, List: items}, nil
}

// extractDetailItems walks the parsed document collecting anchors whose href
// matches a detail-page link, using the anchor text as the title. Duplicate
// ids within one page collapse to the first occurrence.
func extractDetailItems(body []byte, src Source) ([]VideoItem, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	items := make([]VideoItem, 0, 16)
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, title string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "title":
					title = attr.Val
				}
			}
			if m := detailLinkRe.FindStringSubmatch(href); m != nil {
				id := m[1]
				if !seen[id] {
					seen[id] = true
					name := strings.TrimSpace(title)
					if name == "" {
						name = strings.TrimSpace(nodeText(n))
					}
					if name != "" {
						items = append(items, VideoItem{
							VodID:      id,
							VodName:    name,
							SourceCode: src.Code,
							SourceName: src.Name,
						})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return items, nil
}

// nodeText concatenates the text content under a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
