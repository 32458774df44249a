package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const trendsFeedURL = "https://trends.google.com/trending/rss"

// TrendsCollector scrapes the Google Trends daily trending-searches feed.
// No credentials are required for this source.
//
// Spec keys: geo (default US), keywords (optional case-insensitive filter),
// max_items (default 20). The feed only covers the current day, so the
// cycle timeframe is recorded but cannot widen the window.
type TrendsCollector struct {
	client  *http.Client
	feedURL string
}

// NewTrendsCollector wires an HTTP client; nil uses a 30s-timeout default.
func NewTrendsCollector(client *http.Client) *TrendsCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TrendsCollector{client: client, feedURL: trendsFeedURL}
}

// Kind identifies the collector inside the registry.
func (t *TrendsCollector) Kind() string {
	return "trends"
}

// TrendingSearch is the normalized item stored per trending query.
type TrendingSearch struct {
	Query         string `json:"query"`
	ApproxTraffic string `json:"approx_traffic,omitempty"`
	Published     string `json:"published,omitempty"`
	NewsTitle     string `json:"news_title,omitempty"`
	NewsURL       string `json:"news_url,omitempty"`
}

// Collect fetches and parses the trending-searches feed.
func (t *TrendsCollector) Collect(ctx context.Context, req Request) (*Batch, error) {
	geo := specString(req.Spec, "geo", "US")
	maxItems := specInt(req.Spec, "max_items", 20)
	keywords := specStringSlice(req.Spec, "keywords")

	feedURL := t.feedURL + "?geo=" + url.QueryEscape(geo)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", defaultUserAgent)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trends feed returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var (
		searches []TrendingSearch
		rawSize  int
	)
	doc.Find("item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		search := TrendingSearch{
			Query:         strings.TrimSpace(item.Find("title").First().Text()),
			ApproxTraffic: strings.TrimSpace(item.Find(`ht\:approx_traffic`).First().Text()),
			Published:     strings.TrimSpace(item.Find("pubdate").First().Text()),
			NewsTitle:     strings.TrimSpace(item.Find(`ht\:news_item_title`).First().Text()),
			NewsURL:       strings.TrimSpace(item.Find(`ht\:news_item_url`).First().Text()),
		}
		if search.Query == "" {
			return true
		}
		if len(keywords) > 0 && !matchesKeyword(search.Query, keywords) {
			return true
		}
		searches = append(searches, search)
		return len(searches) < maxItems
	})

	if html, err := doc.Html(); err == nil {
		rawSize = len(html)
	}

	return marshalItems(searches, len(searches), rawSize, "trending/"+geo)
}

func matchesKeyword(query string, keywords []string) bool {
	lowered := strings.ToLower(query)
	for _, kw := range keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
