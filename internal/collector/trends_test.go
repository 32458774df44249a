package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const trendsFeedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:ht="https://trends.google.com/trending/rss">
  <channel>
    <item>
      <title>solar eclipse</title>
      <ht:approx_traffic>500,000+</ht:approx_traffic>
      <pubDate>Sat, 30 Aug 2026 04:00:00 -0700</pubDate>
      <ht:news_item>
        <ht:news_item_title>Eclipse visible across Europe</ht:news_item_title>
        <ht:news_item_url>https://news.example.com/eclipse</ht:news_item_url>
      </ht:news_item>
    </item>
    <item>
      <title>transfer deadline</title>
      <ht:approx_traffic>200,000+</ht:approx_traffic>
    </item>
  </channel>
</rss>`

func TestTrendsCollect(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DE", r.URL.Query().Get("geo"))
		_, _ = w.Write([]byte(trendsFeedFixture))
	}))
	defer server.Close()

	c := NewTrendsCollector(server.Client())
	c.feedURL = server.URL

	batch, err := c.Collect(context.Background(), Request{
		Spec: map[string]any{"geo": "DE"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, batch.ItemCount)
	require.Equal(t, "trending/DE", batch.SourceName)

	var searches []TrendingSearch
	require.NoError(t, json.Unmarshal(batch.Items, &searches))
	require.Equal(t, "solar eclipse", searches[0].Query)
	require.Equal(t, "500,000+", searches[0].ApproxTraffic)
	require.Equal(t, "Eclipse visible across Europe", searches[0].NewsTitle)
}

func TestTrendsCollectKeywordFilter(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(trendsFeedFixture))
	}))
	defer server.Close()

	c := NewTrendsCollector(server.Client())
	c.feedURL = server.URL

	batch, err := c.Collect(context.Background(), Request{
		Spec: map[string]any{"keywords": []string{"ECLIPSE"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, batch.ItemCount)
}

func TestTrendsCollectUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewTrendsCollector(server.Client())
	c.feedURL = server.URL

	_, err := c.Collect(context.Background(), Request{Spec: map[string]any{}})
	require.Error(t, err)
}
