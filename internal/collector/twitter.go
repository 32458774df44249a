package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const twitterAPIURL = "https://api.twitter.com/2"

// TwitterCollector runs a recent-search query against the v2 API.
//
// Spec keys: query (required), max_results (10-100, default 50).
// Credential fields: bearer_token.
type TwitterCollector struct {
	client *http.Client
	apiURL string
}

// NewTwitterCollector wires an HTTP client; nil uses a 30s-timeout default.
func NewTwitterCollector(client *http.Client) *TwitterCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TwitterCollector{client: client, apiURL: twitterAPIURL}
}

// Kind identifies the collector inside the registry.
func (t *TwitterCollector) Kind() string {
	return "twitter"
}

// Tweet is the normalized item stored per collected tweet.
type Tweet struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	CreatedAt    string `json:"created_at"`
	RetweetCount int    `json:"retweet_count"`
	LikeCount    int    `json:"like_count"`
}

type twitterSearchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			RetweetCount int `json:"retweet_count"`
			LikeCount    int `json:"like_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

// Collect fetches recent tweets matching the query.
func (t *TwitterCollector) Collect(ctx context.Context, req Request) (*Batch, error) {
	searchQuery := specString(req.Spec, "query", "")
	if searchQuery == "" {
		return nil, fmt.Errorf("twitter spec requires a query")
	}
	maxResults := specInt(req.Spec, "max_results", 50)
	// The recent-search endpoint rejects values outside 10-100.
	if maxResults < 10 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	bearerToken, err := requireCredential(req.Credential, "twitter", "bearer_token")
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("query", searchQuery)
	query.Set("max_results", strconv.Itoa(maxResults))
	query.Set("tweet.fields", "created_at,public_metrics")

	var resp twitterSearchResponse
	size, err := fetchJSON(ctx, t.client, t.apiURL+"/tweets/search/recent?"+query.Encode(), map[string]string{
		"Authorization": "Bearer " + bearerToken,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", searchQuery, err)
	}

	tweets := make([]Tweet, 0, len(resp.Data))
	for _, item := range resp.Data {
		tweets = append(tweets, Tweet{
			ID:           item.ID,
			Text:         item.Text,
			CreatedAt:    item.CreatedAt,
			RetweetCount: item.PublicMetrics.RetweetCount,
			LikeCount:    item.PublicMetrics.LikeCount,
		})
	}

	return marshalItems(tweets, len(tweets), size, searchQuery)
}
