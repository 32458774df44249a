package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const gnewsAPIURL = "https://gnews.io/api/v4"

// GNewsCollector searches news articles through the GNews API.
//
// Spec keys: query (required), language (default en), max_results (default
// 10), sort_by (publishedAt|relevance, default publishedAt).
// Credential fields: api_key.
type GNewsCollector struct {
	client *http.Client
	apiURL string
}

// NewGNewsCollector wires an HTTP client; nil uses a 30s-timeout default.
func NewGNewsCollector(client *http.Client) *GNewsCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GNewsCollector{client: client, apiURL: gnewsAPIURL}
}

// Kind identifies the collector inside the registry.
func (g *GNewsCollector) Kind() string {
	return "gnews"
}

// NewsArticle is the normalized item stored per collected article.
type NewsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url"`
	SourceName  string `json:"source_name,omitempty"`
	PublishedAt string `json:"published_at"`
}

type gnewsResponse struct {
	TotalArticles int `json:"totalArticles"`
	Articles      []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Collect runs one search query against the news API.
func (g *GNewsCollector) Collect(ctx context.Context, req Request) (*Batch, error) {
	searchQuery := specString(req.Spec, "query", "")
	if searchQuery == "" {
		return nil, fmt.Errorf("gnews spec requires a query")
	}
	language := specString(req.Spec, "language", "en")
	maxResults := specInt(req.Spec, "max_results", 10)
	sortBy := specString(req.Spec, "sort_by", "publishedAt")

	apiKey, err := requireCredential(req.Credential, "gnews", "api_key")
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("q", searchQuery)
	query.Set("lang", language)
	query.Set("max", strconv.Itoa(maxResults))
	query.Set("sortby", sortBy)
	query.Set("apikey", apiKey)

	var resp gnewsResponse
	size, err := fetchJSON(ctx, g.client, g.apiURL+"/search?"+query.Encode(), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", searchQuery, err)
	}

	articles := make([]NewsArticle, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, NewsArticle{
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			SourceName:  a.Source.Name,
			PublishedAt: a.PublishedAt,
		})
	}

	return marshalItems(articles, len(articles), size, searchQuery)
}
