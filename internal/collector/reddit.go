package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL   = "https://oauth.reddit.com"
)

// RedditCollector pulls recent posts from one or more subreddits through the
// OAuth listing API.
//
// Spec keys: subreddits ([]string, required), sort (hot|new|top, default
// hot), max_posts (per subreddit, default 50).
// Credential fields: client_id, client_secret, user_agent (optional).
type RedditCollector struct {
	client   *http.Client
	tokenURL string
	apiURL   string
}

// NewRedditCollector wires an HTTP client; nil uses a 30s-timeout default.
func NewRedditCollector(client *http.Client) *RedditCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RedditCollector{client: client, tokenURL: redditTokenURL, apiURL: redditAPIURL}
}

// Kind identifies the collector inside the registry.
func (r *RedditCollector) Kind() string {
	return "reddit"
}

// RedditPost is the normalized item stored per collected post.
type RedditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Selftext    string  `json:"selftext,omitempty"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data RedditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Collect fetches posts from each configured subreddit.
func (r *RedditCollector) Collect(ctx context.Context, req Request) (*Batch, error) {
	subreddits := specStringSlice(req.Spec, "subreddits")
	if len(subreddits) == 0 {
		return nil, fmt.Errorf("reddit spec requires a non-empty subreddits list")
	}
	sort := specString(req.Spec, "sort", "hot")
	maxPosts := specInt(req.Spec, "max_posts", 50)

	clientID, err := requireCredential(req.Credential, "reddit", "client_id")
	if err != nil {
		return nil, err
	}
	clientSecret, err := requireCredential(req.Credential, "reddit", "client_secret")
	if err != nil {
		return nil, err
	}
	userAgent := req.Credential.Get("user_agent")
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	token, err := r.authenticate(ctx, clientID, clientSecret, userAgent)
	if err != nil {
		return nil, fmt.Errorf("reddit auth: %w", err)
	}

	var (
		posts    []RedditPost
		rawTotal int
	)
	for _, subreddit := range subreddits {
		listURL := fmt.Sprintf("%s/r/%s/%s?limit=%d&raw_json=1", r.apiURL, url.PathEscape(subreddit), sort, maxPosts)

		var listing redditListing
		size, err := fetchJSON(ctx, r.client, listURL, map[string]string{
			"Authorization": "Bearer " + token,
			"User-Agent":    userAgent,
		}, &listing)
		if err != nil {
			return nil, fmt.Errorf("subreddit %s: %w", subreddit, err)
		}
		rawTotal += size

		for _, child := range listing.Data.Children {
			posts = append(posts, child.Data)
		}
	}

	return marshalItems(posts, len(posts), rawTotal, strings.Join(subreddits, ", "))
}

func (r *RedditCollector) authenticate(ctx context.Context, clientID, clientSecret, userAgent string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var token redditToken
	if err := decodeBody(resp, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty access token")
	}

	return token.AccessToken, nil
}
