package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedditCollect(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, "id", user)
			require.Equal(t, "secret", pass)
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "token_type": "bearer"})
		case "/r/golang/hot":
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			require.Equal(t, "10", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"data":{"children":[
				{"data":{"id":"p1","title":"Go 1.25 released","subreddit":"golang","score":900,"num_comments":120}},
				{"data":{"id":"p2","title":"Generics tips","subreddit":"golang","score":300,"num_comments":40}}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewRedditCollector(server.Client())
	c.tokenURL = server.URL + "/api/v1/access_token"
	c.apiURL = server.URL

	batch, err := c.Collect(context.Background(), Request{
		Spec:       map[string]any{"subreddits": []string{"golang"}, "max_posts": 10},
		Credential: map[string]string{"client_id": "id", "client_secret": "secret"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, batch.ItemCount)
	require.Equal(t, "golang", batch.SourceName)
	require.Positive(t, batch.RawSizeBytes)

	var posts []RedditPost
	require.NoError(t, json.Unmarshal(batch.Items, &posts))
	require.Len(t, posts, 2)
	require.Equal(t, "Go 1.25 released", posts[0].Title)
}

func TestRedditCollectMissingSpec(t *testing.T) {
	t.Parallel()

	c := NewRedditCollector(nil)

	_, err := c.Collect(context.Background(), Request{Spec: map[string]any{}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "subreddits")
}

func TestRedditCollectMissingCredential(t *testing.T) {
	t.Parallel()

	c := NewRedditCollector(nil)

	_, err := c.Collect(context.Background(), Request{
		Spec:       map[string]any{"subreddits": []string{"golang"}},
		Credential: map[string]string{},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "client_id")
}

func TestRedditAuthFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewRedditCollector(server.Client())
	c.tokenURL = server.URL + "/api/v1/access_token"
	c.apiURL = server.URL

	_, err := c.Collect(context.Background(), Request{
		Spec:       map[string]any{"subreddits": []string{"golang"}},
		Credential: map[string]string{"client_id": "id", "client_secret": "secret"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "reddit auth")
}
