package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const youtubeAPIURL = "https://www.googleapis.com/youtube/v3"

// YouTubeCollector fetches recent uploads per channel through the Data API.
//
// Spec keys: channels ([]string of channel IDs, required), max_videos (per
// channel, default 10), days_back (filled from the cycle timeframe).
// Credential fields: api_key.
type YouTubeCollector struct {
	client *http.Client
	apiURL string
}

// NewYouTubeCollector wires an HTTP client; nil uses a 30s-timeout default.
func NewYouTubeCollector(client *http.Client) *YouTubeCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &YouTubeCollector{client: client, apiURL: youtubeAPIURL}
}

// Kind identifies the collector inside the registry.
func (y *YouTubeCollector) Kind() string {
	return "youtube"
}

// YouTubeVideo is the normalized item stored per collected video.
type YouTubeVideo struct {
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	Description string `json:"description,omitempty"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// Collect searches each channel for videos published within the timeframe.
func (y *YouTubeCollector) Collect(ctx context.Context, req Request) (*Batch, error) {
	channels := specStringSlice(req.Spec, "channels")
	if len(channels) == 0 {
		return nil, fmt.Errorf("youtube spec requires a non-empty channels list")
	}
	maxVideos := specInt(req.Spec, "max_videos", 10)
	daysBack := specInt(req.Spec, "days_back", req.TimeframeDays)
	if daysBack <= 0 {
		daysBack = 1
	}

	apiKey, err := requireCredential(req.Credential, "youtube", "api_key")
	if err != nil {
		return nil, err
	}

	publishedAfter := time.Now().UTC().AddDate(0, 0, -daysBack).Format(time.RFC3339)

	var (
		videos   []YouTubeVideo
		rawTotal int
	)
	for _, channel := range channels {
		query := url.Values{}
		query.Set("key", apiKey)
		query.Set("channelId", channel)
		query.Set("part", "snippet")
		query.Set("order", "date")
		query.Set("type", "video")
		query.Set("maxResults", strconv.Itoa(maxVideos))
		query.Set("publishedAfter", publishedAfter)

		var search youtubeSearchResponse
		size, err := fetchJSON(ctx, y.client, y.apiURL+"/search?"+query.Encode(), nil, &search)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", channel, err)
		}
		rawTotal += size

		for _, item := range search.Items {
			videos = append(videos, YouTubeVideo{
				VideoID:     item.ID.VideoID,
				Title:       item.Snippet.Title,
				Channel:     item.Snippet.ChannelTitle,
				Description: item.Snippet.Description,
				PublishedAt: item.Snippet.PublishedAt,
				URL:         "https://www.youtube.com/watch?v=" + item.ID.VideoID,
			})
		}
	}

	return marshalItems(videos, len(videos), rawTotal, strings.Join(channels, ", "))
}
