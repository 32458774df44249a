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

const telegramAPIURL = "https://api.telegram.org"

// TelegramCollector reads recent channel posts visible to a bot through the
// Bot API. The bot must be a member of every channel it collects from.
//
// Spec keys: channels ([]string of channel usernames, optional filter),
// max_messages (default 100).
// Credential fields: bot_token.
type TelegramCollector struct {
	client *http.Client
	apiURL string
}

// NewTelegramCollector wires an HTTP client; nil uses a 30s-timeout default.
func NewTelegramCollector(client *http.Client) *TelegramCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TelegramCollector{client: client, apiURL: telegramAPIURL}
}

// Kind identifies the collector inside the registry.
func (t *TelegramCollector) Kind() string {
	return "telegram"
}

// TelegramMessage is the normalized item stored per collected channel post.
type TelegramMessage struct {
	MessageID int64  `json:"message_id"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
	Date      int64  `json:"date"`
}

type telegramUpdatesResponse struct {
	OK     bool `json:"ok"`
	Result []struct {
		UpdateID    int64 `json:"update_id"`
		ChannelPost *struct {
			MessageID int64 `json:"message_id"`
			Date      int64 `json:"date"`
			Text      string `json:"text"`
			Chat      struct {
				Username string `json:"username"`
				Title    string `json:"title"`
			} `json:"chat"`
		} `json:"channel_post"`
	} `json:"result"`
	Description string `json:"description"`
}

// Collect drains pending channel-post updates from the bot's queue.
func (t *TelegramCollector) Collect(ctx context.Context, req Request) (*Batch, error) {
	channels := specStringSlice(req.Spec, "channels")
	maxMessages := specInt(req.Spec, "max_messages", 100)

	botToken, err := requireCredential(req.Credential, "telegram", "bot_token")
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(channels))
	for _, ch := range channels {
		wanted[strings.TrimPrefix(strings.ToLower(ch), "@")] = true
	}

	query := url.Values{}
	query.Set("allowed_updates", `["channel_post"]`)
	query.Set("limit", strconv.Itoa(min(maxMessages, 100)))

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", t.apiURL, botToken, query.Encode())

	var resp telegramUpdatesResponse
	size, err := fetchJSON(ctx, t.client, endpoint, nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("telegram error: %s", resp.Description)
	}

	var messages []TelegramMessage
	for _, update := range resp.Result {
		post := update.ChannelPost
		if post == nil || post.Text == "" {
			continue
		}
		channel := post.Chat.Username
		if channel == "" {
			channel = post.Chat.Title
		}
		if len(wanted) > 0 && !wanted[strings.ToLower(post.Chat.Username)] {
			continue
		}
		messages = append(messages, TelegramMessage{
			MessageID: post.MessageID,
			Channel:   channel,
			Text:      post.Text,
			Date:      post.Date,
		})
		if len(messages) >= maxMessages {
			break
		}
	}

	return marshalItems(messages, len(messages), size, strings.Join(channels, ", "))
}
