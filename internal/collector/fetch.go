package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultUserAgent = "daigest/1.0"

// maxBodySize caps collector response bodies to keep a misbehaving source
// from exhausting memory.
const maxBodySize = 16 * 1024 * 1024

// fetchJSON performs a GET, decodes the JSON body into out, and returns the
// raw body size. Non-2xx statuses become errors carrying a response excerpt.
func fetchJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, out any) (int, error) {
	return doJSON(ctx, client, http.MethodGet, rawURL, nil, headers, out)
}

func doJSON(ctx context.Context, client *http.Client, method, rawURL string, body io.Reader, headers map[string]string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt := strings.TrimSpace(string(raw))
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return len(raw), fmt.Errorf("%s returned %s: %s", req.URL.Host, resp.Status, excerpt)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return len(raw), fmt.Errorf("decode response: %w", err)
		}
	}

	return len(raw), nil
}

// decodeBody decodes a JSON response body into out.
func decodeBody(resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// marshalItems encodes normalized items for storage and builds the batch.
func marshalItems(items any, count, rawSize int, sourceName string) (*Batch, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	return &Batch{
		Items:        payload,
		ItemCount:    count,
		RawSizeBytes: rawSize,
		SourceName:   sourceName,
	}, nil
}
