package llm

import (
	"net/http"
	"os"
)

// XAIProvider implements the xAI API, which is wire-compatible with the
// OpenAI chat-completions format but uses its own host and key.
type XAIProvider struct {
	OpenAIProvider
}

// Name returns the provider identifier.
func (x *XAIProvider) Name() string {
	return "xai"
}

// BuildURL constructs the x.ai completion endpoint.
func (x *XAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}
	return x.OpenAIProvider.BuildURL(baseURL)
}

// SetHeaders adds bearer authentication from XAI_API_KEY.
func (x *XAIProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("XAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
