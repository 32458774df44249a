// Package llm implements the summarizer capability: a provider-agnostic
// client over chat-completion APIs with bounded retry.
package llm

import (
	"net/http"
	"sync"
)

// Usage reports token consumption for one completion call. Zero values mean
// the provider did not return usage data.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is the parsed result of one provider call.
type Completion struct {
	Text  string
	Usage Usage
}

// Provider adapts one LLM API's wire format.
type Provider interface {
	// Name returns the provider identifier ("openai", "anthropic", "xai").
	Name() string

	// BuildURL constructs the completion endpoint, using the provider
	// default when baseURL is empty.
	BuildURL(baseURL string) string

	// SetHeaders adds authentication and protocol headers. Keys come from
	// the environment, matching the credential-reference convention.
	SetHeaders(req *http.Request)

	// BuildRequestBody renders the JSON request for a system+user exchange.
	BuildRequestBody(model, systemPrompt, userContent string, maxTokens int) ([]byte, error)

	// ParseResponse extracts text and usage from the provider response.
	ParseResponse(body []byte) (*Completion, error)
}

var (
	providerMu       sync.RWMutex
	providerRegistry = map[string]Provider{}
)

// RegisterProvider adds a provider to the registry, replacing any existing
// provider of the same name.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// LookupProvider retrieves a provider by name; nil when unregistered.
func LookupProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

func init() {
	RegisterProvider(&OpenAIProvider{})
	RegisterProvider(&AnthropicProvider{})
	RegisterProvider(&XAIProvider{})
}
