// Package pricing implements the static cost model for LLM usage. It is a
// pure lookup: no I/O, no state. Unknown provider/model pairs yield no cost
// rather than an error, because cost tracking is observability and must
// never block producing a summary.
package pricing

// Rate holds USD prices per 1000 tokens for one model.
type Rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Table maps provider → model → rate.
type Table map[string]map[string]Rate

// DefaultTable lists the models the service is expected to run against.
// Prices are USD per 1000 tokens.
func DefaultTable() Table {
	return Table{
		"openai": {
			"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006},
			"gpt-4o":      {InputPer1K: 0.0025, OutputPer1K: 0.01},
			"gpt-4-turbo": {InputPer1K: 0.01, OutputPer1K: 0.03},
		},
		"anthropic": {
			"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
			"claude-3-haiku-20240307":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
		},
		"xai": {
			"grok-beta":        {InputPer1K: 0.005, OutputPer1K: 0.015},
			"grok-vision-beta": {InputPer1K: 0.005, OutputPer1K: 0.015},
		},
	}
}

// Cost computes the USD cost of a call, or nil when the provider/model pair
// is not in the table.
func (t Table) Cost(provider, model string, inputTokens, outputTokens int) *float64 {
	models, ok := t[provider]
	if !ok {
		return nil
	}
	rate, ok := models[model]
	if !ok {
		return nil
	}

	cost := float64(inputTokens)/1000*rate.InputPer1K + float64(outputTokens)/1000*rate.OutputPer1K
	return &cost
}
