package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
)

// systemPrompt is the default instruction given to the summarizer when a
// cycle carries no custom prompt.
const systemPrompt = `You are an expert content summarization assistant. You analyze and summarize content collected from various sources (forums, news, videos, social media, trends) clearly and concisely.

Guidelines:
1. Identify and highlight key themes, trends, and insights
2. Organize information logically by topic
3. Use clear, professional language
4. Include relevant quotes or data points when significant
5. Note any emerging patterns or anomalies
6. Keep the summary focused on actionable insights`

// runSummarization builds the aggregated payload, performs the single
// summarizer call of the cycle, computes cost, and persists the summary.
// Any failure here fails the whole cycle: there is only one summarization
// per cycle and no sibling work to protect.
func (e *Engine) runSummarization(ctx context.Context, cycle *domain.Cycle, collected []domain.CollectedData) (*domain.Summary, error) {
	aggregated, err := aggregateContent(collected)
	if err != nil {
		return nil, fmt.Errorf("aggregate collected data: %w", err)
	}

	prompt := systemPrompt
	if custom := strings.TrimSpace(cycle.Snapshot.CustomPrompt); custom != "" {
		prompt = prompt + "\n\nAdditional instructions:\n" + custom
	}

	summarizeCtx, cancel := context.WithTimeout(ctx, e.opts.SummarizeTimeout)
	defer cancel()

	result, err := e.summarizer.Summarize(summarizeCtx, ports.SummarizeRequest{
		Text:     aggregated,
		Prompt:   prompt,
		Provider: cycle.Snapshot.LLMProvider,
		Model:    cycle.Snapshot.LLMModel,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	summary := &domain.Summary{
		ID:               uuid.New(),
		CycleID:          cycle.ID,
		LLMProvider:      cycle.Snapshot.LLMProvider,
		ModelName:        cycle.Snapshot.LLMModel,
		SummaryText:      result.Text,
		SummaryWordCount: len(strings.Fields(result.Text)),
		InputTokens:      result.InputTokens,
		OutputTokens:     result.OutputTokens,
		CostUSD:          e.pricing.Cost(cycle.Snapshot.LLMProvider, cycle.Snapshot.LLMModel, result.InputTokens, result.OutputTokens),
		GenerationTimeMS: result.GenerationTime.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}

	if err := e.summaries.Create(ctx, summary); err != nil {
		return nil, fmt.Errorf("persist summary: %w", err)
	}

	return summary, nil
}

// aggregateContent renders the successful collections into a single
// sectioned text payload. Failed sources are noted but their content is
// excluded so error payloads never corrupt the summary. Malformed data from
// an otherwise successful source is an error here, failing the cycle rather
// than silently dropping the source.
func aggregateContent(collected []domain.CollectedData) (string, error) {
	var b strings.Builder

	for _, data := range collected {
		label := strings.ToUpper(data.SourceType)
		if data.SourceName != "" {
			label += " (" + data.SourceName + ")"
		}

		if !data.Succeeded() {
			fmt.Fprintf(&b, "[source %s failed, content excluded: %s]\n\n", label, data.Error)
			continue
		}
		if data.ItemCount == 0 {
			continue
		}

		rendered, err := renderItems(data.Data)
		if err != nil {
			return "", fmt.Errorf("source %s: %w", data.SourceType, err)
		}

		b.WriteString(strings.Repeat("=", 60) + "\n")
		fmt.Fprintf(&b, "SOURCE: %s\nITEMS: %d\n", label, data.ItemCount)
		b.WriteString(strings.Repeat("=", 60) + "\n")
		b.WriteString(rendered)
		b.WriteString("\n\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no usable content after aggregation")
	}
	return text, nil
}

// renderItems pretty-prints the stored item payload for the prompt.
func renderItems(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty item payload")
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("malformed item payload: %w", err)
	}

	pretty, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render item payload: %w", err)
	}
	return string(pretty), nil
}
