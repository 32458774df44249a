package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	t.Parallel()

	table := DefaultTable()

	cost := table.Cost("openai", "gpt-4o-mini", 10000, 2000)
	require.NotNil(t, cost)
	require.InDelta(t, 10.0*0.00015+2.0*0.0006, *cost, 1e-9)

	cost = table.Cost("anthropic", "claude-3-haiku-20240307", 0, 0)
	require.NotNil(t, cost)
	require.Zero(t, *cost)
}

func TestCostUnknownPair(t *testing.T) {
	t.Parallel()

	table := DefaultTable()

	require.Nil(t, table.Cost("openai", "gpt-99", 100, 100))
	require.Nil(t, table.Cost("mistral", "large", 100, 100))
	require.Nil(t, Table{}.Cost("openai", "gpt-4o", 100, 100))
}
