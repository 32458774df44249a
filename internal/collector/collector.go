package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zivalx/dAIgest/internal/domain"
)

// Request carries all parameters required to execute one collection.
type Request struct {
	// Spec is the opaque key-value collection specification; each collector
	// validates the keys it understands.
	Spec map[string]any
	// Credential is the resolved secret bundle for this source.
	Credential domain.Credential
	// TimeframeDays bounds how far back to collect (1-7).
	TimeframeDays int
}

// Batch is the normalized result of one collection.
type Batch struct {
	// Items is the normalized item payload, stored verbatim on the cycle.
	Items json.RawMessage
	// ItemCount is the number of items in the batch.
	ItemCount int
	// RawSizeBytes is the size of the payload fetched from the source.
	RawSizeBytes int
	// SourceName is a human label for the concrete origin (subreddits,
	// channels, query), may be empty.
	SourceName string
}

// Collector fetches items from one source kind. Implementations own their
// retry and pagination behavior; the engine only sees the final batch or a
// distinguishable error.
type Collector interface {
	Kind() string
	Collect(ctx context.Context, req Request) (*Batch, error)
}

// Registry keeps a mapping from source types to their collectors.
type Registry struct {
	collectors map[string]Collector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{collectors: map[string]Collector{}}
}

// Register adds or replaces a collector implementation.
func (r *Registry) Register(c Collector) {
	if r.collectors == nil {
		r.collectors = map[string]Collector{}
	}
	r.collectors[c.Kind()] = c
}

// Resolve returns a collector by source type or an error if it is absent.
func (r *Registry) Resolve(sourceType string) (Collector, error) {
	if c, ok := r.collectors[sourceType]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("source type %q is not supported", sourceType)
}

// Kinds lists the registered source types.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.collectors))
	for kind := range r.collectors {
		kinds = append(kinds, kind)
	}
	return kinds
}
