package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/collector"
	"github.com/zivalx/dAIgest/internal/domain"
)

// collectAll fans out one collection per source, bounded by the configured
// parallelism. Every failure is contained to its own record: one bad source
// never prevents a summary of the others. Each record is persisted as soon
// as its own collection finishes, and the returned slice preserves input
// source order regardless of completion order.
func (e *Engine) collectAll(ctx context.Context, cycle *domain.Cycle) []domain.CollectedData {
	sources := cycle.Snapshot.Sources
	results := make([]domain.CollectedData, len(sources))

	limit := e.opts.MaxParallelism
	if limit <= 0 || limit > len(sources) {
		limit = len(sources)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(idx int, src domain.SourceRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data := e.collectOne(ctx, cycle, idx, src)
			if err := e.collected.Append(ctx, &data); err != nil {
				// The collection itself stands; a persistence hiccup on one
				// row must not fail the source retroactively.
				e.logger.Error("persist collected data failed",
					"cycle_id", cycle.ID, "source_type", src.SourceType, "error", err)
			}
			results[idx] = data
		}(i, src)
	}
	wg.Wait()

	return results
}

// collectOne runs a single collector invocation and always returns a record,
// converting any failure (including panics and timeouts) into the record's
// error field with item_count zero.
func (e *Engine) collectOne(ctx context.Context, cycle *domain.Cycle, idx int, src domain.SourceRequest) domain.CollectedData {
	data := domain.CollectedData{
		ID:          uuid.New(),
		CycleID:     cycle.ID,
		SourceIndex: idx,
		SourceType:  src.SourceType,
		CollectedAt: time.Now().UTC(),
	}

	start := time.Now()
	batch, err := e.invokeCollector(ctx, cycle, src)
	elapsed := time.Since(start).Milliseconds()
	data.CollectionTimeMS = &elapsed

	if err != nil {
		e.logger.Warn("source collection failed",
			"cycle_id", cycle.ID,
			"source_type", src.SourceType,
			"duration_ms", elapsed,
			"error", err)
		// The failed payload is discarded, so the persisted size is zero.
		// Like the duration, size is recorded for every source.
		zero := 0
		data.DataSizeBytes = &zero
		data.Error = err.Error()
		return data
	}

	size := batch.RawSizeBytes
	data.SourceName = batch.SourceName
	data.ItemCount = batch.ItemCount
	data.DataSizeBytes = &size
	data.Data = batch.Items

	e.logger.Info("source collected",
		"cycle_id", cycle.ID,
		"source_type", src.SourceType,
		"items", batch.ItemCount,
		"bytes", size,
		"duration_ms", elapsed)

	return data
}

func (e *Engine) invokeCollector(ctx context.Context, cycle *domain.Cycle, src domain.SourceRequest) (batch *collector.Batch, err error) {
	// A panicking collector must not take sibling collections down.
	defer func() {
		if r := recover(); r != nil {
			batch = nil
			err = fmt.Errorf("collector panic: %v", r)
		}
	}()

	impl, err := e.collectors.Resolve(src.SourceType)
	if err != nil {
		return nil, err
	}

	var cred domain.Credential
	if src.CredentialRef != "" {
		cred, err = e.credentials.Resolve(src.CredentialRef)
		if err != nil {
			return nil, fmt.Errorf("resolve credential: %w", err)
		}
	}

	spec := collector.ApplyTimeframe(src.SourceType, src.CollectSpec, cycle.Snapshot.TimeframeDays)

	collectCtx, cancel := context.WithTimeout(ctx, e.opts.CollectTimeout)
	defer cancel()

	batch, err = impl.Collect(collectCtx, collector.Request{
		Spec:          spec,
		Credential:    cred,
		TimeframeDays: cycle.Snapshot.TimeframeDays,
	})
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("collector %s returned no batch", src.SourceType)
	}
	return batch, nil
}
