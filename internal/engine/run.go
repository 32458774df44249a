package engine

import (
	"context"
	"time"

	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
)

// noDataMessage is the terminal error recorded when every source failed or
// returned zero items.
const noDataMessage = "no data collected from any source; check source configurations and credentials"

// runCycle drives one cycle through its state machine. Each transition is
// persisted before the next phase starts, so a crash leaves an inspectable
// partial state rather than a corrupted one. The cycle struct is mutated in
// place to mirror the persisted record.
func (e *Engine) runCycle(ctx context.Context, cycle *domain.Cycle) {
	started := time.Now().UTC()
	if !e.transition(ctx, cycle, ports.StatusUpdate{
		From:      domain.StatusPending,
		To:        domain.StatusCollecting,
		StartedAt: &started,
	}) {
		return
	}
	cycle.StartedAt = &started

	collected := e.collectAll(ctx, cycle)

	totalItems := 0
	for _, data := range collected {
		if data.Succeeded() {
			totalItems += data.ItemCount
		}
	}

	if totalItems == 0 {
		e.logger.Warn("skipping summarization", "cycle_id", cycle.ID, "reason", "no data collected")
		e.finish(ctx, cycle, domain.StatusCollecting, noDataMessage)
		return
	}

	if !e.transition(ctx, cycle, ports.StatusUpdate{
		From: domain.StatusCollecting,
		To:   domain.StatusSummarizing,
	}) {
		return
	}

	e.logger.Info("summarizing collected data", "cycle_id", cycle.ID, "total_items", totalItems)

	if _, err := e.runSummarization(ctx, cycle, collected); err != nil {
		e.logger.Error("summarization failed", "cycle_id", cycle.ID, "error", err)
		e.finish(ctx, cycle, domain.StatusSummarizing, err.Error())
		return
	}

	e.finish(ctx, cycle, domain.StatusSummarizing, "")
}

// transition persists one forward status change; on persistence failure the
// cycle is finished as failed so it never lingers mid-flight.
func (e *Engine) transition(ctx context.Context, cycle *domain.Cycle, upd ports.StatusUpdate) bool {
	if err := e.cycles.UpdateStatus(ctx, cycle.ID, upd); err != nil {
		e.logger.Error("status transition failed",
			"cycle_id", cycle.ID, "from", upd.From, "to", upd.To, "error", err)
		e.finish(ctx, cycle, upd.From, "persist status transition: "+err.Error())
		return false
	}
	cycle.Status = upd.To
	return true
}

// finish moves the cycle to its terminal state. An empty errorMessage means
// completed; otherwise failed. completed_at is set either way: a failed
// cycle is still finished, not abandoned.
func (e *Engine) finish(ctx context.Context, cycle *domain.Cycle, from domain.CycleStatus, errorMessage string) {
	terminal := domain.StatusCompleted
	if errorMessage != "" {
		terminal = domain.StatusFailed
	}

	now := time.Now().UTC()
	upd := ports.StatusUpdate{
		From:         from,
		To:           terminal,
		ErrorMessage: errorMessage,
		CompletedAt:  &now,
	}
	if err := e.cycles.UpdateStatus(ctx, cycle.ID, upd); err != nil {
		e.logger.Error("failed to finalize cycle", "cycle_id", cycle.ID, "error", err)
	}

	cycle.Status = terminal
	cycle.ErrorMessage = errorMessage
	cycle.CompletedAt = &now

	e.logger.Info("cycle finished",
		"cycle_id", cycle.ID,
		"status", terminal,
		"duration", now.Sub(cycle.CreatedAt).Round(time.Millisecond))
}
