package engine

import (
	"context"
	"log/slog"
)

// MaxIDSearcher reports the maximum previously assigned group id across all
// historical destination partitions.
type MaxIDSearcher interface {
	MaxGroupID(ctx context.Context) (int64, bool, error)
}

// IDAllocator determines the first group id for an allocation run by
// inspecting the historical maximum. Subsequent tickets in the run receive
// sequentially incremented ids assigned by the orchestrator.
//
// No lock is taken between reading the maximum and writing tickets: batches
// targeting the same destination scope are assumed not to run concurrently.
type IDAllocator struct {
	logger *slog.Logger
	store  MaxIDSearcher
}

// NewIDAllocator constructs an allocator over the destination store.
func NewIDAllocator(logger *slog.Logger, store MaxIDSearcher) *IDAllocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &IDAllocator{logger: logger, store: store}
}

// NextID returns the first id to hand out in this run. A missing history
// starts at 1; a failed lookup also falls back to 1 rather than blocking the
// batch.
func (a *IDAllocator) NextID(ctx context.Context) int64 {
	max, ok, err := a.store.MaxGroupID(ctx)
	if err != nil {
		a.logger.Warn("max group-id lookup failed, starting at 1", slog.Any("error", err))
		return 1
	}
	if !ok {
		a.logger.Info("no previously assigned group ids, starting at 1")
		return 1
	}

	next := max + 1
	a.logger.Info("allocated group-id range start",
		slog.Int64("current_max", max), slog.Int64("next_id", next))
	return next
}
