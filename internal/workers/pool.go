// Package workers provides the bounded fan-out primitive used between
// pipeline stages. Tasks never communicate with each other; each stage runs a
// pool to completion before the next stage starts.
package workers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item using at most limit concurrent goroutines and
// returns the results in input order. Tasks are expected to degrade to a
// fallback value internally instead of failing, so fn returns only a result.
func Map[T, R any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, idx int, item T) R) []R {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	results := make([]R, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range items {
		i := i
		g.Go(func() error {
			results[i] = fn(ctx, i, items[i])
			return nil
		})
	}

	// Tasks never return errors; Wait only synchronises the stage barrier.
	_ = g.Wait()
	return results
}
