package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesInputOrder(t *testing.T) {
	items := []int{5, 3, 8, 1, 9, 2}

	results := Map(context.Background(), 3, items, func(_ context.Context, idx int, item int) int {
		// Stagger completion so out-of-order finishes would surface.
		time.Sleep(time.Duration(item) * time.Millisecond)
		return item * 10
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, item := range items {
		if results[i] != item*10 {
			t.Fatalf("result %d: expected %d, got %d", i, item*10, results[i])
		}
	}
}

func TestMapRespectsConcurrencyLimit(t *testing.T) {
	const limit = 3
	var active, peak int64
	var mu sync.Mutex

	items := make([]int, 20)
	Map(context.Background(), limit, items, func(_ context.Context, _ int, _ int) struct{} {
		current := atomic.AddInt64(&active, 1)
		mu.Lock()
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return struct{}{}
	})

	if peak > limit {
		t.Fatalf("observed %d concurrent tasks, limit is %d", peak, limit)
	}
}

func TestMapEmptyInput(t *testing.T) {
	results := Map(context.Background(), 4, nil, func(_ context.Context, _ int, item int) int {
		return item
	})
	if results != nil {
		t.Fatalf("expected nil results for empty input, got %v", results)
	}
}

func TestMapNonPositiveLimit(t *testing.T) {
	results := Map(context.Background(), 0, []int{1, 2}, func(_ context.Context, _ int, item int) int {
		return item + 1
	})
	if len(results) != 2 || results[0] != 2 || results[1] != 3 {
		t.Fatalf("unexpected results: %v", results)
	}
}
