package engine

import (
	"context"
	"errors"
	"testing"
)

type fakeMaxIDSearcher struct {
	max int64
	ok  bool
	err error
}

func (f *fakeMaxIDSearcher) MaxGroupID(ctx context.Context) (int64, bool, error) {
	return f.max, f.ok, f.err
}

func TestNextIDStartsAtOneWhenEmpty(t *testing.T) {
	allocator := NewIDAllocator(nil, &fakeMaxIDSearcher{ok: false})
	if got := allocator.NextID(context.Background()); got != 1 {
		t.Fatalf("expected 1 for empty history, got %d", got)
	}
}

func TestNextIDIncrementsMax(t *testing.T) {
	allocator := NewIDAllocator(nil, &fakeMaxIDSearcher{max: 3, ok: true})
	if got := allocator.NextID(context.Background()); got != 4 {
		t.Fatalf("expected 4 after max 3, got %d", got)
	}
}

func TestNextIDFallsBackToOneOnError(t *testing.T) {
	allocator := NewIDAllocator(nil, &fakeMaxIDSearcher{err: errors.New("cluster down")})
	if got := allocator.NextID(context.Background()); got != 1 {
		t.Fatalf("expected 1 on lookup error, got %d", got)
	}
}
