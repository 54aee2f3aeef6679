package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/cache"
	"github.com/triagestack/triage-engine/internal/models"
)

type fakeStepFetcher struct {
	steps []models.CaseStep
	err   error
	calls int
}

func (f *fakeStepFetcher) CaseSteps(ctx context.Context, caseID string) ([]models.CaseStep, error) {
	f.calls++
	return f.steps, f.err
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memCache) Del(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memCache) Close() error { return nil }

func TestStoryBuildSentinelBuckets(t *testing.T) {
	fetcher := &fakeStepFetcher{}
	builder := NewStoryBuilder(nil, fetcher, nil, 0)

	for _, key := range []string{models.BucketUnknown, models.BucketError} {
		story, err := builder.Build(context.Background(), key)
		if err != nil {
			t.Fatalf("sentinel build failed: %v", err)
		}
		if story != StoryNoCatalogMatch {
			t.Fatalf("expected no-catalog-match story for %s, got %q", key, story)
		}
	}
	if fetcher.calls != 0 {
		t.Fatalf("sentinel buckets must not hit the store, got %d calls", fetcher.calls)
	}
}

func TestStoryBuildNumbersSteps(t *testing.T) {
	fetcher := &fakeStepFetcher{steps: []models.CaseStep{
		{CaseID: "CASE-001", Seq: 1, Summary: "initial access"},
		{CaseID: "CASE-001", Seq: 2, Summary: "privilege escalation"},
	}}
	builder := NewStoryBuilder(nil, fetcher, nil, 0)

	story, err := builder.Build(context.Background(), "CASE-001")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	want := "Reference case: CASE-001\n[Step 1] initial access\n[Step 2] privilege escalation"
	if story != want {
		t.Fatalf("unexpected story:\n%s", story)
	}
}

func TestStoryBuildEmptyCase(t *testing.T) {
	builder := NewStoryBuilder(nil, &fakeStepFetcher{}, nil, 0)

	story, err := builder.Build(context.Background(), "CASE-404")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if story != StoryNoReferenceData {
		t.Fatalf("expected no-reference-data story, got %q", story)
	}
}

func TestStoryBuildPropagatesStoreError(t *testing.T) {
	builder := NewStoryBuilder(nil, &fakeStepFetcher{err: errors.New("store down")}, nil, 0)

	if _, err := builder.Build(context.Background(), "CASE-001"); err == nil {
		t.Fatal("expected error from failing store")
	}
}

func TestStoryBuildUsesCache(t *testing.T) {
	fetcher := &fakeStepFetcher{steps: []models.CaseStep{{CaseID: "CASE-001", Seq: 1, Summary: "step"}}}
	builder := NewStoryBuilder(nil, fetcher, newMemCache(), time.Minute)

	first, err := builder.Build(context.Background(), "CASE-001")
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	second, err := builder.Build(context.Background(), "CASE-001")
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if first != second {
		t.Fatalf("builds disagree: %q vs %q", first, second)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one store read, got %d", fetcher.calls)
	}
}
