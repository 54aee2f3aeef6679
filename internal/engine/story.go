package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/triagestack/triage-engine/internal/cache"
	"github.com/triagestack/triage-engine/internal/models"
)

// Fixed narratives handed to the grouper when no catalogued reference exists.
const (
	// StoryNoCatalogMatch instructs the grouper to cluster purely on intrinsic
	// correlation when events matched no catalogued case.
	StoryNoCatalogMatch = "This group matches no catalogued attack case (possible novel threat). " +
		"Cluster the target events strictly by their own time, host, and behavior correlation."
	// StoryNoReferenceData is returned when a case id exists but has no steps.
	StoryNoReferenceData = "No reference data available."
)

// StepFetcher returns the catalogued steps of a case, ordered by sequence.
type StepFetcher interface {
	CaseSteps(ctx context.Context, caseID string) ([]models.CaseStep, error)
}

// StoryBuilder reconstructs the ordered reference narrative of a case. It is
// a pure read over the case store and safe to call repeatedly; narratives are
// cached by case id to spare the store during large batches.
type StoryBuilder struct {
	logger *slog.Logger
	steps  StepFetcher
	cache  cache.Provider
	ttl    time.Duration
}

// NewStoryBuilder constructs a story builder. cacheProvider may be nil.
func NewStoryBuilder(logger *slog.Logger, steps StepFetcher, cacheProvider cache.Provider, ttl time.Duration) *StoryBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &StoryBuilder{logger: logger, steps: steps, cache: cacheProvider, ttl: ttl}
}

// Build returns the numbered narrative for caseID. Sentinel bucket keys yield
// the fixed no-catalog-match instruction without touching the store.
func (b *StoryBuilder) Build(ctx context.Context, caseID string) (string, error) {
	if models.IsSentinel(caseID) {
		return StoryNoCatalogMatch, nil
	}

	cacheKey := "story:" + caseID
	if cached, err := b.cache.Get(ctx, cacheKey); err == nil && len(cached) > 0 {
		return string(cached), nil
	}

	steps, err := b.steps.CaseSteps(ctx, caseID)
	if err != nil {
		return "", fmt.Errorf("load reference story for %s: %w", caseID, err)
	}
	if len(steps) == 0 {
		return StoryNoReferenceData, nil
	}

	lines := make([]string, 0, len(steps)+1)
	lines = append(lines, fmt.Sprintf("Reference case: %s", caseID))
	for _, step := range steps {
		lines = append(lines, fmt.Sprintf("[Step %d] %s", step.Seq, step.Summary))
	}
	story := strings.Join(lines, "\n")

	if err := b.cache.Set(ctx, cacheKey, []byte(story), b.ttl); err != nil {
		b.logger.Debug("story cache write failed", slog.String("case_id", caseID), slog.Any("error", err))
	}
	return story, nil
}
