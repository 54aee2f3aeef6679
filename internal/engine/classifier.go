package engine

import (
	"context"
	"log/slog"

	"github.com/triagestack/triage-engine/internal/models"
)

// Summarizer produces the normalized behavioral summary for one event.
type Summarizer interface {
	Summarize(ctx context.Context, ev models.Event) (string, error)
}

// Embedder turns a text summary into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CaseSearcher finds the nearest catalogued case for an embedding.
type CaseSearcher interface {
	NearestCase(ctx context.Context, vector []float32) (models.CaseHit, bool, error)
}

// Classifier matches single events against catalogued attack cases by vector
// similarity, applying per-case acceptance thresholds.
type Classifier struct {
	logger     *slog.Logger
	summarizer Summarizer
	embedder   Embedder
	cases      CaseSearcher
	thresholds *ThresholdPack
}

// NewClassifier constructs a classifier over the given collaborators.
func NewClassifier(logger *slog.Logger, summarizer Summarizer, embedder Embedder, cases CaseSearcher, thresholds *ThresholdPack) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		logger:     logger,
		summarizer: summarizer,
		embedder:   embedder,
		cases:      cases,
		thresholds: thresholds,
	}
}

// Classify summarises, embeds, and matches one event. It never returns an
// error: any collaborator failure degrades to an Error-kind match so a single
// bad event cannot block the batch.
func (c *Classifier) Classify(ctx context.Context, ev models.Event) models.CaseMatch {
	summary, err := c.summarizer.Summarize(ctx, ev)
	if err != nil {
		c.logger.Warn("classification failed at summary",
			slog.String("event_id", ev.UniqueID), slog.Any("error", err))
		return models.CaseMatch{Kind: models.MatchError}
	}

	vector, err := c.embedder.Embed(ctx, summary)
	if err != nil {
		c.logger.Warn("classification failed at embedding",
			slog.String("event_id", ev.UniqueID), slog.Any("error", err))
		return models.CaseMatch{Kind: models.MatchError, Summary: summary}
	}

	hit, ok, err := c.cases.NearestCase(ctx, vector)
	if err != nil {
		c.logger.Warn("classification failed at case search",
			slog.String("event_id", ev.UniqueID), slog.Any("error", err))
		return models.CaseMatch{Kind: models.MatchError, Summary: summary}
	}

	if !ok {
		return models.CaseMatch{
			Kind:    models.MatchUnknown,
			Score:   0.0,
			Summary: "[Unknown Activity Pattern]\n" + summary,
		}
	}

	threshold := c.thresholds.Resolve(hit.CaseID)
	if hit.Score >= threshold {
		return models.CaseMatch{
			Kind:    models.MatchAccepted,
			CaseID:  hit.CaseID,
			Score:   hit.Score,
			Summary: summary,
		}
	}

	// Below threshold: the score and summary still get recorded for audit and
	// for clustering inside the unknown bucket.
	return models.CaseMatch{Kind: models.MatchUnknown, Score: hit.Score, Summary: summary}
}

// ApplyMatch writes a classification outcome onto the event's persisted fields.
func ApplyMatch(ev *models.Event, m models.CaseMatch) {
	ev.PredictedCaseID = m.BucketKey()
	ev.SimilarityScore = m.Score
	ev.GeneratedSummary = m.Summary
}
