// Package catalog turns analyst-labeled reference events into the vectorised
// case catalog the classifier searches.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/workers"
)

// StepWriter persists one catalogued case step.
type StepWriter interface {
	IndexCaseStep(ctx context.Context, step models.CaseStep) error
}

// Builder summarises, embeds, and stores labeled reference events as ordered
// case steps. Build is idempotent: step document ids are derived from case id
// and sequence, so a rebuild overwrites in place.
type Builder struct {
	logger     *slog.Logger
	summarizer engine.Summarizer
	embedder   engine.Embedder
	steps      StepWriter
	numWorkers int
}

// NewBuilder constructs a catalog builder with the given worker cap.
func NewBuilder(logger *slog.Logger, summarizer engine.Summarizer, embedder engine.Embedder, steps StepWriter, numWorkers int) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if numWorkers <= 0 {
		numWorkers = 5
	}
	return &Builder{
		logger:     logger,
		summarizer: summarizer,
		embedder:   embedder,
		steps:      steps,
		numWorkers: numWorkers,
	}
}

type stepJob struct {
	caseID string
	seq    int
	event  models.Event
}

// BuildResult reports what a catalog rebuild produced.
type BuildResult struct {
	Cases       int `json:"cases"`
	StepsStored int `json:"steps_stored"`
	StepsFailed int `json:"steps_failed"`
}

// Build catalogues the labeled events. Events without a case label are
// skipped. A failed step is logged and counted; siblings still proceed.
func (b *Builder) Build(ctx context.Context, events []models.Event) (BuildResult, error) {
	sequenced := AssignSequences(events)
	if len(sequenced) == 0 {
		return BuildResult{}, nil
	}

	jobs := make([]stepJob, 0, len(events))
	caseIDs := make([]string, 0, len(sequenced))
	for caseID := range sequenced {
		caseIDs = append(caseIDs, caseID)
	}
	sort.Strings(caseIDs)
	for _, caseID := range caseIDs {
		for seq, ev := range sequenced[caseID] {
			jobs = append(jobs, stepJob{caseID: caseID, seq: seq + 1, event: ev})
		}
	}

	errs := workers.Map(ctx, b.numWorkers, jobs, func(ctx context.Context, _ int, job stepJob) error {
		return b.buildStep(ctx, job)
	})

	result := BuildResult{Cases: len(sequenced)}
	for _, err := range errs {
		if err != nil {
			result.StepsFailed++
			continue
		}
		result.StepsStored++
	}

	b.logger.Info("catalog build finished",
		slog.Int("cases", result.Cases),
		slog.Int("steps_stored", result.StepsStored),
		slog.Int("steps_failed", result.StepsFailed))
	return result, nil
}

func (b *Builder) buildStep(ctx context.Context, job stepJob) error {
	summary, err := b.summarizer.Summarize(ctx, job.event)
	if err != nil {
		b.logger.Warn("catalog step summary failed",
			slog.String("case_id", job.caseID), slog.Int("seq", job.seq), slog.Any("error", err))
		return fmt.Errorf("summarize step %s_%d: %w", job.caseID, job.seq, err)
	}

	vector, err := b.embedder.Embed(ctx, summary)
	if err != nil {
		b.logger.Warn("catalog step embedding failed",
			slog.String("case_id", job.caseID), slog.Int("seq", job.seq), slog.Any("error", err))
		return fmt.Errorf("embed step %s_%d: %w", job.caseID, job.seq, err)
	}

	step := models.CaseStep{
		CaseID:    job.caseID,
		Seq:       job.seq,
		Summary:   summary,
		Vector:    vector,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.steps.IndexCaseStep(ctx, step); err != nil {
		b.logger.Warn("catalog step indexing failed",
			slog.String("case_id", job.caseID), slog.Int("seq", job.seq), slog.Any("error", err))
		return fmt.Errorf("index step %s_%d: %w", job.caseID, job.seq, err)
	}
	return nil
}

// AssignSequences groups labeled events by case id and orders each case's
// events by time, producing the 1..n step sequence per case. Events without
// a label are dropped.
func AssignSequences(events []models.Event) map[string][]models.Event {
	byCase := make(map[string][]models.Event)
	for _, ev := range events {
		if ev.LabelCaseID == "" {
			continue
		}
		byCase[ev.LabelCaseID] = append(byCase[ev.LabelCaseID], ev)
	}
	for caseID := range byCase {
		members := byCase[caseID]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].EventTime.Before(members[j].EventTime)
		})
		for i := range members {
			members[i].EventSeq = i + 1
		}
		byCase[caseID] = members
	}
	return byCase
}
