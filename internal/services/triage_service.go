// Package services exposes the engine's operations behind one facade with
// run tracking, latency accounting, and failure alerting.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/triagestack/triage-engine/internal/alert"
	"github.com/triagestack/triage-engine/internal/catalog"
	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

// TriageService fronts the batch pipeline, the catalog builder, and the
// similar-ticket finder.
type TriageService struct {
	logger   *slog.Logger
	pipeline *engine.Pipeline
	builder  *catalog.Builder
	similar  *engine.SimilarTicketFinder
	notifier *alert.Notifier
	latency  *utils.LatencyTracker
}

// NewTriageService wires the facade. notifier may be a disabled no-op.
func NewTriageService(
	logger *slog.Logger,
	pipeline *engine.Pipeline,
	builder *catalog.Builder,
	similar *engine.SimilarTicketFinder,
	notifier *alert.Notifier,
) *TriageService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = alert.NewNotifier(logger, "")
	}
	return &TriageService{
		logger:   logger,
		pipeline: pipeline,
		builder:  builder,
		similar:  similar,
		notifier: notifier,
		latency:  utils.NewLatencyTracker(512),
	}
}

// RunBatch executes one batch run with metrics, latency tracking, and a
// failure alert on fatal errors.
func (s *TriageService) RunBatch(ctx context.Context, req models.BatchRequest) (models.BatchResult, error) {
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID), slog.String("batch_id", req.BatchID))
	logger.Info("batch run started")

	start := time.Now()
	result, err := s.pipeline.Run(ctx, req)
	elapsed := time.Since(start)
	s.latency.Observe(elapsed)

	if err != nil {
		metrics.ObserveBatch(elapsed, metrics.OutcomeError)
		logger.Error("batch run failed", slog.Any("error", err), slog.Duration("elapsed", elapsed))
		s.notifier.BatchFailed(ctx, req.BatchID, err)
		return result, err
	}

	metrics.ObserveBatch(elapsed, metrics.OutcomeSuccess)
	logger.Info("batch run succeeded",
		slog.Int("tickets_created", result.TicketsCreated),
		slog.Int("docs_saved", result.DocsSaved),
		slog.Duration("elapsed", elapsed))
	return result, nil
}

// RebuildCatalog catalogues labeled reference events.
func (s *TriageService) RebuildCatalog(ctx context.Context, events []models.Event) (catalog.BuildResult, error) {
	runID := uuid.NewString()
	s.logger.Info("catalog rebuild started",
		slog.String("run_id", runID), slog.Int("events", len(events)))
	return s.builder.Build(ctx, events)
}

// FindSimilarTickets returns historical tickets resembling groupID.
func (s *TriageService) FindSimilarTickets(ctx context.Context, groupID int64) ([]models.SimilarTicket, error) {
	return s.similar.FindSimilar(ctx, groupID)
}

// SaveTicketVector embeds and stores the hybrid vector for a persisted ticket.
func (s *TriageService) SaveTicketVector(ctx context.Context, groupID int64) error {
	_, err := s.similar.SaveVector(ctx, groupID)
	return err
}

// BatchLatencyP95 reports the 95th percentile of recent batch durations.
func (s *TriageService) BatchLatencyP95() time.Duration {
	return s.latency.Percentile(95)
}
