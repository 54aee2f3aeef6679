package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/workers"
)

// ErrMissingBatchID is returned when a run is requested without a batch token.
var ErrMissingBatchID = errors.New("missing batch_id")

// EventSource abstracts the event index operations the pipeline needs.
type EventSource interface {
	FetchMalicious(ctx context.Context, batchID string) ([]models.Event, error)
	BulkIndex(ctx context.Context, batchID string, events []models.Event) (int, error)
}

// Pipeline drives one batch end to end: load, tag, classify, bucket, group,
// allocate ids, persist. Stages run to completion before the next begins; a
// failed individual task degrades to its fallback value instead of aborting
// the batch.
type Pipeline struct {
	logger          *slog.Logger
	events          EventSource
	classifier      *Classifier
	stories         *StoryBuilder
	grouper         *ContextualGrouper
	allocator       *IDAllocator
	classifyWorkers int
	groupWorkers    int
	now             func() time.Time
}

// NewPipeline constructs the batch orchestrator.
func NewPipeline(
	logger *slog.Logger,
	events EventSource,
	classifier *Classifier,
	stories *StoryBuilder,
	grouper *ContextualGrouper,
	allocator *IDAllocator,
	classifyWorkers, groupWorkers int,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if classifyWorkers <= 0 {
		classifyWorkers = 10
	}
	if groupWorkers <= 0 {
		groupWorkers = 10
	}
	return &Pipeline{
		logger:          logger,
		events:          events,
		classifier:      classifier,
		stories:         stories,
		grouper:         grouper,
		allocator:       allocator,
		classifyWorkers: classifyWorkers,
		groupWorkers:    groupWorkers,
		now:             time.Now,
	}
}

type bucketJob struct {
	caseID string
	events []models.Event
}

// Run processes one batch and reports what it produced. The only fatal input
// error is a missing batch token; an empty event set is a successful no-op.
func (p *Pipeline) Run(ctx context.Context, req models.BatchRequest) (models.BatchResult, error) {
	if req.BatchID == "" {
		return models.BatchResult{}, ErrMissingBatchID
	}
	result := models.BatchResult{BatchID: req.BatchID}

	// Load.
	events, err := p.events.FetchMalicious(ctx, req.BatchID)
	if err != nil {
		return result, fmt.Errorf("load batch %s: %w", req.BatchID, err)
	}
	if len(events) == 0 {
		p.logger.Info("no malicious events in batch", slog.String("batch_id", req.BatchID))
		return result, nil
	}

	// Tag each event with its transient per-run id.
	for i := range events {
		events[i].TmpIndex = i
	}

	// Classify concurrently; the worker cap respects collaborator rate limits.
	classified := workers.Map(ctx, p.classifyWorkers, events, func(ctx context.Context, _ int, ev models.Event) models.Event {
		match := p.classifier.Classify(ctx, ev)
		switch match.Kind {
		case models.MatchAccepted:
			metrics.ObserveClassification(metrics.ClassificationMatched)
		case models.MatchError:
			metrics.ObserveClassification(metrics.ClassificationError)
		default:
			metrics.ObserveClassification(metrics.ClassificationUnknown)
		}
		ApplyMatch(&ev, match)
		return ev
	})

	// Bucket by predicted case, sentinel buckets included.
	buckets := make(map[string][]models.Event)
	for _, ev := range classified {
		buckets[ev.PredictedCaseID] = append(buckets[ev.PredictedCaseID], ev)
	}

	jobs := make([]bucketJob, 0, len(buckets))
	for caseID, bucketEvents := range buckets {
		jobs = append(jobs, bucketJob{caseID: caseID, events: bucketEvents})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].caseID < jobs[j].caseID })

	p.logger.Info("grouping case buckets",
		slog.String("batch_id", req.BatchID), slog.Int("buckets", len(jobs)))

	// Group each bucket concurrently against its reference narrative.
	ticketLists := workers.Map(ctx, p.groupWorkers, jobs, func(ctx context.Context, _ int, job bucketJob) []models.Ticket {
		story, err := p.stories.Build(ctx, job.caseID)
		if err != nil {
			p.logger.Warn("reference story unavailable, singleton fallback",
				slog.String("case_id", job.caseID), slog.Any("error", err))
			metrics.ObserveGroupingFallback()
			return p.grouper.Fallback(job.events)
		}
		return p.grouper.Group(ctx, job.caseID, job.events, story)
	})

	tickets := make([]models.Ticket, 0, len(classified))
	for _, list := range ticketLists {
		tickets = append(tickets, list...)
	}

	// Allocate ids and stamp every member event.
	startID := p.allocator.NextID(ctx)
	groupedAt := p.now().UTC().Format(time.RFC3339)

	docs := make([]models.Event, 0, len(classified))
	for i := range tickets {
		tickets[i].GroupID = startID + int64(i)
		for j := range tickets[i].Events {
			tickets[i].Events[j].GroupID = tickets[i].GroupID
			tickets[i].Events[j].GroupedAt = groupedAt
			docs = append(docs, tickets[i].Events[j])
		}
	}

	saved, err := p.events.BulkIndex(ctx, req.BatchID, docs)
	if err != nil {
		return result, fmt.Errorf("persist batch %s: %w", req.BatchID, err)
	}

	result.TicketsCreated = len(tickets)
	result.DocsSaved = saved
	metrics.ObservePersisted(result.TicketsCreated, result.DocsSaved)

	p.logger.Info("batch complete",
		slog.String("batch_id", req.BatchID),
		slog.Int("tickets_created", result.TicketsCreated),
		slog.Int("docs_saved", result.DocsSaved))
	return result, nil
}
