package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/triagestack/triage-engine/internal/models"
)

// GroupFetcher reads the persisted member events of a ticket.
type GroupFetcher interface {
	FetchByGroupID(ctx context.Context, groupID int64) ([]models.Event, error)
}

// TicketVectorStore stores and searches hybrid ticket vectors.
type TicketVectorStore interface {
	GetTicketVector(ctx context.Context, groupID int64) ([]float32, bool, error)
	IndexTicketVector(ctx context.Context, groupID int64, vector []float32) error
	SimilarTickets(ctx context.Context, groupID int64, vector []float32, limit int, floor float64) ([]models.SimilarTicket, error)
}

// SimilarTicketFinder resolves tickets that resemble a given ticket by
// comparing hybrid text embeddings built from the member events. Vectors are
// computed lazily and persisted so repeat lookups skip the embedding call.
type SimilarTicketFinder struct {
	logger   *slog.Logger
	groups   GroupFetcher
	vectors  TicketVectorStore
	embedder Embedder
	limit    int
	floor    float64
}

// NewSimilarTicketFinder constructs a finder. limit caps the result count and
// floor discards weak matches.
func NewSimilarTicketFinder(logger *slog.Logger, groups GroupFetcher, vectors TicketVectorStore, embedder Embedder, limit int, floor float64) *SimilarTicketFinder {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 10
	}
	return &SimilarTicketFinder{
		logger:   logger,
		groups:   groups,
		vectors:  vectors,
		embedder: embedder,
		limit:    limit,
		floor:    floor,
	}
}

// FindSimilar returns historical tickets nearest to groupID, strongest first.
// The query ticket's vector is created and stored on first use.
func (f *SimilarTicketFinder) FindSimilar(ctx context.Context, groupID int64) ([]models.SimilarTicket, error) {
	vector, ok, err := f.vectors.GetTicketVector(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load ticket vector %d: %w", groupID, err)
	}
	if !ok {
		vector, err = f.SaveVector(ctx, groupID)
		if err != nil {
			return nil, err
		}
	}

	return f.vectors.SimilarTickets(ctx, groupID, vector, f.limit, f.floor)
}

// SaveVector embeds the ticket's hybrid text and persists it, returning the
// vector. Tickets with no persisted events cannot be vectorised.
func (f *SimilarTicketFinder) SaveVector(ctx context.Context, groupID int64) ([]float32, error) {
	events, err := f.groups.FetchByGroupID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load ticket %d events: %w", groupID, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("ticket %d has no persisted events", groupID)
	}

	text := BuildHybridText(events)
	vector, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed ticket %d: %w", groupID, err)
	}

	if err := f.vectors.IndexTicketVector(ctx, groupID, vector); err != nil {
		return nil, fmt.Errorf("store ticket vector %d: %w", groupID, err)
	}

	f.logger.Info("stored ticket vector", slog.Int64("group_id", groupID), slog.Int("events", len(events)))
	return vector, nil
}

// BuildHybridText flattens a ticket's member events into one embedding input:
// the shared attack narrative followed by deduplicated behavioral facets.
func BuildHybridText(events []models.Event) string {
	var scenario, tactics string
	var reasons []string
	rules := make([]string, 0, len(events))
	cmds := make([]string, 0, len(events))
	types := make([]string, 0, len(events))
	seenRule := make(map[string]struct{})
	seenCmd := make(map[string]struct{})
	seenType := make(map[string]struct{})

	for _, ev := range events {
		if scenario == "" {
			scenario = ev.LLMScenario
		}
		if len(reasons) == 0 {
			reasons = ev.LLMReasons
		}
		if tactics == "" {
			tactics = ev.LLMTactics
		}
		if ev.RuleID != "" {
			if _, ok := seenRule[ev.RuleID]; !ok {
				seenRule[ev.RuleID] = struct{}{}
				rules = append(rules, ev.RuleID)
			}
		}
		if ev.CommandLine != "" {
			if _, ok := seenCmd[ev.CommandLine]; !ok {
				seenCmd[ev.CommandLine] = struct{}{}
				cmds = append(cmds, ev.CommandLine)
			}
		}
		if ev.DetectType != "" {
			if _, ok := seenType[ev.DetectType]; !ok {
				seenType[ev.DetectType] = struct{}{}
				types = append(types, ev.DetectType)
			}
		}
	}

	var b strings.Builder
	writeSection := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", label, value)
	}
	writeSection("Scenario", scenario)
	writeSection("Reasons", strings.Join(reasons, "; "))
	writeSection("Tactics", tactics)
	writeSection("DetectTypes", strings.Join(types, ", "))
	writeSection("Rules", strings.Join(rules, ", "))
	writeSection("Commands", strings.Join(cmds, " | "))
	return strings.TrimRight(b.String(), "\n")
}
