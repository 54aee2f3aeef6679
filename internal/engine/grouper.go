package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/models"
)

// GroupProposer renders the clustering decision for one case bucket.
type GroupProposer interface {
	ProposeGroups(ctx context.Context, caseID, story string, digests []string) ([]models.GroupProposal, error)
}

// ContextualGrouper clusters a bucket of same-case events into discrete
// tickets, guided by the case's reference narrative. The generative engine
// proposes the grouping; the grouper resolves, validates, and guarantees that
// every input event ends up in exactly one ticket.
type ContextualGrouper struct {
	logger   *slog.Logger
	proposer GroupProposer
	maxGap   time.Duration
}

// NewContextualGrouper constructs a grouper. maxGap bounds the in-ticket time
// gap between consecutive events; zero disables gap splitting.
func NewContextualGrouper(logger *slog.Logger, proposer GroupProposer, maxGap time.Duration) *ContextualGrouper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextualGrouper{logger: logger, proposer: proposer, maxGap: maxGap}
}

// Group clusters the bucket into tickets. Any proposer failure or unusable
// response degrades to one singleton ticket per event so no event is lost.
func (g *ContextualGrouper) Group(ctx context.Context, caseID string, events []models.Event, story string) []models.Ticket {
	if len(events) == 0 {
		return nil
	}

	digests := make([]string, 0, len(events))
	for _, ev := range events {
		digests = append(digests, fmt.Sprintf("- [ID:%d] [Time:%s] [Host:%s] %s",
			ev.TmpIndex, ev.EventTime.UTC().Format(time.RFC3339), ev.HostName, ev.GeneratedSummary))
	}

	proposals, err := g.proposer.ProposeGroups(ctx, caseID, story, digests)
	if err != nil {
		g.logger.Warn("grouping degraded to singleton tickets",
			slog.String("case_id", caseID), slog.Any("error", err))
		metrics.ObserveGroupingFallback()
		return g.Fallback(events)
	}

	byTmpIndex := make(map[int]models.Event, len(events))
	for _, ev := range events {
		byTmpIndex[ev.TmpIndex] = ev
	}

	tickets := make([]models.Ticket, 0, len(proposals))
	referenced := make(map[int]struct{}, len(events))
	for _, proposal := range proposals {
		members := make([]models.Event, 0, len(proposal.EventIDs))
		for _, id := range proposal.EventIDs {
			ev, ok := byTmpIndex[id]
			if !ok {
				// Ids outside the bucket are hallucinated; drop them silently.
				continue
			}
			if _, dup := referenced[id]; dup {
				continue
			}
			referenced[id] = struct{}{}
			members = append(members, ev)
		}
		if len(members) == 0 {
			continue
		}

		ticket := models.Ticket{
			Title:  proposal.Title,
			Host:   proposal.Host,
			Reason: proposal.Reason,
			Events: members,
		}
		tickets = append(tickets, splitIncoherent(ticket, g.maxGap)...)
	}

	// Events the proposer never referenced still need a home.
	for _, ev := range events {
		if _, ok := referenced[ev.TmpIndex]; ok {
			continue
		}
		tickets = append(tickets, singletonTicket(ev))
	}

	return tickets
}

// Fallback emits one singleton ticket per event, the degraded result used when
// clustering fails outright.
func (g *ContextualGrouper) Fallback(events []models.Event) []models.Ticket {
	tickets := make([]models.Ticket, 0, len(events))
	for _, ev := range events {
		tickets = append(tickets, singletonTicket(ev))
	}
	return tickets
}

func singletonTicket(ev models.Event) models.Ticket {
	return models.Ticket{
		Host:   ev.HostName,
		Events: []models.Event{ev},
	}
}
