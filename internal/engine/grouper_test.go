package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

type fakeProposer struct {
	proposals []models.GroupProposal
	err       error
}

func (f *fakeProposer) ProposeGroups(ctx context.Context, caseID, story string, digests []string) ([]models.GroupProposal, error) {
	return f.proposals, f.err
}

func groupEvents(times ...time.Time) []models.Event {
	events := make([]models.Event, 0, len(times))
	for i, ts := range times {
		events = append(events, models.Event{
			UniqueID:  "ev-" + string(rune('a'+i)),
			HostName:  "HOST-01",
			EventTime: ts,
			TmpIndex:  i,
		})
	}
	return events
}

func memberIDs(tickets []models.Ticket) map[int]int {
	seen := map[int]int{}
	for _, ticket := range tickets {
		for _, ev := range ticket.Events {
			seen[ev.TmpIndex]++
		}
	}
	return seen
}

func TestGroupResolvesProposals(t *testing.T) {
	base := time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC)
	events := groupEvents(base, base.Add(time.Minute), base.Add(2*time.Minute))

	grouper := NewContextualGrouper(nil, &fakeProposer{proposals: []models.GroupProposal{
		{Title: "lateral movement #1", Host: "HOST-01", EventIDs: []int{0, 1}, Reason: "continuous flow"},
		{Title: "lateral movement #2", Host: "HOST-01", EventIDs: []int{2}, Reason: "separate flow"},
	}}, 30*time.Minute)

	tickets := grouper.Group(context.Background(), "CASE-001", events, "story")
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
	if len(tickets[0].Events) != 2 || len(tickets[1].Events) != 1 {
		t.Fatalf("unexpected member counts: %d, %d", len(tickets[0].Events), len(tickets[1].Events))
	}
	if tickets[0].Title != "lateral movement #1" {
		t.Fatalf("unexpected title %q", tickets[0].Title)
	}
}

func TestGroupCoversEveryEventExactlyOnce(t *testing.T) {
	base := time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC)
	events := groupEvents(base, base.Add(time.Minute), base.Add(2*time.Minute), base.Add(3*time.Minute))

	// Proposer references event 1 twice, invents id 99, and forgets 2 and 3.
	grouper := NewContextualGrouper(nil, &fakeProposer{proposals: []models.GroupProposal{
		{Title: "t1", Host: "HOST-01", EventIDs: []int{0, 1, 99}},
		{Title: "t2", Host: "HOST-01", EventIDs: []int{1}},
	}}, 0)

	tickets := grouper.Group(context.Background(), "CASE-001", events, "story")

	seen := memberIDs(tickets)
	if len(seen) != len(events) {
		t.Fatalf("expected all %d events covered, got %d", len(events), len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("event %d appears %d times", id, count)
		}
	}
	if _, ok := seen[99]; ok {
		t.Fatal("hallucinated id 99 must be dropped")
	}
}

func TestGroupFallbackOnProposerError(t *testing.T) {
	base := time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC)
	events := groupEvents(base, base.Add(time.Minute))

	grouper := NewContextualGrouper(nil, &fakeProposer{err: errors.New("llm down")}, 0)
	tickets := grouper.Group(context.Background(), "CASE-001", events, "story")

	if len(tickets) != len(events) {
		t.Fatalf("expected %d singleton tickets, got %d", len(events), len(tickets))
	}
	for i, ticket := range tickets {
		if len(ticket.Events) != 1 {
			t.Fatalf("ticket %d is not a singleton", i)
		}
	}
}

func TestGroupEmptyBucket(t *testing.T) {
	grouper := NewContextualGrouper(nil, &fakeProposer{}, 0)
	if tickets := grouper.Group(context.Background(), "CASE-001", nil, "story"); tickets != nil {
		t.Fatalf("expected no tickets for empty bucket, got %d", len(tickets))
	}
}

func TestSplitIncoherentByHost(t *testing.T) {
	base := time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC)
	ticket := models.Ticket{
		Title: "cross-host merge",
		Events: []models.Event{
			{UniqueID: "a", HostName: "HOST-01", EventTime: base, TmpIndex: 0},
			{UniqueID: "b", HostName: "HOST-02", EventTime: base.Add(time.Minute), TmpIndex: 1},
			{UniqueID: "c", HostName: "HOST-01", EventTime: base.Add(2 * time.Minute), TmpIndex: 2},
		},
	}

	split := splitIncoherent(ticket, time.Hour)
	if len(split) != 2 {
		t.Fatalf("expected split into 2 host tickets, got %d", len(split))
	}
	if split[0].Host != "HOST-01" || len(split[0].Events) != 2 {
		t.Fatalf("unexpected first split: host=%s members=%d", split[0].Host, len(split[0].Events))
	}
	if split[1].Host != "HOST-02" || len(split[1].Events) != 1 {
		t.Fatalf("unexpected second split: host=%s members=%d", split[1].Host, len(split[1].Events))
	}
	if split[0].Title != "cross-host merge" {
		t.Fatalf("derived tickets must keep the title, got %q", split[0].Title)
	}
}

func TestSplitIncoherentByTimeGap(t *testing.T) {
	base := time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC)
	ticket := models.Ticket{
		Events: []models.Event{
			{UniqueID: "a", HostName: "HOST-01", EventTime: base},
			{UniqueID: "b", HostName: "HOST-01", EventTime: base.Add(5 * time.Minute)},
			{UniqueID: "c", HostName: "HOST-01", EventTime: base.Add(2 * time.Hour)},
		},
	}

	split := splitIncoherent(ticket, 30*time.Minute)
	if len(split) != 2 {
		t.Fatalf("expected 2 tickets after gap split, got %d", len(split))
	}
	if len(split[0].Events) != 2 || len(split[1].Events) != 1 {
		t.Fatalf("unexpected member counts: %d, %d", len(split[0].Events), len(split[1].Events))
	}
}

func TestSplitIncoherentZeroGapDisablesSplitting(t *testing.T) {
	base := time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC)
	ticket := models.Ticket{
		Events: []models.Event{
			{UniqueID: "a", HostName: "HOST-01", EventTime: base},
			{UniqueID: "b", HostName: "HOST-01", EventTime: base.Add(48 * time.Hour)},
		},
	}

	split := splitIncoherent(ticket, 0)
	if len(split) != 1 {
		t.Fatalf("expected single ticket with gap splitting disabled, got %d", len(split))
	}
}
