package engine

import (
	"sort"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

// splitIncoherent enforces the correlation rules the generative proposer is
// instructed to follow but cannot be trusted to honor: events on different
// hosts are never merged into one ticket, and members separated from their
// predecessor by more than maxGap are split into a new ticket.
func splitIncoherent(ticket models.Ticket, maxGap time.Duration) []models.Ticket {
	if len(ticket.Events) <= 1 {
		return []models.Ticket{ticket}
	}

	byHost := make(map[string][]models.Event)
	hostOrder := make([]string, 0, 2)
	for _, ev := range ticket.Events {
		if _, ok := byHost[ev.HostName]; !ok {
			hostOrder = append(hostOrder, ev.HostName)
		}
		byHost[ev.HostName] = append(byHost[ev.HostName], ev)
	}

	out := make([]models.Ticket, 0, len(hostOrder))
	for _, host := range hostOrder {
		members := byHost[host]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].EventTime.Before(members[j].EventTime)
		})

		run := []models.Event{members[0]}
		for _, ev := range members[1:] {
			if maxGap > 0 && ev.EventTime.Sub(run[len(run)-1].EventTime) > maxGap {
				out = append(out, derivedTicket(ticket, host, run))
				run = []models.Event{ev}
				continue
			}
			run = append(run, ev)
		}
		out = append(out, derivedTicket(ticket, host, run))
	}

	return out
}

func derivedTicket(parent models.Ticket, host string, members []models.Event) models.Ticket {
	return models.Ticket{
		Title:  parent.Title,
		Host:   host,
		Reason: parent.Reason,
		Events: members,
	}
}
