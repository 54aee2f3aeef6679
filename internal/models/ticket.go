package models

// GroupProposal is the generative grouper's raw clustering decision: member
// events are referenced by their transient per-run ids and resolved back to
// full events by the caller.
type GroupProposal struct {
	Title    string `json:"ticket_title"`
	Host     string `json:"host"`
	EventIDs []int  `json:"event_ids"`
	Reason   string `json:"reason"`
}

// Ticket is one coherent incident: a set of correlated events plus the
// grouping rationale. GroupID is assigned at persistence time.
type Ticket struct {
	Title   string  `json:"ticket_title,omitempty"`
	Host    string  `json:"host,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Events  []Event `json:"events"`
	GroupID int64   `json:"ai_group_id,omitempty"`
}

// BatchRequest triggers processing of one logical batch window.
type BatchRequest struct {
	BatchID string `json:"batch_id"`
}

// BatchResult reports what one batch run produced.
type BatchResult struct {
	BatchID        string `json:"batch_id"`
	TicketsCreated int    `json:"tickets_created"`
	DocsSaved      int    `json:"docs_saved"`
}
