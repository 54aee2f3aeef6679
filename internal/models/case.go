package models

import "time"

// Bucket keys for events that could not be matched to a catalogued case. They
// double as the persisted predicted_case_id values so downstream consumers see
// the same vocabulary the catalog uses.
const (
	BucketUnknown = "UNKNOWN"
	BucketError   = "ERROR"
)

// MatchKind discriminates the outcome of classifying one event.
type MatchKind int

const (
	// MatchAccepted means the nearest case cleared its similarity threshold.
	MatchAccepted MatchKind = iota
	// MatchUnknown means no candidate existed or the best one fell short.
	MatchUnknown
	// MatchError means summarisation, embedding, or search failed.
	MatchError
)

// CaseMatch is the closed classification result carried alongside the score
// and generated summary. The case-id string is only meaningful for accepted
// matches; unmatched and failed events are tagged by kind instead of sentinel
// case ids.
type CaseMatch struct {
	Kind    MatchKind
	CaseID  string
	Score   float64
	Summary string
}

// BucketKey returns the partition key used to group classified events.
func (m CaseMatch) BucketKey() string {
	switch m.Kind {
	case MatchAccepted:
		return m.CaseID
	case MatchError:
		return BucketError
	default:
		return BucketUnknown
	}
}

// IsSentinel reports whether key denotes one of the unmatched buckets.
func IsSentinel(key string) bool {
	return key == BucketUnknown || key == BucketError
}

// CaseHit is one k-NN candidate returned by the case store.
type CaseHit struct {
	CaseID string
	Score  float64
}

// CaseStep is a single step of a catalogued attack narrative.
type CaseStep struct {
	CaseID    string    `json:"case_id"`
	Seq       int       `json:"event_seq"`
	Summary   string    `json:"summary"`
	Vector    []float32 `json:"vector,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SimilarTicket is one historical ticket returned by vector similarity search.
type SimilarTicket struct {
	GroupID int64   `json:"ai_group_id"`
	Score   float64 `json:"score"`
}
