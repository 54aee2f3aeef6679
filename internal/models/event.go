package models

import "time"

// Event is one endpoint/network detection record as stored in the event index.
// Field names mirror the upstream ingestion schema, so the JSON tags follow the
// vendor casing rather than Go conventions.
type Event struct {
	// DocID is the search-index document id. It is carried out-of-band so a
	// re-indexed copy keeps the same identity.
	DocID string `json:"-"`

	UniqueID   string    `json:"UniqueID,omitempty"`
	HostName   string    `json:"HostName,omitempty"`
	EventTime  time.Time `json:"EventTime,omitempty"`
	EventDate  string    `json:"EventDate,omitempty"`
	RuleID     string    `json:"RuleID,omitempty"`
	DetectType string    `json:"DetectSubType,omitempty"`

	// Free-text behavioral indicators.
	ProcessName       string `json:"ProcessName,omitempty"`
	ParentProcessName string `json:"ParentProcessName,omitempty"`
	CommandLine       string `json:"CommandLine,omitempty"`
	FilePath          string `json:"FilePath,omitempty"`
	RegistryKey       string `json:"RegistryKey,omitempty"`
	RemoteIP          string `json:"RemoteIP,omitempty"`
	RemotePort        int    `json:"RemotePort,omitempty"`

	// Upstream LLM verdict fields, consumed as filters and similarity inputs.
	Analysis    *Analysis       `json:"ai_analysis,omitempty"`
	LLMScenario string          `json:"LLMScenario,omitempty"`
	LLMTactics  string          `json:"LLMTactics,omitempty"`
	LLMReasons  []string        `json:"LLMReasons,omitempty"`
	Suspicious  *SuspiciousInfo `json:"SuspiciousInfo,omitempty"`
	Response    *ResponseInfo   `json:"ResponseInfo,omitempty"`

	// Labeling fields present only on catalog training events.
	LabelCaseID   string `json:"threat_label_case_id,omitempty"`
	LabelScenario string `json:"threat_label_scenario,omitempty"`
	EventSeq      int    `json:"event_seq,omitempty"`

	// Classification output, set by the classifier before persistence.
	PredictedCaseID  string  `json:"predicted_case_id,omitempty"`
	SimilarityScore  float64 `json:"similarity_score,omitempty"`
	GeneratedSummary string  `json:"generated_summary,omitempty"`

	// Grouping output, stamped at persistence time.
	GroupID   int64  `json:"ai_group_id,omitempty"`
	GroupedAt string `json:"ai_grouped_at,omitempty"`

	// TmpIndex is the transient per-run positional id used to cross-reference
	// events inside one batch run. Never persisted.
	TmpIndex int `json:"-"`
}

// Analysis carries the upstream maliciousness verdict.
type Analysis struct {
	Result string `json:"result,omitempty"`
}

// SuspiciousInfo holds the vendor classification of a suspicious artifact.
type SuspiciousInfo struct {
	Classification string `json:"Classification,omitempty"`
}

// ResponseInfo records automated response actions taken by the endpoint agent.
type ResponseInfo struct {
	TerminatedProcesses []TerminatedProcess `json:"detect_terminateprocess,omitempty"`
}

// TerminatedProcess is one process killed by an automated response.
type TerminatedProcess struct {
	CmdLine string `json:"CmdLine,omitempty"`
}
