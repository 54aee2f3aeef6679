package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/triagestack/triage-engine/internal/models"
)

// ParseError reports an unusable grouping response. Callers decide the
// fallback policy (singleton tickets) explicitly instead of relying on a
// swallowed exception.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse grouping response: %s", e.Msg)
	}
	return fmt.Sprintf("parse grouping response: %s: %v", e.Msg, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseGroups decodes the generative grouper's JSON decision. Both response
// shapes the model emits are accepted: a bare array of tickets, or an object
// wrapping the array under "tickets".
func ParseGroups(data []byte) ([]models.GroupProposal, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Msg: "empty response"}
	}

	if trimmed[0] == '[' {
		var proposals []models.GroupProposal
		if err := json.Unmarshal(trimmed, &proposals); err != nil {
			return nil, &ParseError{Msg: "invalid ticket array", Err: err}
		}
		return proposals, nil
	}

	var wrapper struct {
		Tickets []models.GroupProposal `json:"tickets"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, &ParseError{Msg: "invalid response object", Err: err}
	}
	if wrapper.Tickets == nil {
		return nil, &ParseError{Msg: `response object has no "tickets" array`}
	}
	return wrapper.Tickets, nil
}
