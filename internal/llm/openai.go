package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/triagestack/triage-engine/internal/extractors"
	"github.com/triagestack/triage-engine/internal/models"
)

const summarizeSystemPrompt = "You are a cyber threat hunting expert. Analyse the given detection log " +
	"and extract a generalized attack pattern so similar future attacks can be recognised. " +
	"Remove or abstract variable values such as user names, random hashes, and temporary paths."

const summarizeUserPromptTemplate = `Write an attack behavior summary of the event below, optimised for vector similarity search.

[Substitution rules - always apply]
1. User names and host names -> {User}, {Host}
2. Concrete file hashes (SHA256 etc.) -> {Malware_Hash} (keep system binaries like cmd.exe, powershell.exe)
3. Concrete IP addresses -> {External_IP} or {Local_IP}
4. Random folder names or temporary ids -> {Random_ID}
5. Dates and times -> remove
6. Drill/test keywords or junk suffixes like "(1)" in paths -> remove or replace with {Suspicious_Folder}

[Summary must include]
1. MITRE ATT&CK, exactly in this form (one line per mapping):
   [Tactic: <Tactic Name> (<ID>)] [Technique: <Technique Name> (<ID>)]
2. Action: what executed what (parent-child relationships)
3. Tool: Windows utilities or script engines involved (PowerShell, bitsadmin, DllHost, ...)
4. Suspicious traits (executed from a download folder, encoded command, ...)

Never describe case metadata; describe only the attack behavior itself.

[Event indicators]
%s

[Scenario hint]
%s`

const groupSystemPrompt = "You are an AI analyst in a security operations center (SOC). " +
	"Using a past attack case (Reference) as guidance, group the freshly detected events (Targets) " +
	"into discrete incident tickets."

const groupUserPromptTemplate = `[Instructions]
1. The Reference Story is the full flow of a previously analysed attack.
2. The Target Events arrived just now. They may resemble the reference but can be separate incidents on different hosts or time windows.
3. Group Target Events that belong to the same attack flow.
4. Grouping rules:
   - Temporal adjacency: consecutive attack steps happen within a short window. Large time gaps mean separate tickets.
   - Host match: one attack flow stays on one host. Never merge events from different hosts.
   - Flow continuity: group only when the reference step order plausibly continues with the observed events.
   - If the flow between the reference and a target event is not clearly connected, never put them in the same ticket.
   - A similar-looking summary with low flow continuity gets its own singleton ticket.
   - Events unrelated to the attack flow each get their own ticket.

[Reference Story]
%s

[Target Events]
%s

[Output format: JSON only]
Respond with a JSON object of the form {"tickets": [...]}, no prose. Each ticket:
{
  "ticket_title": "short attack summary (e.g. credential theft attempt #1)",
  "host": "target host",
  "event_ids": [1, 2],
  "reason": "why these events form one flow (temporal continuity etc.)"
}`

// Client talks to the generative backend for event summaries and ticket
// grouping decisions. Both calls are treated as black boxes by the engine;
// failures degrade at the caller.
type Client struct {
	api       *openai.Client
	model     string
	extractor *extractors.FeatureExtractor
	logger    *slog.Logger
}

// NewClient constructs a generative client. baseURL may be empty for the
// public endpoint.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:       openai.NewClientWithConfig(cfg),
		model:     model,
		extractor: extractors.NewFeatureExtractor(),
		logger:    logger,
	}
}

// Summarize produces the normalized behavioral summary used for embedding and
// downstream clustering.
func (c *Client) Summarize(ctx context.Context, ev models.Event) (string, error) {
	digest := c.extractor.Digest(ev)
	if digest == "" {
		return "", fmt.Errorf("event %s has no behavioral indicators", ev.UniqueID)
	}

	scenario := ev.LabelScenario
	if scenario == "" {
		scenario = "N/A"
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(summarizeUserPromptTemplate, digest, scenario)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize event %s: %w", ev.UniqueID, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize event %s: empty completion", ev.UniqueID)
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("summarize event %s: blank summary", ev.UniqueID)
	}
	return summary, nil
}

// ProposeGroups asks the model to cluster the target event digests against the
// reference story and parses the JSON decision.
func (c *Client) ProposeGroups(ctx context.Context, caseID, story string, digests []string) ([]models.GroupProposal, error) {
	prompt := fmt.Sprintf(groupUserPromptTemplate, story, strings.Join(digests, "\n"))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: groupSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("group case %s: %w", caseID, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("group case %s: empty completion", caseID)
	}

	proposals, err := ParseGroups([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, fmt.Errorf("group case %s: %w", caseID, err)
	}
	return proposals, nil
}
