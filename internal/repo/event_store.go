package repo

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

// EventStoreConfig holds connection and index-layout parameters for the
// Elasticsearch event cluster.
type EventStoreConfig struct {
	URL          string
	Username     string
	Password     string
	Insecure     bool
	Timeout      time.Duration
	SourcePrefix string
	DestPrefix   string
	DestPattern  string
	BatchSizeCap int

	// Transport overrides the default HTTP transport; used by tests.
	Transport http.RoundTripper
}

// EventStore reads classified detection events and writes ticket-stamped
// copies to the date-sharded destination indices.
type EventStore struct {
	client       *elasticsearch.Client
	sourcePrefix string
	destPrefix   string
	destPattern  string
	batchSizeCap int
	logger       *slog.Logger
}

// NewEventStore constructs an event store client. It does not ping the
// cluster; the first query surfaces connectivity problems.
func NewEventStore(cfg EventStoreConfig, logger *slog.Logger) (*EventStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSizeCap <= 0 {
		cfg.BatchSizeCap = 100
	}

	var transport http.RoundTripper = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
	}
	if cfg.Transport != nil {
		transport = cfg.Transport
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &EventStore{
		client:       client,
		sourcePrefix: cfg.SourcePrefix,
		destPrefix:   cfg.DestPrefix,
		destPattern:  cfg.DestPattern,
		batchSizeCap: cfg.BatchSizeCap,
		logger:       logger,
	}, nil
}

// SourceIndex derives the date-sharded input index for a batch token.
func (s *EventStore) SourceIndex(batchID string) (string, error) {
	date, err := utils.BatchDate(batchID)
	if err != nil {
		return "", err
	}
	return s.sourcePrefix + date, nil
}

// DestIndex derives the date-sharded output index for a batch token.
func (s *EventStore) DestIndex(batchID string) (string, error) {
	date, err := utils.BatchDate(batchID)
	if err != nil {
		return "", err
	}
	return s.destPrefix + date, nil
}

type searchEnvelope struct {
	Hits struct {
		Hits []struct {
			ID     string       `json:"_id"`
			Source models.Event `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// FetchMalicious returns events tagged malicious for the batch window, sorted
// by host then event time so grouping sees flows in order.
func (s *EventStore) FetchMalicious(ctx context.Context, batchID string) ([]models.Event, error) {
	index, err := s.SourceIndex(batchID)
	if err != nil {
		return nil, err
	}

	query := map[string]any{
		"size": s.batchSizeCap,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"term": map[string]any{"ai_analysis.result": "malicious"}},
					map[string]any{"term": map[string]any{"EventDate": batchID}},
				},
			},
		},
		"sort": []any{
			map[string]any{"HostName": map[string]any{"order": "asc"}},
			map[string]any{"EventTime": map[string]any{"order": "asc"}},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal event query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, utils.NewAppError("event_store.fetch", "search failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, utils.NewAppError("event_store.fetch", res.String(), nil)
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, utils.NewAppError("event_store.fetch", "decode response", err)
	}

	events := make([]models.Event, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		ev := hit.Source
		ev.DocID = hit.ID
		events = append(events, ev)
	}

	s.logger.Info("fetched malicious events",
		slog.String("index", index),
		slog.String("batch_id", batchID),
		slog.Int("count", len(events)))
	return events, nil
}

// MaxGroupID returns the maximum previously assigned group id across all
// historical destination partitions. ok is false when no ticket exists yet.
func (s *EventStore) MaxGroupID(ctx context.Context) (int64, bool, error) {
	query := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"max_id": map[string]any{"max": map[string]any{"field": "ai_group_id"}},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return 0, false, fmt.Errorf("marshal max-id query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.destPattern),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return 0, false, utils.NewAppError("event_store.max_id", "search failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, false, utils.NewAppError("event_store.max_id", res.String(), nil)
	}

	var envelope struct {
		Aggregations struct {
			MaxID struct {
				Value *float64 `json:"value"`
			} `json:"max_id"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return 0, false, utils.NewAppError("event_store.max_id", "decode response", err)
	}

	if envelope.Aggregations.MaxID.Value == nil {
		return 0, false, nil
	}
	return int64(*envelope.Aggregations.MaxID.Value), true, nil
}

// BulkIndex appends the ticket-stamped events to the batch's destination
// index. Each document keeps its source id so re-runs overwrite rather than
// duplicate. Returns the number of documents submitted.
func (s *EventStore) BulkIndex(ctx context.Context, batchID string, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	index, err := s.DestIndex(batchID)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	for _, ev := range events {
		docID := ev.DocID
		if docID == "" {
			docID = ev.UniqueID
		}

		action := map[string]any{"index": map[string]any{"_index": index, "_id": docID}}
		meta, err := json.Marshal(action)
		if err != nil {
			return 0, fmt.Errorf("marshal bulk action: %w", err)
		}
		doc, err := json.Marshal(ev)
		if err != nil {
			return 0, fmt.Errorf("marshal event %s: %w", docID, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(index),
	)
	if err != nil {
		return 0, utils.NewAppError("event_store.bulk", "bulk request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, utils.NewAppError("event_store.bulk", res.String(), nil)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return 0, utils.NewAppError("event_store.bulk", "decode response", err)
	}
	if bulkResp.Errors {
		// Partial failures are logged, not rolled back; sibling writes stand.
		s.logger.Warn("bulk indexing reported item errors", slog.String("index", index))
	}

	s.logger.Info("saved grouped events", slog.String("index", index), slog.Int("count", len(events)))
	return len(events), nil
}

// FetchByGroupID returns all events persisted under one ticket id, searching
// across every destination partition.
func (s *EventStore) FetchByGroupID(ctx context.Context, groupID int64) ([]models.Event, error) {
	query := map[string]any{
		"size": s.batchSizeCap,
		"query": map[string]any{
			"term": map[string]any{"ai_group_id": groupID},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal group query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.destPattern),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, utils.NewAppError("event_store.fetch_group", "search failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, utils.NewAppError("event_store.fetch_group", res.String(), nil)
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, utils.NewAppError("event_store.fetch_group", "decode response", err)
	}

	events := make([]models.Event, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		ev := hit.Source
		ev.DocID = hit.ID
		events = append(events, ev)
	}
	return events, nil
}
