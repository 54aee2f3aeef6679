package repo

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

// CaseStoreConfig holds connection parameters for the OpenSearch vector store.
type CaseStoreConfig struct {
	URL               string
	Username          string
	Password          string
	Insecure          bool
	Timeout           time.Duration
	Index             string
	TicketVectorIndex string

	// Transport overrides the default HTTP transport; used by tests.
	Transport http.RoundTripper
}

// CaseStore provides vector search over catalogued case steps and historical
// ticket vectors.
type CaseStore struct {
	client      *opensearch.Client
	index       string
	ticketIndex string
	logger      *slog.Logger
}

// NewCaseStore constructs a case store client.
func NewCaseStore(cfg CaseStoreConfig, logger *slog.Logger) (*CaseStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var transport http.RoundTripper = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
	}
	if cfg.Transport != nil {
		transport = cfg.Transport
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	return &CaseStore{
		client:      client,
		index:       cfg.Index,
		ticketIndex: cfg.TicketVectorIndex,
		logger:      logger,
	}, nil
}

// NearestCase returns the single best case candidate for the embedding, drawn
// from a small k-NN candidate pool. ok is false when the store is empty.
func (s *CaseStore) NearestCase(ctx context.Context, vector []float32) (models.CaseHit, bool, error) {
	query := map[string]any{
		"size": 1,
		"query": map[string]any{
			"knn": map[string]any{
				"vector": map[string]any{
					"vector": vector,
					"k":      5,
				},
			},
		},
		"_source": []string{"case_id", "summary"},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return models.CaseHit{}, false, fmt.Errorf("marshal knn query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return models.CaseHit{}, false, utils.NewAppError("case_store.knn", "search failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return models.CaseHit{}, false, utils.NewAppError("case_store.knn", res.String(), nil)
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					CaseID string `json:"case_id"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return models.CaseHit{}, false, utils.NewAppError("case_store.knn", "decode response", err)
	}

	if len(envelope.Hits.Hits) == 0 {
		return models.CaseHit{}, false, nil
	}

	top := envelope.Hits.Hits[0]
	return models.CaseHit{CaseID: top.Source.CaseID, Score: top.Score}, true, nil
}

// CaseSteps returns the catalogued steps for a case, ordered by sequence
// number ascending.
func (s *CaseStore) CaseSteps(ctx context.Context, caseID string) ([]models.CaseStep, error) {
	query := map[string]any{
		// A catalogued scenario rarely exceeds ten steps.
		"size": 10,
		"query": map[string]any{
			"term": map[string]any{"case_id": caseID},
		},
		"sort":    []any{map[string]any{"event_seq": map[string]any{"order": "asc"}}},
		"_source": []string{"case_id", "event_seq", "summary"},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal steps query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, utils.NewAppError("case_store.steps", "search failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, utils.NewAppError("case_store.steps", res.String(), nil)
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				Source models.CaseStep `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, utils.NewAppError("case_store.steps", "decode response", err)
	}

	steps := make([]models.CaseStep, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		steps = append(steps, hit.Source)
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Seq < steps[j].Seq })
	return steps, nil
}

// IndexCaseStep stores one catalogued step vector under the stable document
// id "{case_id}_{seq}" so catalog rebuilds overwrite in place.
func (s *CaseStore) IndexCaseStep(ctx context.Context, step models.CaseStep) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("marshal case step: %w", err)
	}

	docID := fmt.Sprintf("%s_%d", step.CaseID, step.Seq)
	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(docID),
	)
	if err != nil {
		return utils.NewAppError("case_store.index_step", "index request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return utils.NewAppError("case_store.index_step", res.String(), nil)
	}
	return nil
}

// GetTicketVector fetches a previously stored ticket vector. ok is false when
// the ticket has not been vectorised yet.
func (s *CaseStore) GetTicketVector(ctx context.Context, groupID int64) ([]float32, bool, error) {
	res, err := s.client.Get(
		s.ticketIndex,
		strconv.FormatInt(groupID, 10),
		s.client.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, false, utils.NewAppError("case_store.get_ticket", "get request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, utils.NewAppError("case_store.get_ticket", res.String(), nil)
	}

	var envelope struct {
		Source struct {
			TicketVector []float32 `json:"ticket_vector"`
		} `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, false, utils.NewAppError("case_store.get_ticket", "decode response", err)
	}
	return envelope.Source.TicketVector, true, nil
}

// IndexTicketVector stores the hybrid vector for a persisted ticket, keyed by
// its group id.
func (s *CaseStore) IndexTicketVector(ctx context.Context, groupID int64, vector []float32) error {
	doc := map[string]any{
		"ai_group_id":   groupID,
		"ticket_vector": vector,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal ticket vector: %w", err)
	}

	res, err := s.client.Index(
		s.ticketIndex,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(strconv.FormatInt(groupID, 10)),
	)
	if err != nil {
		return utils.NewAppError("case_store.index_ticket", "index request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return utils.NewAppError("case_store.index_ticket", res.String(), nil)
	}
	return nil
}

// SimilarTickets returns historical tickets nearest to the query vector,
// excluding the query ticket itself. Hits below floor are discarded.
func (s *CaseStore) SimilarTickets(ctx context.Context, groupID int64, vector []float32, limit int, floor float64) ([]models.SimilarTicket, error) {
	if limit <= 0 {
		limit = 10
	}

	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"knn": map[string]any{
							"ticket_vector": map[string]any{
								"vector": vector,
								// Over-fetch so dropping the query ticket still fills the page.
								"k": limit + 6,
							},
						},
					},
				},
				"must_not": []any{
					map[string]any{"term": map[string]any{"ai_group_id": groupID}},
				},
			},
		},
		"_source": []string{"ai_group_id"},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal similar-tickets query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.ticketIndex),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, utils.NewAppError("case_store.similar", "search failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, utils.NewAppError("case_store.similar", res.String(), nil)
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					GroupID int64 `json:"ai_group_id"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, utils.NewAppError("case_store.similar", "decode response", err)
	}

	results := make([]models.SimilarTicket, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		if hit.Score < floor {
			continue
		}
		results = append(results, models.SimilarTicket{GroupID: hit.Source.GroupID, Score: hit.Score})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
