package repo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func newTestCaseStore(t *testing.T, rt roundTripFunc) *CaseStore {
	t.Helper()
	store, err := NewCaseStore(CaseStoreConfig{
		URL:               "http://cases.test:9200",
		Index:             "edr-event-vectors",
		TicketVectorIndex: "ticket-vectors",
		Transport:         rt,
	}, nil)
	if err != nil {
		t.Fatalf("create case store: %v", err)
	}
	return store
}

func TestNearestCaseReturnsTopHit(t *testing.T) {
	var capturedQuery map[string]any
	store := newTestCaseStore(t, func(req *http.Request) (*http.Response, error) {
		if req.Body != nil {
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedQuery)
		}
		return osResponse(http.StatusOK, `{
			"hits": {"hits": [
				{"_score": 0.93, "_source": {"case_id": "CASE-001", "summary": "s"}}
			]}
		}`), nil
	})

	hit, ok, err := store.NearestCase(context.Background(), []float32{0.1, 0.2})
	if err != nil {
		t.Fatalf("knn failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a candidate")
	}
	if hit.CaseID != "CASE-001" || hit.Score != 0.93 {
		t.Fatalf("unexpected hit: %+v", hit)
	}
	if capturedQuery["size"] != float64(1) {
		t.Fatalf("expected size 1, got %v", capturedQuery["size"])
	}
}

func TestNearestCaseEmptyStore(t *testing.T) {
	store := newTestCaseStore(t, func(req *http.Request) (*http.Response, error) {
		return osResponse(http.StatusOK, `{"hits": {"hits": []}}`), nil
	})

	_, ok, err := store.NearestCase(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("knn failed: %v", err)
	}
	if ok {
		t.Fatal("expected no candidate for empty store")
	}
}

func TestCaseStepsSortedBySequence(t *testing.T) {
	store := newTestCaseStore(t, func(req *http.Request) (*http.Response, error) {
		return osResponse(http.StatusOK, `{
			"hits": {"hits": [
				{"_source": {"case_id": "CASE-001", "event_seq": 2, "summary": "second"}},
				{"_source": {"case_id": "CASE-001", "event_seq": 1, "summary": "first"}}
			]}
		}`), nil
	})

	steps, err := store.CaseSteps(context.Background(), "CASE-001")
	if err != nil {
		t.Fatalf("steps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Seq != 1 || steps[0].Summary != "first" {
		t.Fatalf("steps not sorted: %+v", steps)
	}
}

func TestGetTicketVectorNotFound(t *testing.T) {
	store := newTestCaseStore(t, func(req *http.Request) (*http.Response, error) {
		return osResponse(http.StatusNotFound, `{"found": false}`), nil
	})

	_, ok, err := store.GetTicketVector(context.Background(), 42)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("expected not-found for missing vector")
	}
}

func TestGetTicketVectorFound(t *testing.T) {
	store := newTestCaseStore(t, func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(req.URL.Path, "ticket-vectors") {
			t.Fatalf("get hit wrong index: %s", req.URL.Path)
		}
		return osResponse(http.StatusOK, `{"_source": {"ticket_vector": [0.1, 0.2, 0.3]}}`), nil
	})

	vector, ok, err := store.GetTicketVector(context.Background(), 42)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || len(vector) != 3 {
		t.Fatalf("unexpected vector: ok=%v len=%d", ok, len(vector))
	}
}

func TestSimilarTicketsAppliesFloorAndLimit(t *testing.T) {
	store := newTestCaseStore(t, func(req *http.Request) (*http.Response, error) {
		return osResponse(http.StatusOK, `{
			"hits": {"hits": [
				{"_score": 0.97, "_source": {"ai_group_id": 7}},
				{"_score": 0.91, "_source": {"ai_group_id": 8}},
				{"_score": 0.70, "_source": {"ai_group_id": 9}}
			]}
		}`), nil
	})

	results, err := store.SimilarTickets(context.Background(), 42, []float32{0.1}, 10, 0.90)
	if err != nil {
		t.Fatalf("similar failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 hits above floor, got %d", len(results))
	}
	for _, r := range results {
		if r.Score < 0.90 {
			t.Fatalf("hit below floor leaked: %+v", r)
		}
		if r.GroupID == 42 {
			t.Fatal("query ticket must be excluded")
		}
	}
}
