package repo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

func newTestEventStore(t *testing.T, rt roundTripFunc) *EventStore {
	t.Helper()
	store, err := NewEventStore(EventStoreConfig{
		URL:          "http://events.test:9200",
		SourcePrefix: "edr-ai-classified-",
		DestPrefix:   "edr-ai-grouping-",
		DestPattern:  "edr-ai-grouping-*",
		BatchSizeCap: 100,
		Transport:    rt,
	}, nil)
	if err != nil {
		t.Fatalf("create event store: %v", err)
	}
	return store
}

func TestSourceAndDestIndexDerivation(t *testing.T) {
	store := newTestEventStore(t, func(req *http.Request) (*http.Response, error) {
		return esResponse(http.StatusOK, "{}"), nil
	})

	src, err := store.SourceIndex("2025.11.20_14")
	if err != nil {
		t.Fatalf("source index: %v", err)
	}
	if src != "edr-ai-classified-2025.11.20" {
		t.Fatalf("unexpected source index %q", src)
	}

	dest, err := store.DestIndex("2025.11.20_14")
	if err != nil {
		t.Fatalf("dest index: %v", err)
	}
	if dest != "edr-ai-grouping-2025.11.20" {
		t.Fatalf("unexpected dest index %q", dest)
	}

	if _, err := store.SourceIndex(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestFetchMaliciousParsesHits(t *testing.T) {
	var capturedPath string
	var capturedQuery map[string]any

	store := newTestEventStore(t, func(req *http.Request) (*http.Response, error) {
		capturedPath = req.URL.Path
		if req.Body != nil {
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedQuery)
		}
		return esResponse(http.StatusOK, `{
			"hits": {"hits": [
				{"_id": "doc-1", "_source": {"UniqueID": "u1", "HostName": "HOST-01"}},
				{"_id": "doc-2", "_source": {"UniqueID": "u2", "HostName": "HOST-02"}}
			]}
		}`), nil
	})

	events, err := store.FetchMalicious(context.Background(), "2025.11.20_14")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].DocID != "doc-1" || events[0].UniqueID != "u1" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if !strings.Contains(capturedPath, "edr-ai-classified-2025.11.20") {
		t.Fatalf("query hit wrong index path: %s", capturedPath)
	}
	if capturedQuery["size"] != float64(100) {
		t.Fatalf("expected size cap 100, got %v", capturedQuery["size"])
	}
}

func TestMaxGroupID(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMax int64
		wantOK  bool
	}{
		{"existing max", `{"aggregations": {"max_id": {"value": 17.0}}}`, 17, true},
		{"empty history", `{"aggregations": {"max_id": {"value": null}}}`, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestEventStore(t, func(req *http.Request) (*http.Response, error) {
				return esResponse(http.StatusOK, tc.body), nil
			})

			max, ok, err := store.MaxGroupID(context.Background())
			if err != nil {
				t.Fatalf("max lookup failed: %v", err)
			}
			if ok != tc.wantOK || max != tc.wantMax {
				t.Fatalf("expected (%d,%v), got (%d,%v)", tc.wantMax, tc.wantOK, max, ok)
			}
		})
	}
}

func TestMaxGroupIDError(t *testing.T) {
	store := newTestEventStore(t, func(req *http.Request) (*http.Response, error) {
		return esResponse(http.StatusInternalServerError, `{"error": "boom"}`), nil
	})

	if _, _, err := store.MaxGroupID(context.Background()); err == nil {
		t.Fatal("expected error from failing cluster")
	}
}

func TestBulkIndexBuildsActionsWithDocIDs(t *testing.T) {
	var capturedBody string
	store := newTestEventStore(t, func(req *http.Request) (*http.Response, error) {
		if req.Body != nil {
			body, _ := io.ReadAll(req.Body)
			capturedBody = string(body)
		}
		return esResponse(http.StatusOK, `{"errors": false}`), nil
	})

	events := []models.Event{
		{DocID: "doc-1", UniqueID: "u1", GroupID: 5, GroupedAt: time.Now().UTC().Format(time.RFC3339)},
		{UniqueID: "u2", GroupID: 5},
	}

	saved, err := store.BulkIndex(context.Background(), "2025.11.20_14", events)
	if err != nil {
		t.Fatalf("bulk failed: %v", err)
	}
	if saved != 2 {
		t.Fatalf("expected 2 saved, got %d", saved)
	}

	if !strings.Contains(capturedBody, `"_id":"doc-1"`) {
		t.Fatalf("first doc must keep its source id:\n%s", capturedBody)
	}
	if !strings.Contains(capturedBody, `"_id":"u2"`) {
		t.Fatalf("second doc must fall back to unique id:\n%s", capturedBody)
	}
	if !strings.Contains(capturedBody, `"ai_group_id":5`) {
		t.Fatalf("group id missing from payload:\n%s", capturedBody)
	}
}

func TestBulkIndexEmptyInput(t *testing.T) {
	store := newTestEventStore(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for empty input")
		return nil, nil
	})

	saved, err := store.BulkIndex(context.Background(), "2025.11.20_14", nil)
	if err != nil || saved != 0 {
		t.Fatalf("expected (0,nil), got (%d,%v)", saved, err)
	}
}
