package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

type fakeSummarizer struct {
	err error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, ev models.Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + ev.UniqueID, nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeStepWriter struct {
	mu    sync.Mutex
	steps []models.CaseStep
	err   error
}

func (f *fakeStepWriter) IndexCaseStep(ctx context.Context, step models.CaseStep) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step)
	return nil
}

func labeledEvents() []models.Event {
	base := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	return []models.Event{
		{UniqueID: "b", LabelCaseID: "CASE-001", EventTime: base.Add(time.Minute)},
		{UniqueID: "a", LabelCaseID: "CASE-001", EventTime: base},
		{UniqueID: "c", LabelCaseID: "CASE-002", EventTime: base.Add(2 * time.Minute)},
		{UniqueID: "unlabeled", EventTime: base},
	}
}

func TestAssignSequencesOrdersByTime(t *testing.T) {
	sequenced := AssignSequences(labeledEvents())

	if len(sequenced) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(sequenced))
	}

	caseOne := sequenced["CASE-001"]
	if len(caseOne) != 2 {
		t.Fatalf("expected 2 events in CASE-001, got %d", len(caseOne))
	}
	if caseOne[0].UniqueID != "a" || caseOne[0].EventSeq != 1 {
		t.Fatalf("earliest event must be seq 1: %+v", caseOne[0])
	}
	if caseOne[1].UniqueID != "b" || caseOne[1].EventSeq != 2 {
		t.Fatalf("later event must be seq 2: %+v", caseOne[1])
	}
}

func TestBuildStoresAllSteps(t *testing.T) {
	writer := &fakeStepWriter{}
	builder := NewBuilder(nil, &fakeSummarizer{}, &fakeEmbedder{}, writer, 2)

	result, err := builder.Build(context.Background(), labeledEvents())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if result.Cases != 2 {
		t.Fatalf("expected 2 cases, got %d", result.Cases)
	}
	if result.StepsStored != 3 || result.StepsFailed != 0 {
		t.Fatalf("unexpected step counts: %+v", result)
	}

	for _, step := range writer.steps {
		if step.Summary == "" || len(step.Vector) == 0 {
			t.Fatalf("step %s_%d stored without summary or vector", step.CaseID, step.Seq)
		}
		if step.Seq < 1 {
			t.Fatalf("step sequence must start at 1, got %d", step.Seq)
		}
	}
}

func TestBuildCountsFailedSteps(t *testing.T) {
	builder := NewBuilder(nil, &fakeSummarizer{err: errors.New("llm down")}, &fakeEmbedder{}, &fakeStepWriter{}, 2)

	result, err := builder.Build(context.Background(), labeledEvents())
	if err != nil {
		t.Fatalf("build must not fail outright: %v", err)
	}
	if result.StepsStored != 0 || result.StepsFailed != 3 {
		t.Fatalf("unexpected step counts: %+v", result)
	}
}

func TestBuildNoLabeledEvents(t *testing.T) {
	builder := NewBuilder(nil, &fakeSummarizer{}, &fakeEmbedder{}, &fakeStepWriter{}, 2)

	result, err := builder.Build(context.Background(), []models.Event{{UniqueID: "x"}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if result.Cases != 0 || result.StepsStored != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
