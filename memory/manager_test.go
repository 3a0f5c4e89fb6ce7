package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/memory"
	"github.com/becomeliminal/nim-pipeline/memory/embedder/mock"
	"github.com/becomeliminal/nim-pipeline/memory/store/chromem"
	"github.com/becomeliminal/nim-pipeline/memory/store/simstore"
	"github.com/becomeliminal/nim-pipeline/similarity"
)

func doneTask(id, goal string, passed bool) core.Task {
	plan := []core.Step{{Instruction: "collect sources"}, {Instruction: "write report"}}
	exec := []core.ExecutionResult{
		{Instruction: "collect sources", Result: "found 3"},
		{Instruction: "write report", Result: "done"},
	}
	review := core.Verdict{Passed: passed, Review: "looks fine"}
	return core.Task{
		ID:        id,
		Goal:      goal,
		Status:    core.StatusDone,
		Plan:      plan,
		Execution: exec,
		Review:    &review,
		Result:    &core.Result{Plan: plan, Execution: exec, Review: review},
	}
}

func stores(t *testing.T) map[string]memory.Store {
	t.Helper()
	cs, err := chromem.New()
	if err != nil {
		t.Fatalf("Failed to create chromem store: %v", err)
	}
	idx, err := similarity.NewStore(mock.DefaultDimensions)
	if err != nil {
		t.Fatalf("Failed to create similarity store: %v", err)
	}
	return map[string]memory.Store{
		"chromem":  cs,
		"simstore": simstore.New(idx),
	}
}

func TestSimpleManager_RecordAndRetrieve(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		manager := memory.NewSimpleManager(store, mock.New(0), &memory.Config{Enabled: true, MaxResults: 2})

		if err := manager.Record(ctx, doneTask("t1", "Analyze global water scarcity in arid regions", true)); err != nil {
			t.Fatalf("%s: Failed to record task: %v", name, err)
		}
		if err := manager.Record(ctx, doneTask("t2", "Bake sourdough bread at home", false)); err != nil {
			t.Fatalf("%s: Failed to record task: %v", name, err)
		}

		formatted, err := manager.Retrieve(ctx, "Propose solutions for water scarcity")
		if err != nil {
			t.Fatalf("%s: Failed to retrieve memories: %v", name, err)
		}
		if !strings.Contains(formatted, "RELEVANT PAST TASKS") {
			t.Errorf("%s: Expected formatted output to contain header, got %q", name, formatted)
		}

		first := strings.Index(formatted, "water scarcity")
		second := strings.Index(formatted, "sourdough")
		if first < 0 {
			t.Fatalf("%s: expected related task in output: %q", name, formatted)
		}
		if second >= 0 && second < first {
			t.Errorf("%s: unrelated task ranked above related task: %q", name, formatted)
		}
	}
}

func TestSimpleManager_EmptyStore(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		manager := memory.NewSimpleManager(store, mock.New(0), &memory.Config{Enabled: true})
		formatted, err := manager.Retrieve(ctx, "anything")
		if err != nil {
			t.Fatalf("%s: Retrieve on empty store: %v", name, err)
		}
		if formatted != "" {
			t.Errorf("%s: expected empty result, got %q", name, formatted)
		}
	}
}

func TestSimpleManager_DisabledConfig(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		manager := memory.NewSimpleManager(store, mock.New(0), &memory.Config{Enabled: false})

		if err := manager.Record(ctx, doneTask("t1", "Test goal", true)); err != nil {
			t.Fatalf("%s: Record should not error when disabled: %v", name, err)
		}
		formatted, err := manager.Retrieve(ctx, "Test goal")
		if err != nil {
			t.Fatalf("%s: Retrieve should not error when disabled: %v", name, err)
		}
		if formatted != "" {
			t.Errorf("%s: Expected empty result when memory is disabled", name)
		}
	}
}

func TestSimpleManager_SkipsUnfinishedTasks(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		manager := memory.NewSimpleManager(store, mock.New(0), &memory.Config{Enabled: true})

		failed := core.Task{ID: "t1", Goal: "Plan a trip", Status: core.StatusFailed, Error: "backend down"}
		if err := manager.Record(ctx, failed); err != nil {
			t.Fatalf("%s: Record: %v", name, err)
		}
		formatted, err := manager.Retrieve(ctx, "Plan a trip")
		if err != nil {
			t.Fatalf("%s: Retrieve: %v", name, err)
		}
		if formatted != "" {
			t.Errorf("%s: failed task should not be recalled, got %q", name, formatted)
		}
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}

func (failingEmbedder) Dimensions() int { return 8 }

func TestSimpleManager_EmbedFailure(t *testing.T) {
	store, _ := chromem.New()
	manager := memory.NewSimpleManager(store, failingEmbedder{}, &memory.Config{Enabled: true})

	if _, err := manager.Retrieve(context.Background(), "goal"); err == nil {
		t.Fatalf("expected embed error from Retrieve")
	}
	if err := manager.Record(context.Background(), doneTask("t1", "goal", true)); err == nil {
		t.Fatalf("expected embed error from Record")
	}
}

func TestTaskMemory_Format(t *testing.T) {
	mem := memory.NewTaskMemory(doneTask("t9", "Summarize rainfall data", false))
	out := mem.Format(memory.FormatContext{MaxLength: 400})
	if !strings.HasPrefix(out, "[Failed review] Summarize rainfall data") {
		t.Fatalf("unexpected format: %q", out)
	}
	if !strings.Contains(out, "collect sources; write report") {
		t.Fatalf("expected plan summary in %q", out)
	}
	if mem.Metadata()["task_id"] != "t9" {
		t.Fatalf("expected task_id metadata, got %v", mem.Metadata())
	}
	if mem.FormatForEmbedding() != "Summarize rainfall data" {
		t.Fatalf("unexpected embedding text %q", mem.FormatForEmbedding())
	}
}
