package agents_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/becomeliminal/nim-pipeline/agents"
	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/llm"
	"github.com/becomeliminal/nim-pipeline/memory"
)

// scriptedBackend records prompts and answers each call with the next reply.
type scriptedBackend struct {
	mu      sync.Mutex
	prompts []string
	replies []func() (string, error)
}

func (s *scriptedBackend) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.mu.Lock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if i >= len(s.replies) {
		return "ok", nil
	}
	return s.replies[i]()
}

func reply(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func TestPlanner_Plan(t *testing.T) {
	backend := &scriptedBackend{replies: []func() (string, error){reply("1) A. 2) B. 3) C. 4) D.")}}
	planner := agents.NewPlanner(backend, nil, 0)

	recent := []core.MemoryEntry{{Role: memory.RoleExecutor, Content: "earlier result"}}
	steps, err := planner.Plan(context.Background(), "Analyze water scarcity", recent, "=== RELEVANT PAST TASKS ===")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d: %+v", len(steps), steps)
	}
	for _, s := range steps {
		if strings.ContainsAny(s.Instruction, ")") {
			t.Errorf("marker not stripped: %q", s.Instruction)
		}
	}

	prompt := backend.prompts[0]
	for _, want := range []string{"Goal: Analyze water scarcity", "[executor] earlier result", "RELEVANT PAST TASKS"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("plan prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPlanner_BackendError(t *testing.T) {
	boom := errors.New("backend down")
	planner := agents.NewPlanner(llm.Func(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", boom
	}), nil, 0)

	if _, err := planner.Plan(context.Background(), "goal", nil, ""); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestExecutor_ContinuesAfterFault(t *testing.T) {
	backend := &scriptedBackend{replies: []func() (string, error){
		reply("first done"),
		func() (string, error) { return "", errors.New("timeout talking to backend") },
		reply("third done"),
	}}
	buf := memory.NewBuffer()
	exec := agents.NewExecutor(backend, buf, nil, 0)

	steps := []core.Step{{Instruction: "one"}, {Instruction: "two"}, {Instruction: "three"}}
	results := exec.ExecutePlan(context.Background(), steps)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Instruction != steps[i].Instruction {
			t.Errorf("result %d instruction = %q, want %q", i, r.Instruction, steps[i].Instruction)
		}
	}
	if !results[1].IsError() || !strings.Contains(results[1].Result, "timeout") {
		t.Errorf("expected error marker on step 2, got %q", results[1].Result)
	}
	if results[0].IsError() || results[2].IsError() {
		t.Errorf("only step 2 should fail: %+v", results)
	}
	if buf.Len() != 2 {
		t.Errorf("expected 2 buffer entries from successful steps, got %d", buf.Len())
	}
}

func TestExecutor_RecoversPanic(t *testing.T) {
	calls := 0
	backend := llm.Func(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		calls++
		if calls == 1 {
			panic("nil map")
		}
		return "fine", nil
	})
	exec := agents.NewExecutor(backend, memory.NewBuffer(), nil, 0)

	results := exec.ExecutePlan(context.Background(), []core.Step{{Instruction: "a"}, {Instruction: "b"}})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].IsError() || !strings.Contains(results[0].Result, "nil map") {
		t.Errorf("expected recovered panic on step 1, got %q", results[0].Result)
	}
	if results[1].Result != "fine" {
		t.Errorf("step 2 should run after panic, got %q", results[1].Result)
	}
}

func TestExecutor_PromptCarriesRecentMemory(t *testing.T) {
	backend := &scriptedBackend{}
	buf := memory.NewBuffer()
	for _, c := range []string{"r1", "r2", "r3", "r4", "r5", "r6"} {
		buf.Add(memory.RoleExecutor, c)
	}
	exec := agents.NewExecutor(backend, buf, nil, 0)
	exec.SetContextSize(2)

	if _, err := exec.ExecuteStep(context.Background(), core.Step{Instruction: "summarize"}); err != nil {
		t.Fatalf("ExecuteStep: %v", err)
	}
	prompt := backend.prompts[0]
	if !strings.HasPrefix(prompt, "Execute step: summarize") {
		t.Errorf("unexpected prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "[executor] r5 | [executor] r6") || strings.Contains(prompt, "r4") {
		t.Errorf("prompt should carry only the two most recent entries: %q", prompt)
	}
	if last := buf.Recent(1)[0]; last.Role != memory.RoleExecutor || last.Content != "ok" {
		t.Errorf("result not appended to buffer: %+v", last)
	}
}

func TestExecutor_EmptyPlan(t *testing.T) {
	exec := agents.NewExecutor(&scriptedBackend{}, memory.NewBuffer(), nil, 0)
	if got := exec.ExecutePlan(context.Background(), nil); len(got) != 0 {
		t.Fatalf("expected no results, got %+v", got)
	}
}

func TestKeywordJudge(t *testing.T) {
	judge := agents.KeywordJudge("error")
	cases := map[string]bool{
		"All good":                  true,
		"Found an ERROR in step 2":  false,
		"minor errors were fixed":   false,
		"":                          true,
		"Checked outputs carefully": true,
	}
	for text, want := range cases {
		if got := judge(text); got != want {
			t.Errorf("judge(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestReviewer_Review(t *testing.T) {
	backend := &scriptedBackend{replies: []func() (string, error){reply("Minor error in step 2")}}
	reviewer := agents.NewReviewer(backend, nil, nil, 0)

	results := []core.ExecutionResult{{Instruction: "fetch", Result: "3 sources"}}
	v, err := reviewer.Review(context.Background(), results)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if v.Passed {
		t.Errorf("review mentioning error should not pass")
	}
	if v.Review != "Minor error in step 2" {
		t.Errorf("unexpected review text %q", v.Review)
	}
	if !strings.Contains(backend.prompts[0], "- fetch: 3 sources") {
		t.Errorf("review prompt missing results: %q", backend.prompts[0])
	}
}

func TestReviewer_CustomJudge(t *testing.T) {
	backend := &scriptedBackend{replies: []func() (string, error){reply("lgtm")}}
	reviewer := agents.NewReviewer(backend, nil, func(string) bool { return false }, 0)

	v, err := reviewer.Review(context.Background(), nil)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if v.Passed {
		t.Errorf("custom judge should decide the verdict")
	}
}

func TestReviewer_BackendError(t *testing.T) {
	boom := errors.New("rate limited")
	reviewer := agents.NewReviewer(llm.Func(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", boom
	}), nil, nil, 0)
	if _, err := reviewer.Review(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
