package core

import (
	"encoding/json"
	"testing"
)

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusQueued, false},
		{StatusPlanning, false},
		{StatusExecuting, false},
		{StatusReviewing, false},
		{StatusDone, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestExecutionResult_IsError(t *testing.T) {
	if !(ExecutionResult{Result: ErrorMarker + "backend down"}).IsError() {
		t.Fatalf("expected marked result to be an error")
	}
	if (ExecutionResult{Result: "collected 3 sources"}).IsError() {
		t.Fatalf("plain result reported as error")
	}
}

func TestTask_CloneIsDeep(t *testing.T) {
	orig := Task{
		ID:        "t1",
		Goal:      "summarize",
		Status:    StatusDone,
		Plan:      []Step{{Instruction: "a"}},
		Execution: []ExecutionResult{{Instruction: "a", Result: "ok"}},
		Review:    &Verdict{Passed: true, Review: "fine"},
		Result: &Result{
			Plan:      []Step{{Instruction: "a"}},
			Execution: []ExecutionResult{{Instruction: "a", Result: "ok"}},
			Review:    Verdict{Passed: true, Review: "fine"},
		},
	}

	c := orig.Clone()
	c.Plan[0].Instruction = "changed"
	c.Execution[0].Result = "changed"
	c.Review.Passed = false
	c.Result.Plan[0].Instruction = "changed"
	c.Result.Execution[0].Result = "changed"

	if orig.Plan[0].Instruction != "a" || orig.Execution[0].Result != "ok" {
		t.Fatalf("clone shares stage slices with original: %+v", orig)
	}
	if !orig.Review.Passed {
		t.Fatalf("clone shares review with original")
	}
	if orig.Result.Plan[0].Instruction != "a" || orig.Result.Execution[0].Result != "ok" {
		t.Fatalf("clone shares result with original: %+v", orig.Result)
	}
}

func TestTask_CloneKeepsNil(t *testing.T) {
	c := Task{ID: "t1", Status: StatusQueued}.Clone()
	if c.Plan != nil || c.Execution != nil || c.Review != nil || c.Result != nil {
		t.Fatalf("expected nil stage fields, got %+v", c)
	}
}

func TestTask_JSONResultNullUntilDone(t *testing.T) {
	data, err := json.Marshal(Task{ID: "t1", Goal: "g", Status: StatusQueued})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := out["result"]; !ok || v != nil {
		t.Fatalf("expected result: null, got %v", out["result"])
	}
	if out["task_id"] != "t1" || out["status"] != "queued" {
		t.Fatalf("unexpected encoding: %s", data)
	}
}
