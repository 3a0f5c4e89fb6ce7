package core

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusPlanning  Status = "planning"
	StatusExecuting Status = "executing"
	StatusReviewing Status = "reviewing"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions can happen from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ErrorMarker prefixes the result text of a step whose execution faulted.
const ErrorMarker = "ERROR: "

// Step is a single planned instruction.
type Step struct {
	Instruction string `json:"instruction"`
}

// ExecutionResult pairs a step's instruction with what executing it produced.
type ExecutionResult struct {
	Instruction string `json:"instruction"`
	Result      string `json:"result"`
}

// IsError reports whether the step faulted.
func (r ExecutionResult) IsError() bool {
	return strings.HasPrefix(r.Result, ErrorMarker)
}

// Verdict is the reviewer's judgment over all execution results.
type Verdict struct {
	Passed bool   `json:"passed"`
	Review string `json:"review"`
}

// Result aggregates all stage outputs of a finished task.
type Result struct {
	Plan      []Step            `json:"plan"`
	Execution []ExecutionResult `json:"execution"`
	Review    Verdict           `json:"review"`
}

// Task is the registry's view of one submitted goal.
//
// Snapshots handed out by the orchestrator are never mutated afterwards;
// every state change publishes a new Task value.
type Task struct {
	ID        string            `json:"task_id"`
	Goal      string            `json:"goal"`
	Status    Status            `json:"status"`
	Plan      []Step            `json:"plan,omitempty"`
	Execution []ExecutionResult `json:"execution,omitempty"`
	Review    *Verdict          `json:"review,omitempty"`
	Result    *Result           `json:"result"`
	Related   string            `json:"related,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	out := t
	if t.Plan != nil {
		out.Plan = append([]Step(nil), t.Plan...)
	}
	if t.Execution != nil {
		out.Execution = append([]ExecutionResult(nil), t.Execution...)
	}
	if t.Review != nil {
		v := *t.Review
		out.Review = &v
	}
	if t.Result != nil {
		r := Result{
			Plan:      append([]Step(nil), t.Result.Plan...),
			Execution: append([]ExecutionResult(nil), t.Result.Execution...),
			Review:    t.Result.Review,
		}
		out.Result = &r
	}
	return out
}

// MemoryEntry is one role-tagged line of short-term conversational memory.
type MemoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
