package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/llm"
	"github.com/becomeliminal/nim-pipeline/orchestrator"
	"github.com/becomeliminal/nim-pipeline/tools"
)

func newTasks(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New(llm.NewMock(llm.MockConfig{Seed: 1}))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })
	return o
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestNew_RegistersTools(t *testing.T) {
	if _, err := New(newTasks(t), "test"); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestSubmitThenGet(t *testing.T) {
	o := newTasks(t)
	ctx := context.Background()

	res, err := wrapSubmit(o)(ctx, call(tools.SubmitTask, map[string]any{"goal": "Analyze water scarcity"}))
	if err != nil || res.IsError {
		t.Fatalf("submit_task failed: %v %s", err, text(t, res))
	}
	var ack core.SubmitOutput
	if err := json.Unmarshal([]byte(text(t, res)), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != core.StatusQueued || ack.TaskID == "" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := o.Wait(waitCtx, ack.TaskID); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	res, err = wrapGet(o)(ctx, call(tools.GetTask, map[string]any{"task_id": ack.TaskID}))
	if err != nil || res.IsError {
		t.Fatalf("get_task failed: %v", err)
	}
	var task core.Task
	if err := json.Unmarshal([]byte(text(t, res)), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Status != core.StatusDone {
		t.Fatalf("expected done, got %s", task.Status)
	}
}

func TestToolErrors(t *testing.T) {
	o := newTasks(t)
	ctx := context.Background()

	res, _ := wrapSubmit(o)(ctx, call(tools.SubmitTask, map[string]any{"goal": ""}))
	if !res.IsError || !strings.Contains(text(t, res), "goal") {
		t.Fatalf("expected empty goal error, got %q", text(t, res))
	}

	res, _ = wrapGet(o)(ctx, call(tools.GetTask, map[string]any{"task_id": "missing"}))
	if !res.IsError || !strings.Contains(text(t, res), "not found") {
		t.Fatalf("expected not found error, got %q", text(t, res))
	}

	res, _ = wrapGet(o)(ctx, call(tools.GetTask, map[string]any{}))
	if !res.IsError {
		t.Fatalf("expected missing task_id error")
	}
}

func TestListTasks(t *testing.T) {
	o := newTasks(t)
	for i := 0; i < 3; i++ {
		if _, err := o.Submit("goal"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	res, err := wrapList(o)(context.Background(), call(tools.ListTasks, map[string]any{"limit": 2}))
	if err != nil || res.IsError {
		t.Fatalf("list_tasks failed: %v", err)
	}
	var body struct {
		Tasks []core.Task `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(body.Tasks))
	}
}
