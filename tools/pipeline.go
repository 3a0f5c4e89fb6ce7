package tools

import (
	"github.com/becomeliminal/nim-pipeline/core"
)

// Tool names exposed to agent hosts.
const (
	SubmitTask = "submit_task"
	GetTask    = "get_task"
	ListTasks  = "list_tasks"
)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// PipelineToolDefinitions returns the tools for driving the task pipeline.
func PipelineToolDefinitions() []Definition {
	statuses := []string{
		string(core.StatusQueued),
		string(core.StatusPlanning),
		string(core.StatusExecuting),
		string(core.StatusReviewing),
		string(core.StatusDone),
		string(core.StatusFailed),
	}
	return []Definition{
		{
			Name: SubmitTask,
			Description: "Submit a goal to the plan, execute and review pipeline. " +
				"Returns immediately with a task_id; poll get_task for progress.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"goal": StringProperty("The objective to accomplish, in plain language"),
			}, "goal"),
		},
		{
			Name:        GetTask,
			Description: "Get the current state of a submitted task, including its plan, execution results and review once available.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"task_id": StringProperty("The id returned by submit_task"),
			}, "task_id"),
		},
		{
			Name:        ListTasks,
			Description: "List submitted tasks, newest first.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"status": StringEnumProperty("Optional: only tasks in this state", statuses...),
				"limit":  IntegerProperty("Maximum number of tasks to return (default: 20)"),
			}),
		},
	}
}
