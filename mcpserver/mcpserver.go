// Package mcpserver exposes the task pipeline as Model Context Protocol
// tools so agent hosts can submit goals and poll results over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/tools"
)

// Tasks is the part of the orchestrator the tools drive.
type Tasks interface {
	Submit(goal string) (string, error)
	Get(id string) (core.Task, bool)
	List() []core.Task
}

type SubmitArgs struct {
	Goal string `json:"goal"`
}

type GetArgs struct {
	TaskID string `json:"task_id"`
}

type ListArgs struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
}

// New creates an MCP server with the pipeline tools registered.
func New(tasks Tasks, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer("nim-pipeline", version, server.WithToolCapabilities(false))
	if err := Register(s, tasks); err != nil {
		return nil, err
	}
	return s, nil
}

// Register adds the pipeline tools to s.
func Register(s *server.MCPServer, tasks Tasks) error {
	handlers := map[string]server.ToolHandlerFunc{
		tools.SubmitTask: wrapSubmit(tasks),
		tools.GetTask:    wrapGet(tasks),
		tools.ListTasks:  wrapList(tasks),
	}
	for _, def := range tools.PipelineToolDefinitions() {
		handler, ok := handlers[def.Name]
		if !ok {
			return fmt.Errorf("no handler for tool %s", def.Name)
		}
		schema, err := tools.RawSchema(def.InputSchema)
		if err != nil {
			return fmt.Errorf("schema for %s: %w", def.Name, err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), handler)
	}
	return nil
}

// ServeStdio runs s on stdin/stdout until the host disconnects.
func ServeStdio(s *server.MCPServer) error {
	log.Printf("[MCP] Serving pipeline tools on stdio")
	return server.ServeStdio(s)
}

func wrapSubmit(tasks Tasks) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SubmitArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		id, err := tasks.Submit(args.Goal)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", err)), nil
		}
		return jsonResult(core.SubmitOutput{TaskID: id, Status: core.StatusQueued})
	}
}

func wrapGet(tasks Tasks) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.TaskID == "" {
			return mcp.NewToolResultError("task_id is required"), nil
		}
		task, ok := tasks.Get(args.TaskID)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("task %s not found", args.TaskID)), nil
		}
		return jsonResult(task)
	}
}

func wrapList(tasks Tasks) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		limit := args.Limit
		if limit <= 0 {
			limit = 20
		}
		var out []core.Task
		for _, t := range tasks.List() {
			if args.Status != "" && string(t.Status) != args.Status {
				continue
			}
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
		return jsonResult(map[string]any{"tasks": out})
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
