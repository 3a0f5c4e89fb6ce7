package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/becomeliminal/nim-pipeline/core"
)

// Client calls the Tasks service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Submit sends a goal and returns the acknowledgment.
func (c *Client) Submit(ctx context.Context, goal string, opts ...grpc.CallOption) (core.SubmitOutput, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, submitMethod, wrapperspb.String(goal), out, opts...); err != nil {
		return core.SubmitOutput{}, err
	}
	var ack core.SubmitOutput
	if err := fromStruct(out, &ack); err != nil {
		return core.SubmitOutput{}, err
	}
	return ack, nil
}

// Get fetches a task snapshot.
func (c *Client) Get(ctx context.Context, id string, opts ...grpc.CallOption) (core.Task, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getMethod, wrapperspb.String(id), out, opts...); err != nil {
		return core.Task{}, err
	}
	var task core.Task
	if err := fromStruct(out, &task); err != nil {
		return core.Task{}, err
	}
	return task, nil
}
