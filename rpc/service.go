// Package rpc exposes the task pipeline as a gRPC service built on protobuf
// well-known types, so no generated code is needed.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/orchestrator"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nim.pipeline.v1.Tasks"

const (
	submitMethod = "/" + ServiceName + "/Submit"
	getMethod    = "/" + ServiceName + "/Get"
)

// TasksServer is the server API for the Tasks service.
type TasksServer interface {
	// Submit takes a goal and returns {"task_id","status"}.
	Submit(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Get takes a task id and returns the task snapshot.
	Get(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ServiceDesc describes the Tasks service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TasksServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "Get", Handler: getHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nim/pipeline/v1/tasks.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TasksServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TasksServer).Submit(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TasksServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TasksServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Tasks is the part of the orchestrator the service drives.
type Tasks interface {
	Submit(goal string) (string, error)
	Get(id string) (core.Task, bool)
}

type service struct {
	tasks Tasks
}

func (s *service) Submit(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := s.tasks.Submit(in.GetValue())
	switch {
	case errors.Is(err, orchestrator.ErrEmptyGoal):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, orchestrator.ErrClosed):
		return nil, status.Error(codes.Unavailable, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(core.SubmitOutput{TaskID: id, Status: core.StatusQueued})
}

func (s *service) Get(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	task, ok := s.tasks.Get(in.GetValue())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "task %q not found", in.GetValue())
	}
	return toStruct(task)
}

// Server wraps a grpc.Server carrying the Tasks and health services.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer registers the Tasks service over tasks.
func NewServer(tasks Tasks, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logUnary)}, opts...)
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ServiceDesc, &service{tasks: tasks})

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpc: gs, health: hs}
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("[RPC] Listening on %s", ln.Addr())
	return s.grpc.Serve(ln)
}

// Stop marks the service not serving and drains connections.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		log.Printf("[RPC] %s failed after %s: %v", info.FullMethod, time.Since(start), err)
	}
	return resp, err
}

// toStruct converts a JSON-tagged value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode struct: %v", err))
	}
	return out, nil
}

// fromStruct decodes a protobuf Struct into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
