package rpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/llm"
	"github.com/becomeliminal/nim-pipeline/orchestrator"
	"github.com/becomeliminal/nim-pipeline/rpc"
)

func dial(t *testing.T) (*grpc.ClientConn, *orchestrator.Orchestrator) {
	t.Helper()
	o, err := orchestrator.New(llm.NewMock(llm.MockConfig{Seed: 1}))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := rpc.NewServer(o)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		_ = o.Shutdown(context.Background())
	})
	return conn, o
}

func TestSubmitAndGet(t *testing.T) {
	conn, o := dial(t)
	client := rpc.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ack, err := client.Submit(ctx, "Analyze global water scarcity")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ack.TaskID == "" || ack.Status != core.StatusQueued {
		t.Fatalf("unexpected ack %+v", ack)
	}

	if _, err := o.Wait(ctx, ack.TaskID); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	task, err := client.Get(ctx, ack.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != core.StatusDone || task.Result == nil || len(task.Result.Plan) != 4 {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Review == nil || !task.Review.Passed {
		t.Fatalf("expected passing review, got %+v", task.Review)
	}
}

func TestErrorCodes(t *testing.T) {
	conn, _ := dial(t)
	client := rpc.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Get(ctx, "missing"); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := client.Submit(ctx, "  "); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	conn, _ := dial(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}
