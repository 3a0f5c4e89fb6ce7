package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-pipeline/mcpserver"
	"github.com/becomeliminal/nim-pipeline/rpc"
	"github.com/becomeliminal/nim-pipeline/server"
)

// DefaultGoal is what demo submits when no goal is given.
const DefaultGoal = "Analyze global water scarcity and propose solutions"

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API over HTTP, WebSocket and gRPC",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "HTTP port (overrides config and PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC port, 0 keeps the configured value")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if port, _ := cmd.Flags().GetInt("grpc-port"); port != 0 {
		cfg.Server.GRPCPort = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	httpSrv := server.New(a.orchestrator, server.WithAllowedOrigins(cfg.Server.AllowedOrigins...))
	var grpcSrv *rpc.Server
	if cfg.Server.GRPCPort != 0 {
		grpcSrv = rpc.NewServer(a.orchestrator)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpSrv.ListenAndServe(net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)))
	})
	if grpcSrv != nil {
		g.Go(func() error {
			ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Server.GRPCPort)))
			if err != nil {
				return err
			}
			return grpcSrv.Serve(ln)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("[SERVER] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.Stop()
		}
		err := httpSrv.Shutdown(shutdownCtx)
		a.close(shutdownCtx)
		return err
	})

	log.Printf("[SERVER] POST http://localhost:%d/tasks  GET /tasks/{id}  WS /ws?task_id=", cfg.Server.Port)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve submit_task, get_task and list_tasks as MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				a.close(ctx)
			}()

			s, err := mcpserver.New(a.orchestrator, version)
			if err != nil {
				return err
			}
			return mcpserver.ServeStdio(s)
		},
	}
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo [goal]",
		Short: "Submit one goal, poll until it finishes and print the task",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDemo,
	}
	cmd.Flags().Duration("poll", 500*time.Millisecond, "status poll interval")
	cmd.Flags().Duration("timeout", 2*time.Minute, "give up after this long")
	return cmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	poll, _ := cmd.Flags().GetDuration("poll")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	goal := DefaultGoal
	if len(args) == 1 {
		goal = args[0]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	id, err := a.orchestrator.Submit(goal)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Submitted task %s\n", id)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	last := ""
	for {
		task, _ := a.orchestrator.Get(id)
		if string(task.Status) != last {
			fmt.Fprintf(out, "Status: %s\n", task.Status)
			last = string(task.Status)
		}
		if task.Status.Terminal() {
			data, err := json.MarshalIndent(task, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			if task.Error != "" {
				return fmt.Errorf("task %s failed: %s", id, task.Error)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("task %s still %s: %w", id, task.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}
