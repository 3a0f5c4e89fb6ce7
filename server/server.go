// Package server exposes the task pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/orchestrator"
)

// Tasks is the part of the orchestrator the server drives.
type Tasks interface {
	Submit(goal string) (string, error)
	Get(id string) (core.Task, bool)
	List() []core.Task
	Watch(id string) (core.Task, <-chan struct{}, error)
}

// Server serves the task API.
type Server struct {
	tasks    Tasks
	origins  []string
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	http     *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS and WebSocket origin allow-list.
// "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a server over tasks.
func New(tasks Tasks, opts ...Option) *Server {
	s := &Server{
		tasks:   tasks,
		origins: []string{"*"},
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowOrigin(origin) != ""
		},
	}
	s.routes()
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /tasks", s.handleSubmit)
	s.mux.HandleFunc("GET /tasks", s.handleList)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleGet)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	return s.cors(s.mux)
}

// Serve accepts connections on ln until Shutdown. After Shutdown it
// returns nil without serving.
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("[SERVER] Listening on %s", ln.Addr())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in core.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	id, err := s.tasks.Submit(in.Goal)
	switch {
	case errors.Is(err, orchestrator.ErrEmptyGoal):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	case errors.Is(err, orchestrator.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	case err != nil:
		log.Printf("[SERVER] Submit failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "submit failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, core.SubmitOutput{TaskID: id, Status: core.StatusQueued})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	status := core.Status(r.URL.Query().Get("status"))

	tasks := make([]core.Task, 0, limit)
	for _, t := range s.tasks.List() {
		if status != "" && t.Status != status {
			continue
		}
		tasks = append(tasks, t)
		if len(tasks) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
