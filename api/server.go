// Package api serves the planning pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/model"
	"github.com/c360studio/semplan/notify"
	"github.com/c360studio/semplan/pipeline"
	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// List limits for GET /api/tasks.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Planner runs the pipeline for one task. *pipeline.Orchestrator satisfies it.
type Planner interface {
	Run(ctx context.Context, task string) *workflow.RunState
}

// CallLookup returns the generation calls made under a run id.
// *llm.CallLog satisfies it.
type CallLookup interface {
	ByTrace(traceID string) []*llm.CallRecord
}

// Server exposes the planner and stored runs.
type Server struct {
	planner   Planner
	store     storage.Store
	publisher notify.Publisher
	calls     CallLookup
	registry  *model.Registry
	gatherer  prometheus.Gatherer
	origins   []string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher announces each completed run.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithCallLog serves the generation calls of each run on
// /api/tasks/{id}/calls.
func WithCallLog(c CallLookup) Option {
	return func(s *Server) { s.calls = c }
}

// WithRegistry reports endpoint health on /health.
func WithRegistry(r *model.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCORSOrigins sets the allowed origins. "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = normalizeOrigins(origins) }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer returns a Server that plans with planner and persists to store.
func NewServer(planner Planner, store storage.Store, opts ...Option) *Server {
	s := &Server{
		planner:   planner,
		store:     store,
		publisher: notify.NopPublisher{},
		gatherer:  prometheus.DefaultGatherer,
		origins:   []string{"*"},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterHTTPHandlers(mux)
	return cors(s.origins)(mux)
}

// RegisterHTTPHandlers registers every route on mux:
//
//	GET  /
//	GET  /health
//	POST /api/tasks
//	GET  /api/tasks
//	GET  /api/tasks/{id}
//	GET  /api/tasks/{id}/calls
//	GET  /metrics
//	GET  /openapi.json
func (s *Server) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("/api/tasks/{id}/calls", s.handleGetCalls)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/openapi.json", s.handleOpenAPI)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello", "status": "ok"})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                           `json:"status"`
	Endpoints map[string]*model.EndpointHealth `json:"endpoints,omitempty"`
}

// handleHealth reports liveness and, with a registry, per-endpoint circuit
// state. Endpoints that have never been called are omitted.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := HealthResponse{Status: "ok"}
	if s.registry != nil {
		for _, name := range s.registry.ListEndpoints() {
			h := s.registry.GetEndpointHealth(name)
			if h == nil {
				continue
			}
			if resp.Endpoints == nil {
				resp.Endpoints = make(map[string]*model.EndpointHealth)
			}
			h.Available = s.registry.IsEndpointAvailable(name)
			resp.Endpoints[name] = h
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Task string `json:"task"`
	// Today optionally overrides the scheduling reference date (YYYY-MM-DD).
	Today string `json:"today,omitempty"`
}

// handleCreateTask runs the pipeline synchronously. Degraded runs are still
// stored and returned with 200; only transport and storage problems fail.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.Today != "" {
		today, err := pipeline.ParseToday(req.Today, s.now().Location())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx = pipeline.WithToday(ctx, today)
	}

	ctx, runID := pipeline.NewRunContext(ctx)
	record := storage.NewRunRecord(s.planner.Run(ctx, req.Task), s.now())
	record.ID = runID

	if err := s.store.Save(r.Context(), record); err != nil {
		s.logger.Error("Failed to save run", "run_id", record.ID, "error", err)
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}
	if err := s.publisher.PlanCompleted(r.Context(), record); err != nil {
		s.logger.Warn("Failed to publish plan completion", "run_id", record.ID, "error", err)
	}

	s.logger.Info("Task planned", "run_id", record.ID, "status", record.Status)
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{Limit: defaultListLimit}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	if task := r.URL.Query().Get("task"); task != "" {
		opts.Fingerprint = storage.Fingerprint(task)
	}

	records, err := s.store.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*storage.RunRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	record, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to load run", "run_id", r.PathValue("id"), "error", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetCalls lists the generation calls of a stored run. Calls are kept
// in memory only, so runs from before a restart return an empty list.
func (s *Server) handleGetCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to load run", "run_id", id, "error", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	calls := []*llm.CallRecord{}
	if s.calls != nil {
		if found := s.calls.ByTrace(id); found != nil {
			calls = found
		}
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc, err := OpenAPI()
	if err != nil {
		s.logger.Error("Failed to load OpenAPI document", "error", err)
		http.Error(w, "OpenAPI document unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Response is already partially written on error; nothing to report.
	_ = json.NewEncoder(w).Encode(v)
}
