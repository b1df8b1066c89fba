// Package main implements a mock LLM server for end-to-end runs of the
// planning pipeline. It serves OpenAI-compatible /v1/chat/completions
// responses from fixture files, routing by the "model" field of the request,
// so the five stages can be exercised offline and deterministically.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -addr :11434
//
// Fixture files are named by model: "mock-fast.json" answers model
// "mock-fast". A ".txt" fixture is returned verbatim and may wrap its JSON in
// prose or a code fence; a ".json" fixture must be valid JSON. Fixtures may
// live in subdirectories.
//
// Sequential fixtures: numbered files ("mock-planner.1.txt",
// "mock-planner.2.json", ...) answer the Nth call to that model in order.
// After they are exhausted the base file is repeated, or the last numbered
// fixture when there is no base file. The decomposer, estimator, prioritizer
// and scheduler all resolve to the planning capability, so one numbered
// sequence scripts a whole run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request for test verification.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	JSONMode  bool          `json:"json_mode"`
	CallIndex int           `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // model name → ordered fixture contents
	latency  time.Duration
	logger   *slog.Logger

	calls atomic.Int64 // total calls served

	mu            sync.Mutex
	modelCalls    map[string]int
	modelRequests map[string][]capturedRequest
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures:      fixtures,
		logger:        logger,
		modelCalls:    make(map[string]int),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	mux.HandleFunc("POST /reset", s.handleReset)
	return mux
}

// nextCall records req and returns its 0-indexed position among calls to model.
func (s *server) nextCall(model string, req chatRequest) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.modelCalls[model]
	s.modelCalls[model] = idx + 1
	s.modelRequests[model] = append(s.modelRequests[model], capturedRequest{
		Model:     model,
		Messages:  req.Messages,
		JSONMode:  req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object",
		CallIndex: idx + 1,
		Timestamp: time.Now().UnixMilli(),
	})
	return idx
}

// resolve finds the fixture sequence for model, trying the exact name and
// then the name without a "mock-" prefix.
func (s *server) resolve(model string) ([]string, bool) {
	if seq, ok := s.fixtures[model]; ok {
		return seq, true
	}
	seq, ok := s.fixtures[strings.TrimPrefix(model, "mock-")]
	return seq, ok
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	addr := flag.String("addr", ":11434", "address to listen on")
	latency := flag.Duration("latency", 0, "delay before each completion (simulates slow backends)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Allow env var override
	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(os.DirFS(*fixtureDir))
	if err != nil {
		logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded fixtures", "models", len(fixtures), "dir", *fixtureDir)
	for _, model := range sortedModels(fixtures) {
		logger.Info("Fixture model", "model", model, "fixtures", len(fixtures[model]))
	}

	s := newServer(fixtures, logger)
	s.latency = *latency

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpServer := &http.Server{Addr: *addr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("Mock LLM server listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	logger := s.logger.With("call", callNum, "model", req.Model)

	seq, ok := s.resolve(req.Model)
	if !ok {
		logger.Warn("No fixture for model")
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	callIndex := s.nextCall(req.Model, req)
	content := seq[min(callIndex, len(seq)-1)]
	logger.Info("Serving fixture", "call_index", callIndex+1, "sequence", len(seq), "messages", len(req.Messages))

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-r.Context().Done():
			return
		}
	}

	var prompt int
	for _, m := range req.Messages {
		prompt += len(m.Content) / 4 // rough estimate
	}
	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     prompt,
			CompletionTokens: len(content) / 4,
			TotalTokens:      prompt + len(content)/4,
		},
	})
}

// handleModels returns the list of available mock models (Ollama-compatible).
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	models := []modelEntry{}
	for _, name := range sortedModels(s.fixtures) {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	writeJSON(w, map[string]any{"object": "list", "data": models})
}

// handleStats returns total_calls and the per-model calls_by_model breakdown.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	callsByModel := make(map[string]int, len(s.modelCalls))
	for model, n := range s.modelCalls {
		callsByModel[model] = n
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured requests.
// Query params:
//   - model: filter by model name (optional, returns all models if omitted)
//   - call: filter by call index, 1-indexed (optional)
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter := 0
	if c := r.URL.Query().Get("call"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 1 {
			http.Error(w, "call must be a positive integer", http.StatusBadRequest)
			return
		}
		callFilter = n
	}

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callFilter == 0 || req.CallIndex == callFilter {
				result[model] = append(result[model], req)
			}
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"requests_by_model": result})
}

// handleReset rewinds every fixture sequence and clears captured requests.
func (s *server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.modelCalls = make(map[string]int)
	s.modelRequests = make(map[string][]capturedRequest)
	s.mu.Unlock()
	s.calls.Store(0)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fixturePattern selects fixture files at any depth.
const fixturePattern = "**/*.{json,txt}"

// numberedFileRe matches names like "mock-planner.1.json" or "mock-planner.2.txt".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(json|txt)$`)

// loadFixtures reads fixture files from fsys and returns a map of
// model→content sequence. For each model, numbered files come first in
// numeric order and the base file is appended as the repeating fallback.
func loadFixtures(fsys fs.FS) (map[string][]string, error) {
	paths, err := doublestar.Glob(fsys, fixturePattern)
	if err != nil {
		return nil, fmt.Errorf("glob fixtures: %w", err)
	}

	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		name := path.Base(p)
		if strings.HasSuffix(name, ".json") && !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON in %s", p)
		}
		content := string(data)

		if m := numberedFileRe.FindStringSubmatch(name); m != nil {
			index, _ := strconv.Atoi(m[2])
			if numberedFiles[m[1]] == nil {
				numberedFiles[m[1]] = make(map[int]string)
			}
			if _, dup := numberedFiles[m[1]][index]; dup {
				return nil, fmt.Errorf("duplicate fixture %s.%d", m[1], index)
			}
			numberedFiles[m[1]][index] = content
			continue
		}

		model := strings.TrimSuffix(strings.TrimSuffix(name, ".json"), ".txt")
		if _, dup := baseFiles[model]; dup {
			return nil, fmt.Errorf("duplicate fixture for model %s", model)
		}
		baseFiles[model] = content
	}

	fixtures := make(map[string][]string)
	for model, numbered := range numberedFiles {
		indices := make([]int, 0, len(numbered))
		for idx := range numbered {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], numbered[idx])
		}
	}
	for model, base := range baseFiles {
		fixtures[model] = append(fixtures[model], base)
	}

	if len(fixtures) == 0 {
		return nil, errors.New("no fixture files found")
	}
	return fixtures, nil
}

func sortedModels(fixtures map[string][]string) []string {
	names := make([]string, 0, len(fixtures))
	for name := range fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
