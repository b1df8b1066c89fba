package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/model"
	"github.com/c360studio/semplan/pipeline"
	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

type fakePlanner struct {
	tasks    []string
	todays   []time.Time
	traces   []string
	degraded bool
}

func (p *fakePlanner) Run(ctx context.Context, task string) *workflow.RunState {
	p.tasks = append(p.tasks, task)
	p.traces = append(p.traces, llm.GetTraceContext(ctx).TraceID)
	if today, ok := pipeline.TodayFromContext(ctx); ok {
		p.todays = append(p.todays, today)
	}
	st := workflow.NewRunState(task)
	for _, s := range workflow.Stages() {
		st.Merge(s, nil, workflow.Patch{})
	}
	if p.degraded {
		st.Merge(workflow.StageScheduler, []workflow.Field{workflow.FieldSchedule},
			workflow.Patch{Err: workflow.NewStageError(workflow.StageScheduler, &workflow.ExtractionError{})})
	}
	return st
}

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) PlanCompleted(_ context.Context, r *storage.RunRecord) error {
	p.ids = append(p.ids, r.ID)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type failingStore struct{ storage.Store }

func (failingStore) Save(context.Context, *storage.RunRecord) error { return errors.New("disk full") }

// steppingClock returns a clock that advances one minute per call.
func steppingClock() func() time.Time {
	t := time.Date(2024, 6, 7, 6, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newTestServer(t *testing.T, planner Planner, opts ...Option) (*httptest.Server, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	opts = append([]Option{WithClock(steppingClock())}, opts...)
	srv := httptest.NewServer(NewServer(planner, store, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func postTask(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/tasks", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRoot(t *testing.T) {
	srv, _ := newTestServer(t, &fakePlanner{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"message": "Hello", "status": "ok"}, decode[map[string]string](t, resp))

	resp, err = http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateTask(t *testing.T) {
	planner := &fakePlanner{}
	pub := &recordingPublisher{}
	srv, store := newTestServer(t, planner, WithPublisher(pub))

	resp := postTask(t, srv, `{"task": "来月の引越し準備"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decode[map[string]any](t, resp)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "来月の引越し準備", body["original_task"])
	assert.Equal(t, "completed", body["status"])
	assert.Contains(t, body, "analysis")
	assert.Contains(t, body, "created_at")

	assert.Equal(t, []string{"来月の引越し準備"}, planner.tasks)
	assert.Equal(t, []string{id}, pub.ids)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, stored.Status)
}

func TestCreateTask_Today(t *testing.T) {
	planner := &fakePlanner{}
	srv, _ := newTestServer(t, planner)

	resp := postTask(t, srv, `{"task": "x", "today": "2024-07-01"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, planner.todays, 1)
	assert.Equal(t, "2024-07-01", planner.todays[0].Format("2006-01-02"))

	postTask(t, srv, `{"task": "y"}`)
	assert.Len(t, planner.todays, 1, "no override without today")
}

func TestCreateTask_DegradedStillSucceeds(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	srv, _ := newTestServer(t, &fakePlanner{degraded: true}, WithPublisher(pub))

	resp := postTask(t, srv, `{"task": "レポート作成"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["error"], "スケジューリングエラー")
	assert.Len(t, pub.ids, 1)
}

func TestCreateTask_BadRequests(t *testing.T) {
	planner := &fakePlanner{}
	handler := NewServer(planner, storage.NewMemoryStore()).Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty task", `{"task": "   "}`, http.StatusBadRequest},
		{"missing task", `{}`, http.StatusBadRequest},
		{"invalid json", `{"task": `, http.StatusBadRequest},
		{"invalid today", `{"task": "x", "today": "tomorrow"}`, http.StatusBadRequest},
		{"too large", `{"task": "` + strings.Repeat("a", maxRequestBodySize+1) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Empty(t, planner.tasks, "planner never runs for rejected requests")
}

func TestCreateTask_SaveFailure(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakePlanner{}, failingStore{storage.NewMemoryStore()}).Handler())
	defer srv.Close()

	resp := postTask(t, srv, `{"task": "x"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestTasks_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakePlanner{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/tasks", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGetTask(t *testing.T) {
	srv, _ := newTestServer(t, &fakePlanner{})

	created := decode[map[string]any](t, postTask(t, srv, `{"task": "a"}`))

	resp, err := http.Get(srv.URL + "/api/tasks/" + created["id"].(string))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, created["id"], got["id"])
	assert.Equal(t, "a", got["original_task"])

	resp, err = http.Get(srv.URL + "/api/tasks/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTasks(t *testing.T) {
	srv, _ := newTestServer(t, &fakePlanner{})

	resp, err := http.Get(srv.URL + "/api/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]map[string]any](t, resp))

	var ids []string
	for _, task := range []string{"first", "second", "first"} {
		body := decode[map[string]any](t, postTask(t, srv, `{"task": "`+task+`"}`))
		ids = append(ids, body["id"].(string))
	}

	resp, err = http.Get(srv.URL + "/api/tasks?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	list := decode[[]map[string]any](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0]["id"], "newest first")
	assert.Equal(t, ids[1], list[1]["id"])

	resp, err = http.Get(srv.URL + "/api/tasks?task=" + "%20first%20")
	require.NoError(t, err)
	defer resp.Body.Close()
	list = decode[[]map[string]any](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0]["id"])
	assert.Equal(t, ids[0], list[1]["id"])

	for _, bad := range []string{"0", "101", "ten"} {
		resp, err = http.Get(srv.URL + "/api/tasks?limit=" + bad)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", bad)
	}
}

func TestHealth(t *testing.T) {
	reg := model.NewDefaultRegistry()
	for i := 0; i < 3; i++ {
		reg.MarkEndpointFailure("gemini-flash")
	}
	srv, _ := newTestServer(t, &fakePlanner{}, WithRegistry(reg))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	require.Contains(t, health.Endpoints, "gemini-flash")
	assert.True(t, health.Endpoints["gemini-flash"].CircuitOpen)
	assert.False(t, health.Endpoints["gemini-flash"].Available)
	assert.NotContains(t, health.Endpoints, "qwen", "endpoints never called are omitted")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "semplan_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv, _ := newTestServer(t, &fakePlanner{}, WithGatherer(reg))
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "semplan_test_total 1")
}

func TestCORS(t *testing.T) {
	t.Run("wildcard reflects origin", func(t *testing.T) {
		srv, _ := newTestServer(t, &fakePlanner{})

		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/tasks", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
	})

	t.Run("restricted origins", func(t *testing.T) {
		srv, _ := newTestServer(t, &fakePlanner{}, WithCORSOrigins([]string{" https://app.example.com/ "}))

		for origin, allowed := range map[string]bool{
			"https://app.example.com":  true,
			"https://evil.example.com": false,
		} {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", origin)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			if allowed {
				assert.Equal(t, origin, resp.Header.Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		}
	})
}

func TestOpenAPI(t *testing.T) {
	doc, err := OpenAPI()
	require.NoError(t, err)
	assert.Equal(t, "Semplan API", doc.Info.Title)

	for _, path := range []string{"/", "/health", "/api/tasks", "/api/tasks/{id}", "/api/tasks/{id}/calls", "/metrics", "/openapi.json"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	tasks := doc.Paths.Find("/api/tasks")
	assert.NotNil(t, tasks.Post)
	assert.NotNil(t, tasks.Get)
	assert.Contains(t, doc.Components.Schemas, "TaskResponse")

	srv, _ := newTestServer(t, &fakePlanner{})
	resp, err := http.Get(srv.URL + "/openapi.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "3.0.3", body["openapi"])
}

func TestCreateTask_IDIsTraceID(t *testing.T) {
	planner := &fakePlanner{}
	srv, _ := newTestServer(t, planner)

	body := decode[map[string]any](t, postTask(t, srv, `{"task": "a"}`))
	require.Len(t, planner.traces, 1)
	assert.NotEmpty(t, planner.traces[0])
	assert.Equal(t, planner.traces[0], body["id"])
}

func TestGetTaskCalls(t *testing.T) {
	calls := llm.NewCallLog(0)
	srv, _ := newTestServer(t, &fakePlanner{}, WithCallLog(calls))

	created := decode[map[string]any](t, postTask(t, srv, `{"task": "a"}`))
	id := created["id"].(string)
	ctx := context.Background()
	require.NoError(t, calls.Record(ctx, &llm.CallRecord{RequestID: "r1", TraceID: id, Stage: "analyzer", Model: "mock-fast"}))
	require.NoError(t, calls.Record(ctx, &llm.CallRecord{RequestID: "r2", TraceID: "other-run", Stage: "analyzer"}))

	resp, err := http.Get(srv.URL + "/api/tasks/" + id + "/calls")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[[]map[string]any](t, resp)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0]["request_id"])
	assert.Equal(t, "mock-fast", got[0]["model"])

	resp, err = http.Get(srv.URL + "/api/tasks/does-not-exist/calls")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTaskCalls_NoLog(t *testing.T) {
	srv, _ := newTestServer(t, &fakePlanner{})
	created := decode[map[string]any](t, postTask(t, srv, `{"task": "a"}`))

	resp, err := http.Get(srv.URL + "/api/tasks/" + created["id"].(string) + "/calls")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
