package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/pipeline"
	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

type fakePlanner struct {
	today time.Time
}

func (p *fakePlanner) Run(ctx context.Context, task string) *workflow.RunState {
	p.today, _ = pipeline.TodayFromContext(ctx)
	st := workflow.NewRunState(task)
	for _, s := range workflow.Stages() {
		st.Merge(s, nil, workflow.Patch{})
	}
	return st
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestPlanTaskTool_Definition(t *testing.T) {
	def := NewPlanTaskTool(Deps{}).Definition()
	assert.Equal(t, "plan_task", def.Name)
	assert.Contains(t, def.InputSchema.Required, "task")
	assert.Contains(t, def.InputSchema.Properties, "today")
}

func TestPlanTaskTool_Handle(t *testing.T) {
	ctx := context.Background()
	planner := &fakePlanner{}
	store := storage.NewMemoryStore()
	tool := NewPlanTaskTool(Deps{Planner: planner, Store: store})

	result, err := tool.Handle(ctx, makeReq(map[string]any{"task": "来月の引越し準備", "today": "2024-06-07"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(result))

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(result)), &record))
	assert.Equal(t, "来月の引越し準備", record["original_task"])
	assert.Equal(t, "completed", record["status"])
	assert.Equal(t, "2024-06-07", planner.today.Format("2006-01-02"))

	_, err = store.Get(ctx, record["id"].(string))
	assert.NoError(t, err, "plan is stored")
}

func TestPlanTaskTool_Errors(t *testing.T) {
	tool := NewPlanTaskTool(Deps{Planner: &fakePlanner{}, Store: storage.NewMemoryStore()})

	result, err := tool.Handle(context.Background(), makeReq(map[string]any{"task": " "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "'task' is required")

	result, err = tool.Handle(context.Background(), makeReq(map[string]any{"task": "x", "today": "next week"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "YYYY-MM-DD")
}

func TestGetPlanTool(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	st := workflow.NewRunState("レポート作成")
	r := storage.NewRunRecord(st, time.Now())
	require.NoError(t, store.Save(ctx, r))

	tool := NewGetPlanTool(store)
	assert.Equal(t, "get_plan", tool.Definition().Name)

	result, err := tool.Handle(ctx, makeReq(map[string]any{"id": r.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(result), "レポート作成")

	result, err = tool.Handle(ctx, makeReq(map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "not found")

	result, err = tool.Handle(ctx, makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestNew(t *testing.T) {
	s := New("test", Deps{Planner: &fakePlanner{}, Store: storage.NewMemoryStore()})
	require.NotNil(t, s)
}
