package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/c360studio/semplan/pipeline"
	"github.com/c360studio/semplan/storage"
)

// PlanTaskTool handles the plan_task MCP tool.
type PlanTaskTool struct {
	deps Deps
}

// NewPlanTaskTool creates a PlanTaskTool.
func NewPlanTaskTool(deps Deps) *PlanTaskTool {
	deps.defaults()
	return &PlanTaskTool{deps: deps}
}

// Definition returns the MCP tool definition for plan_task.
func (t *PlanTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("plan_task",
		mcp.WithDescription(
			"Analyse a task, split it into subtasks, estimate and prioritise them and "+
				"schedule them on working days. Returns the stored plan as JSON.",
		),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("The task to plan, e.g. 来月の引越し準備"),
		),
		mcp.WithString("today",
			mcp.Description("Scheduling reference date as YYYY-MM-DD (default: today)"),
		),
	)
}

// Handle processes the plan_task tool call.
func (t *PlanTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := req.GetString("task", "")
	if strings.TrimSpace(task) == "" {
		return mcp.NewToolResultError("'task' is required"), nil
	}
	if v := req.GetString("today", ""); v != "" {
		today, err := pipeline.ParseToday(v, t.deps.Now().Location())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ctx = pipeline.WithToday(ctx, today)
	}

	ctx, runID := pipeline.NewRunContext(ctx)
	record := storage.NewRunRecord(t.deps.Planner.Run(ctx, task), t.deps.Now())
	record.ID = runID
	if err := t.deps.Store.Save(ctx, record); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save plan: %v", err)), nil
	}
	if err := t.deps.Publisher.PlanCompleted(ctx, record); err != nil {
		t.deps.Logger.Warn("Failed to publish plan completion", "run_id", record.ID, "error", err)
	}
	return recordResult(record)
}

// GetPlanTool handles the get_plan MCP tool.
type GetPlanTool struct {
	store storage.Store
}

// NewGetPlanTool creates a GetPlanTool.
func NewGetPlanTool(store storage.Store) *GetPlanTool {
	return &GetPlanTool{store: store}
}

// Definition returns the MCP tool definition for get_plan.
func (t *GetPlanTool) Definition() mcp.Tool {
	return mcp.NewTool("get_plan",
		mcp.WithDescription("Return a plan previously created by plan_task."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Plan id returned by plan_task"),
		),
	)
}

// Handle processes the get_plan tool call.
func (t *GetPlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	record, err := t.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("plan %q not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load plan: %v", err)), nil
	}
	return recordResult(record)
}

func recordResult(r *storage.RunRecord) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode plan: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
