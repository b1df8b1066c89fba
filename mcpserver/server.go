// Package mcpserver exposes the planning pipeline as MCP tools over stdio.
//
// Each tool follows the same shape:
//   - a struct holding its dependencies, built by a constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() runs the call and returns a result
//
// Failures are returned as tool errors so the client model can read them.
package mcpserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/c360studio/semplan/notify"
	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

// Planner runs the pipeline for one task. *pipeline.Orchestrator satisfies it.
type Planner interface {
	Run(ctx context.Context, task string) *workflow.RunState
}

// Deps are the services the tools use.
type Deps struct {
	Planner   Planner
	Store     storage.Store
	Publisher notify.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

func (d *Deps) defaults() {
	if d.Publisher == nil {
		d.Publisher = notify.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// New builds the MCP server with the plan_task and get_plan tools.
func New(version string, deps Deps) *server.MCPServer {
	deps.defaults()

	s := server.NewMCPServer(
		"semplan",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	plan := NewPlanTaskTool(deps)
	s.AddTool(plan.Definition(), plan.Handle)

	get := NewGetPlanTool(deps.Store)
	s.AddTool(get.Definition(), get.Handle)

	return s
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `semplan turns a free-form task description into an execution plan:
analysis, subtasks with dependencies, time estimates, Eisenhower priorities and a
calendar schedule. Call plan_task with the task text (Japanese or English). The
result is stored; call get_plan with its id to read it again. A plan whose status
is "degraded" is still usable: failed sections are null and the errors list says why.`
