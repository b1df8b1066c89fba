package main

import (
	"github.com/spf13/cobra"

	"github.com/c360studio/semplan/mcpserver"
)

func mcpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the plan_task and get_plan tools over MCP stdio",
		Long: `Runs an MCP server on stdin/stdout. Logs go to stderr.

Example client entry:

  {"command": "semplan", "args": ["mcp"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := g.setup()
			if err != nil {
				return err
			}
			app, err := NewApp(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if err := app.OpenPersistence(ctx); err != nil {
				return err
			}
			if err := app.WatchRegistry(ctx); err != nil {
				return err
			}

			s := mcpserver.New(Version, mcpserver.Deps{
				Planner:   app.planner,
				Store:     app.store,
				Publisher: app.publisher,
				Logger:    logger,
				Now:       now,
			})
			logger.Info("MCP server ready", "transport", "stdio")
			return mcpserver.Serve(s)
		},
	}
}
