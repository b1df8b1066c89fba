package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/semplan/config"
	"github.com/c360studio/semplan/model"
	"github.com/c360studio/semplan/pipeline"
)

func validateConfigCmd(g *globalFlags) *cobra.Command {
	var initUser bool

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and check configuration, the model registry and the stage list",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := g.setup()
			if err != nil {
				return err
			}
			if initUser {
				if err := config.NewLoader(logger).EnsureUserConfig(); err != nil {
					return fmt.Errorf("create user config: %w", err)
				}
			}
			if err := pipeline.ValidateStages(pipeline.DefaultStages()); err != nil {
				return fmt.Errorf("stage list: %w", err)
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			if err := registry.Validate(); err != nil {
				return fmt.Errorf("model registry: %w", err)
			}
			printSummary(cmd.OutOrStdout(), cfg, registry)
			return nil
		},
	}

	cmd.Flags().BoolVar(&initUser, "init", false, "Write ~/.config/semplan/config.yaml with defaults if missing")
	return cmd
}

func printSummary(w io.Writer, cfg *config.Config, registry *model.Registry) {
	fmt.Fprintln(w, "Configuration OK")
	fmt.Fprintf(w, "  extraction:     %s\n", cfg.Pipeline.Extraction)
	fmt.Fprintf(w, "  failure policy: %s\n", cfg.Pipeline.FailurePolicy)
	fmt.Fprintf(w, "  stage timeout:  %s\n", cfg.Pipeline.StageTimeout)
	fmt.Fprintf(w, "  storage:        %s", cfg.Storage.Driver)
	if cfg.Storage.Driver == config.DriverSQLite {
		fmt.Fprintf(w, " (%s)", cfg.Storage.Path)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  server:         %s\n", cfg.Server.Addr)
	if cfg.NATS.URL != "" {
		fmt.Fprintf(w, "  events:         %s on %s\n", cfg.NATS.Subject, cfg.NATS.URL)
	}
	fmt.Fprintln(w, "Stages:")
	for _, s := range pipeline.DefaultStages() {
		fmt.Fprintf(w, "  %-12s -> %s\n", s.Name, registry.ForStage(string(s.Name)))
	}
	fmt.Fprintf(w, "Endpoints: %s\n", strings.Join(registry.ListEndpoints(), ", "))
}
