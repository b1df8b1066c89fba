package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semplan/pipeline"
	"github.com/c360studio/semplan/report"
	"github.com/c360studio/semplan/storage"
)

// exitDegraded is returned by plan --strict when any stage failed.
const exitDegraded = 3

type planOptions struct {
	output string
	today  string
	strict bool
	save   bool
}

func planCmd(g *globalFlags) *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan <task>",
		Short: "Plan a task once and print the result",
		Example: `  semplan plan "来月の引越し準備"
  semplan plan --output json --today 2024-06-07 "週次レポートを作成する"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			logger, cfg, err := g.setup()
			if err != nil {
				return err
			}
			app, err := NewApp(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if opts.save {
				if err := app.OpenPersistence(ctx); err != nil {
					return err
				}
			}
			return runPlan(ctx, app, strings.Join(args, " "), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format (text, json, yaml)")
	cmd.Flags().StringVar(&opts.today, "today", "", "Scheduling reference date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, fmt.Sprintf("Exit with code %d when any stage failed", exitDegraded))
	cmd.Flags().BoolVar(&opts.save, "save", false, "Store the run with the configured storage driver")

	return cmd
}

func (o *planOptions) validate() error {
	switch o.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", o.output)
	}
	if o.today != "" {
		if _, err := pipeline.ParseToday(o.today, time.Local); err != nil {
			return err
		}
	}
	return nil
}

// runPlan runs the pipeline for task and writes the record to w.
func runPlan(ctx context.Context, app *App, task string, opts *planOptions, w io.Writer) error {
	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("task must not be empty")
	}
	if opts.today != "" {
		today, err := pipeline.ParseToday(opts.today, time.Local)
		if err != nil {
			return err
		}
		ctx = pipeline.WithToday(ctx, today)
	}

	ctx, runID := pipeline.NewRunContext(ctx)
	record := storage.NewRunRecord(app.planner.Run(ctx, task), now())
	record.ID = runID
	for _, c := range app.calls.ByTrace(runID) {
		app.logger.Debug("Generation call",
			"stage", c.Stage, "model", c.Model, "duration_ms", c.DurationMs, "retries", c.Retries)
	}
	if opts.save {
		if err := app.Save(ctx, record); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
	}

	if err := writeRecord(w, record, opts.output); err != nil {
		return err
	}
	if opts.strict && record.Status == storage.StatusDegraded {
		return &exitError{code: exitDegraded, msg: fmt.Sprintf("plan degraded: %d stage(s) failed", len(record.Errors))}
	}
	return nil
}

func writeRecord(w io.Writer, r *storage.RunRecord, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		data, err := toYAML(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return report.Text(w, r)
	}
}

// toYAML renders v as block-style YAML with the JSON field names and order.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	clearStyle(&node)
	return yaml.Marshal(&node)
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
