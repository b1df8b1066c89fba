// Package main provides the semplan binary entry point.
// Semplan turns a free-form task into an analysed, decomposed, estimated,
// prioritised and scheduled plan using a five-stage generation pipeline.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/semplan/config"

	// Register LLM providers via init()
	_ "github.com/c360studio/semplan/llm/providers"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "semplan"

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.msg != "" {
				fmt.Fprintln(os.Stderr, exit.msg)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Task planning pipeline",
		Long: `Semplan plans a task in five stages:

- analyzer:    category, purpose, urgency and complexity
- decomposer:  subtasks with dependencies
- estimator:   minutes per subtask
- prioritizer: Eisenhower priorities
- scheduler:   working-day calendar slots

A stage that fails leaves its fields null; the rest of the plan is still
produced and the failure is listed in errors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML); default searches semplan.yaml")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(
		planCmd(g),
		serveCmd(g),
		mcpCmd(g),
		validateConfigCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// newLogger builds the process logger. Logs always go to w (stderr) so that
// stdout stays clean for plan output and the MCP stdio transport.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "", "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: l}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// setup configures logging and loads configuration.
func (g *globalFlags) setup() (*slog.Logger, *config.Config, error) {
	logger, err := newLogger(os.Stderr, g.logLevel, g.logFormat)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	var opts []config.LoaderOption
	if g.configPath != "" {
		opts = append(opts, config.WithConfigFile(g.configPath))
	}
	cfg, err := config.NewLoader(logger, opts...).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return logger, cfg, nil
}
