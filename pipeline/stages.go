// Package pipeline runs the five planning stages over a RunState.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/workflow"
	"github.com/c360studio/semplan/workflow/prompts"
)

// Env carries per-run settings that prompt builders and decoders need.
type Env struct {
	Extraction llm.ExtractMode
	// Today is the reference date for scheduling.
	Today time.Time
}

// Stage declares one pipeline step: which RunState fields it reads and
// writes, how it builds its prompt and how it decodes the reply.
type Stage struct {
	Name   workflow.Stage
	Reads  []workflow.Field
	Writes []workflow.Field

	System func() string
	Prompt func(st *workflow.RunState, env Env) string
	Decode func(raw string, st *workflow.RunState, env Env) (workflow.Patch, error)
}

// DefaultStages returns the planning stages in execution order.
func DefaultStages() []Stage {
	return []Stage{
		{
			Name:   workflow.StageAnalyzer,
			Reads:  []workflow.Field{workflow.FieldOriginalTask},
			Writes: []workflow.Field{workflow.FieldAnalysis},
			System: prompts.AnalyzerSystemPrompt,
			Prompt: func(st *workflow.RunState, _ Env) string {
				return prompts.AnalyzerUserPrompt(st.OriginalTask)
			},
			Decode: decodeAnalysis,
		},
		{
			Name:   workflow.StageDecomposer,
			Reads:  []workflow.Field{workflow.FieldOriginalTask, workflow.FieldAnalysis},
			Writes: []workflow.Field{workflow.FieldSubtasks},
			System: prompts.DecomposerSystemPrompt,
			Prompt: func(st *workflow.RunState, _ Env) string {
				return prompts.DecomposerUserPrompt(st.OriginalTask, st.Analysis)
			},
			Decode: decodeDecomposition,
		},
		{
			Name:   workflow.StageEstimator,
			Reads:  []workflow.Field{workflow.FieldOriginalTask, workflow.FieldSubtasks},
			Writes: []workflow.Field{workflow.FieldEstimates, workflow.FieldTotalMinutes},
			System: prompts.EstimatorSystemPrompt,
			Prompt: func(st *workflow.RunState, _ Env) string {
				return prompts.EstimatorUserPrompt(st.OriginalTask, st.Subtasks)
			},
			Decode: decodeEstimation,
		},
		{
			Name:   workflow.StagePrioritizer,
			Reads:  []workflow.Field{workflow.FieldOriginalTask, workflow.FieldSubtasks, workflow.FieldEstimates},
			Writes: []workflow.Field{workflow.FieldPriorities},
			System: prompts.PrioritizerSystemPrompt,
			Prompt: func(st *workflow.RunState, _ Env) string {
				return prompts.PrioritizerUserPrompt(st.OriginalTask, st.Subtasks, st.Estimates)
			},
			Decode: decodePrioritization,
		},
		{
			Name: workflow.StageScheduler,
			Reads: []workflow.Field{
				workflow.FieldOriginalTask, workflow.FieldSubtasks,
				workflow.FieldEstimates, workflow.FieldPriorities,
			},
			Writes: []workflow.Field{workflow.FieldSchedule, workflow.FieldTotalDays, workflow.FieldWarnings},
			System: prompts.SchedulerSystemPrompt,
			Prompt: func(st *workflow.RunState, env Env) string {
				return prompts.SchedulerUserPrompt(st.OriginalTask, st.Subtasks, st.Estimates, st.Priorities, env.Today)
			},
			Decode: decodeSchedule,
		},
	}
}

// ValidateStages checks a stage list statically: names are unique, every
// read is original_task or written by an earlier stage, and no two stages
// write the same field.
func ValidateStages(stages []Stage) error {
	var errs []error
	names := make(map[workflow.Stage]bool, len(stages))
	writtenBy := map[workflow.Field]workflow.Stage{}

	for i, s := range stages {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("stage %d: name is required", i))
		case names[s.Name]:
			errs = append(errs, fmt.Errorf("stage %s: declared twice", s.Name))
		}
		names[s.Name] = true

		if s.System == nil || s.Prompt == nil || s.Decode == nil {
			errs = append(errs, fmt.Errorf("stage %s: system, prompt and decode are required", s.Name))
		}

		for _, f := range s.Reads {
			if f == workflow.FieldOriginalTask {
				continue
			}
			if _, ok := writtenBy[f]; !ok {
				errs = append(errs, fmt.Errorf("stage %s: reads %s before any stage writes it", s.Name, f))
			}
		}
		for _, f := range s.Writes {
			if f == workflow.FieldOriginalTask {
				errs = append(errs, fmt.Errorf("stage %s: original_task is read-only", s.Name))
				continue
			}
			if prev, ok := writtenBy[f]; ok {
				errs = append(errs, fmt.Errorf("stage %s: %s is already written by %s", s.Name, f, prev))
				continue
			}
			writtenBy[f] = s.Name
		}
	}
	return errors.Join(errs...)
}

func decodeAnalysis(raw string, _ *workflow.RunState, env Env) (workflow.Patch, error) {
	r, err := workflow.Parse[workflow.AnalysisResponse](raw, env.Extraction)
	if err != nil {
		return workflow.Patch{}, err
	}
	if err := workflow.ValidateAnalysis(&r); err != nil {
		return workflow.Patch{}, err
	}
	a := r.Analysis
	return workflow.Patch{Analysis: &a}, nil
}

func decodeDecomposition(raw string, _ *workflow.RunState, env Env) (workflow.Patch, error) {
	r, err := workflow.Parse[workflow.DecompositionResponse](raw, env.Extraction)
	if err != nil {
		return workflow.Patch{}, err
	}
	issues, err := workflow.ValidateDecomposition(&r)
	if err != nil {
		return workflow.Patch{}, err
	}
	return workflow.Patch{Subtasks: r.Subtasks, Issues: issues}, nil
}

func decodeEstimation(raw string, st *workflow.RunState, env Env) (workflow.Patch, error) {
	r, err := workflow.Parse[workflow.EstimationResponse](raw, env.Extraction)
	if err != nil {
		return workflow.Patch{}, err
	}
	issues, err := workflow.ValidateEstimation(&r, st)
	if err != nil {
		return workflow.Patch{}, err
	}
	total := r.TotalMinutes
	return workflow.Patch{Estimates: r.Estimates, TotalMinutes: &total, Issues: issues}, nil
}

func decodePrioritization(raw string, st *workflow.RunState, env Env) (workflow.Patch, error) {
	r, err := workflow.Parse[workflow.PrioritizationResponse](raw, env.Extraction)
	if err != nil {
		return workflow.Patch{}, err
	}
	issues, err := workflow.ValidatePrioritization(&r, st)
	if err != nil {
		return workflow.Patch{}, err
	}
	return workflow.Patch{Priorities: r.Priorities, Issues: issues}, nil
}

func decodeSchedule(raw string, st *workflow.RunState, env Env) (workflow.Patch, error) {
	r, err := workflow.Parse[workflow.SchedulingResponse](raw, env.Extraction)
	if err != nil {
		return workflow.Patch{}, err
	}
	issues, err := workflow.ValidateSchedule(&r, st, env.Today)
	if err != nil {
		return workflow.Patch{}, err
	}
	days := r.TotalDays
	return workflow.Patch{Schedule: r.Schedule, TotalDays: &days, Warnings: r.Warnings, Issues: issues}, nil
}

// stageNames renders stage names for log lines.
func stageNames(stages []Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s.Name)
	}
	return strings.Join(names, ",")
}
