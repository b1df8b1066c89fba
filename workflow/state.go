package workflow

import (
	"fmt"
)

// Stage names one step of the planning pipeline.
type Stage string

const (
	StageAnalyzer    Stage = "analyzer"
	StageDecomposer  Stage = "decomposer"
	StageEstimator   Stage = "estimator"
	StagePrioritizer Stage = "prioritizer"
	StageScheduler   Stage = "scheduler"
)

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageAnalyzer, StageDecomposer, StageEstimator, StagePrioritizer, StageScheduler}
}

// errorPrefix is prepended to every failure message a stage records.
func (s Stage) errorPrefix() string {
	switch s {
	case StageAnalyzer:
		return "分析エラー"
	case StageDecomposer:
		return "分解エラー"
	case StageEstimator:
		return "見積もりエラー"
	case StagePrioritizer:
		return "優先度エラー"
	case StageScheduler:
		return "スケジューリングエラー"
	default:
		return string(s) + " error"
	}
}

// Field names one slot of RunState. Stages declare the fields they read and
// write in these terms.
type Field string

const (
	FieldOriginalTask Field = "original_task"
	FieldAnalysis     Field = "analysis"
	FieldSubtasks     Field = "subtasks"
	FieldEstimates    Field = "estimates"
	FieldTotalMinutes Field = "total_minutes"
	FieldPriorities   Field = "priorities"
	FieldSchedule     Field = "schedule"
	FieldTotalDays    Field = "total_days"
	FieldWarnings     Field = "warnings"
)

// OutcomeStatus is the terminal status of one stage in a run.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome records how a stage finished.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Kind   ErrorKind     `json:"kind,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// StageError is one recorded stage failure.
type StageError struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewStageError builds the StageError for err, with the stage prefix applied
// to the message.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{
		Stage:   stage,
		Kind:    KindOf(err),
		Message: fmt.Sprintf("%s: %v", stage.errorPrefix(), err),
	}
}

// Issue is a non-fatal observation about a stage result, such as a total that
// did not match the sum of its parts or a task placed on a weekend.
type Issue struct {
	Stage     Stage  `json:"stage"`
	Code      string `json:"code"`
	SubtaskID string `json:"subtask_id,omitempty"`
	Message   string `json:"message"`
}

// Issue codes.
const (
	IssueSubtaskCount    = "subtask_count_mismatch"
	IssueTotalMinutes    = "total_minutes_mismatch"
	IssueMissingEstimate = "missing_estimate"
	IssueMissingPriority = "missing_priority"
	IssueEisenhower      = "eisenhower_mismatch"
	IssueUnscheduled     = "unscheduled"
	IssueWeekend         = "weekend"
	IssueOutsideHours    = "outside_working_hours"
	IssueLunch           = "lunch_overlap"
	IssueDependencyOrder = "dependency_order"
	IssueOverlap         = "overlap"
	IssueDuration        = "duration_mismatch"
	IssuePastDate        = "past_date"
)

// RunState accumulates the results of one pipeline run. A nil field means the
// producing stage has not run or did not succeed.
type RunState struct {
	OriginalTask string               `json:"original_task"`
	Analysis     *Analysis            `json:"analysis"`
	Subtasks     []SubTask            `json:"subtasks"`
	Estimates    []TimeEstimate       `json:"estimates"`
	TotalMinutes *int                 `json:"total_minutes"`
	Priorities   []PriorityAssignment `json:"priorities"`
	Schedule     []ScheduledTask      `json:"schedule"`
	TotalDays    *int                 `json:"total_days"`
	Warnings     []string             `json:"warnings"`

	// Error holds the message of the most recent failure.
	Error    *string           `json:"error,omitempty"`
	Errors   []StageError      `json:"errors,omitempty"`
	Outcomes map[Stage]Outcome `json:"outcomes"`
	Issues   []Issue           `json:"issues,omitempty"`
}

// NewRunState returns an initial state holding only the task text.
func NewRunState(task string) *RunState {
	return &RunState{
		OriginalTask: task,
		Outcomes:     make(map[Stage]Outcome),
	}
}

// Has reports whether f is populated.
func (s *RunState) Has(f Field) bool {
	switch f {
	case FieldOriginalTask:
		return s.OriginalTask != ""
	case FieldAnalysis:
		return s.Analysis != nil
	case FieldSubtasks:
		return s.Subtasks != nil
	case FieldEstimates:
		return s.Estimates != nil
	case FieldTotalMinutes:
		return s.TotalMinutes != nil
	case FieldPriorities:
		return s.Priorities != nil
	case FieldSchedule:
		return s.Schedule != nil
	case FieldTotalDays:
		return s.TotalDays != nil
	case FieldWarnings:
		return s.Warnings != nil
	}
	return false
}

// Patch is the partial update produced by one stage. Only the fields the
// stage declares as writes are applied by Merge.
type Patch struct {
	Analysis     *Analysis
	Subtasks     []SubTask
	Estimates    []TimeEstimate
	TotalMinutes *int
	Priorities   []PriorityAssignment
	Schedule     []ScheduledTask
	TotalDays    *int
	Warnings     []string

	Issues []Issue
	Err    *StageError
}

// Merge applies p for stage. The declared writes are overwritten with the
// patch values, nil included, so a failed stage leaves its fields absent. A
// failure is appended to Errors and also becomes Error.
func (s *RunState) Merge(stage Stage, writes []Field, p Patch) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[Stage]Outcome)
	}
	if p.Err != nil {
		p = Patch{Err: p.Err}
	}

	for _, f := range writes {
		switch f {
		case FieldAnalysis:
			s.Analysis = p.Analysis
		case FieldSubtasks:
			s.Subtasks = p.Subtasks
		case FieldEstimates:
			s.Estimates = p.Estimates
		case FieldTotalMinutes:
			s.TotalMinutes = p.TotalMinutes
		case FieldPriorities:
			s.Priorities = p.Priorities
		case FieldSchedule:
			s.Schedule = p.Schedule
		case FieldTotalDays:
			s.TotalDays = p.TotalDays
		case FieldWarnings:
			s.Warnings = p.Warnings
		}
	}

	if p.Err != nil {
		s.Errors = append(s.Errors, *p.Err)
		msg := p.Err.Message
		s.Error = &msg
		s.Outcomes[stage] = Outcome{Status: OutcomeFailed, Kind: p.Err.Kind, Reason: p.Err.Message}
		return
	}
	s.Issues = append(s.Issues, p.Issues...)
	s.Outcomes[stage] = Outcome{Status: OutcomeSucceeded}
}

// Skip records that stage did not run.
func (s *RunState) Skip(stage Stage, reason string) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[Stage]Outcome)
	}
	s.Outcomes[stage] = Outcome{Status: OutcomeSkipped, Reason: reason}
}

// Degraded reports whether any stage failed or was skipped.
func (s *RunState) Degraded() bool {
	for _, o := range s.Outcomes {
		if o.Status != OutcomeSucceeded {
			return true
		}
	}
	return false
}

// Succeeded reports whether every stage succeeded.
func (s *RunState) Succeeded() bool {
	if len(s.Outcomes) < len(Stages()) {
		return false
	}
	return !s.Degraded()
}

// EstimateFor returns the estimate for a subtask, if any.
func (s *RunState) EstimateFor(id string) (TimeEstimate, bool) {
	for _, e := range s.Estimates {
		if e.SubtaskID == id {
			return e, true
		}
	}
	return TimeEstimate{}, false
}

// PriorityFor returns the priority assignment for a subtask, if any.
func (s *RunState) PriorityFor(id string) (PriorityAssignment, bool) {
	for _, p := range s.Priorities {
		if p.SubtaskID == id {
			return p, true
		}
	}
	return PriorityAssignment{}, false
}
