package workflow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_MergeSuccess(t *testing.T) {
	st := NewRunState("来月の引越し準備")
	total := 150

	st.Merge(StageEstimator, []Field{FieldEstimates, FieldTotalMinutes}, Patch{
		Estimates:    []TimeEstimate{{SubtaskID: "subtask_1", EstimatedMinutes: 150}},
		TotalMinutes: &total,
		Analysis:     &Analysis{Category: "ignored"},
		Issues:       []Issue{{Stage: StageEstimator, Code: IssueTotalMinutes}},
	})

	assert.True(t, st.Has(FieldEstimates))
	assert.Equal(t, 150, *st.TotalMinutes)
	assert.False(t, st.Has(FieldAnalysis), "undeclared writes are not applied")
	assert.Len(t, st.Issues, 1)
	assert.Equal(t, OutcomeSucceeded, st.Outcomes[StageEstimator].Status)
	assert.Nil(t, st.Error)
}

func TestRunState_MergeFailureAccumulates(t *testing.T) {
	st := NewRunState("task")

	st.Merge(StageEstimator, []Field{FieldEstimates, FieldTotalMinutes},
		Patch{Err: NewStageError(StageEstimator, &ExtractionError{})})
	st.Merge(StagePrioritizer, []Field{FieldPriorities},
		Patch{Err: NewStageError(StagePrioritizer, &GenerationServiceError{Err: errors.New("timeout")})})

	require.Len(t, st.Errors, 2)
	assert.Equal(t, StageEstimator, st.Errors[0].Stage)
	assert.Equal(t, KindExtraction, st.Errors[0].Kind)
	assert.Contains(t, st.Errors[0].Message, "見積もりエラー: ")

	require.NotNil(t, st.Error)
	assert.Equal(t, st.Errors[1].Message, *st.Error, "error holds the most recent failure")
	assert.Contains(t, *st.Error, "優先度エラー")

	assert.False(t, st.Has(FieldEstimates))
	assert.Equal(t, OutcomeFailed, st.Outcomes[StageEstimator].Status)
	assert.Equal(t, KindGeneration, st.Outcomes[StagePrioritizer].Kind)
	assert.True(t, st.Degraded())
	assert.False(t, st.Succeeded())
}

func TestRunState_FailedPatchClearsWrites(t *testing.T) {
	st := NewRunState("task")
	st.Subtasks = movingSubtasks()

	st.Merge(StageDecomposer, []Field{FieldSubtasks}, Patch{
		Subtasks: movingSubtasks(),
		Err:      NewStageError(StageDecomposer, &SchemaValidationError{Violations: []string{"x"}}),
	})
	assert.Nil(t, st.Subtasks)
}

func TestRunState_SkipAndSucceeded(t *testing.T) {
	st := NewRunState("task")
	for _, s := range Stages() {
		st.Merge(s, nil, Patch{})
	}
	assert.True(t, st.Succeeded())
	assert.False(t, st.Degraded())

	st.Skip(StageScheduler, "fail_fast after estimator")
	assert.True(t, st.Degraded())
	assert.Equal(t, OutcomeSkipped, st.Outcomes[StageScheduler].Status)
}

func TestRunState_JSON(t *testing.T) {
	st := NewRunState("来月の引越し準備")
	data, err := json.Marshal(st)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Nil(t, m["analysis"])
	assert.Contains(t, m, "subtasks")
	assert.NotContains(t, m, "error", "no error key when nothing failed")
}

func TestRunState_Lookups(t *testing.T) {
	st := &RunState{
		Estimates:  []TimeEstimate{{SubtaskID: "subtask_1", EstimatedMinutes: 60}},
		Priorities: []PriorityAssignment{{SubtaskID: "subtask_2", Priority: 1}},
	}
	e, ok := st.EstimateFor("subtask_1")
	assert.True(t, ok)
	assert.Equal(t, 60, e.EstimatedMinutes)
	_, ok = st.EstimateFor("subtask_2")
	assert.False(t, ok)

	p, ok := st.PriorityFor("subtask_2")
	assert.True(t, ok)
	assert.Equal(t, 1, p.Priority)
}

func TestDependencyGraph(t *testing.T) {
	g, err := NewDependencyGraph([]SubTask{
		{ID: "c", Dependencies: []string{"a", "b"}},
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, g.Order())

	_, err = NewDependencyGraph([]SubTask{{ID: "a", Dependencies: []string{"z"}}})
	assert.ErrorContains(t, err, "non-existent subtask z")

	_, err = NewDependencyGraph([]SubTask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	})
	assert.ErrorContains(t, err, "a -> b -> a")
}
