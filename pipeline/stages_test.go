package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/workflow"
)

func TestDefaultStagesAreValid(t *testing.T) {
	stages := DefaultStages()
	require.NoError(t, ValidateStages(stages))

	names := make([]workflow.Stage, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	assert.Equal(t, workflow.Stages(), names)
}

func TestValidateStages(t *testing.T) {
	t.Run("duplicate writes", func(t *testing.T) {
		stages := DefaultStages()
		stages[2].Writes = append(stages[2].Writes, workflow.FieldSubtasks)
		assert.ErrorContains(t, ValidateStages(stages), "subtasks is already written by decomposer")
	})

	t.Run("read-only task", func(t *testing.T) {
		stages := DefaultStages()
		stages[0].Writes = []workflow.Field{workflow.FieldOriginalTask, workflow.FieldAnalysis}
		assert.ErrorContains(t, ValidateStages(stages), "original_task is read-only")
	})

	t.Run("duplicate name and missing funcs", func(t *testing.T) {
		stages := DefaultStages()
		stages[4].Name = workflow.StageAnalyzer
		stages[4].Decode = nil
		err := ValidateStages(stages)
		assert.ErrorContains(t, err, "declared twice")
		assert.ErrorContains(t, err, "decode are required")
	})
}
