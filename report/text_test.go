package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

func movingRecord() *storage.RunRecord {
	st := workflow.NewRunState("来月の引越し準備")
	total, days := 150, 1
	st.Analysis = &workflow.Analysis{
		Category: "家事", Purpose: "引越し", Urgency: workflow.LevelMedium, Complexity: workflow.LevelHigh,
		KeyRequirements: []string{"荷造り", "業者手配"},
	}
	st.Subtasks = []workflow.SubTask{
		{ID: "subtask_1", Title: "荷物の整理", Dependencies: []string{}},
		{ID: "subtask_2", Title: "引越し業者の手配", Dependencies: []string{"subtask_1"}},
	}
	st.Estimates = []workflow.TimeEstimate{
		{SubtaskID: "subtask_1", EstimatedMinutes: 60},
		{SubtaskID: "subtask_2", EstimatedMinutes: 90},
	}
	st.TotalMinutes = &total
	st.Priorities = []workflow.PriorityAssignment{
		{SubtaskID: "subtask_1", Priority: 1, Urgency: workflow.LevelHigh, Importance: workflow.LevelHigh},
	}
	st.Schedule = []workflow.ScheduledTask{
		{SubtaskID: "subtask_2", ScheduledDate: "2024-06-10", ScheduledTime: "10:10", DurationMinutes: 90},
		{SubtaskID: "subtask_1", ScheduledDate: "2024-06-10", ScheduledTime: "09:00", DurationMinutes: 60},
	}
	st.TotalDays = &days
	st.Warnings = []string{"週末は業者が混雑します"}
	return storage.NewRunRecord(st, time.Date(2024, 6, 7, 6, 0, 0, 0, time.UTC))
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, movingRecord()))
	out := buf.String()

	assert.Contains(t, out, "来月の引越し準備  [completed]")
	assert.Contains(t, out, "カテゴリ: 家事")
	assert.Contains(t, out, "主要要件: 荷造り、業者手配")
	assert.Contains(t, out, "サブタスク (2)  合計 150分")
	assert.Contains(t, out, "subtask_1 荷物の整理  60分  P1 (緊急:高 重要:高)")
	assert.Contains(t, out, "依存: subtask_1")
	assert.Contains(t, out, "スケジュール (1日)")
	assert.Contains(t, out, "2024-06-10 (月)")
	assert.Contains(t, out, "! 週末は業者が混雑します")
	assert.NotContains(t, out, "エラー")
	assert.NotContains(t, out, "\x1b[", "no colour when not writing to a terminal")

	first := strings.Index(out, "09:00-10:00  subtask_1 荷物の整理")
	second := strings.Index(out, "10:10-11:40  subtask_2 引越し業者の手配")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second, "schedule is ordered by start time")
}

func TestDependencyOrder(t *testing.T) {
	subtasks := []workflow.SubTask{
		{ID: "subtask_1", Title: "見積もり比較", Dependencies: []string{"subtask_3"}},
		{ID: "subtask_2", Title: "住所変更"},
		{ID: "subtask_3", Title: "業者に連絡", Dependencies: []string{"subtask_2"}},
	}
	ids := func(ss []workflow.SubTask) []string {
		out := make([]string, 0, len(ss))
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"subtask_2", "subtask_3", "subtask_1"}, ids(dependencyOrder(subtasks)))

	cyclic := []workflow.SubTask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	assert.Equal(t, []string{"a", "b"}, ids(dependencyOrder(cyclic)), "invalid graphs keep the given order")

	rec := movingRecord()
	rec.Subtasks[0], rec.Subtasks[1] = rec.Subtasks[1], rec.Subtasks[0]
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, rec))
	out := buf.String()
	assert.Less(t, strings.Index(out, "  subtask_1 荷物の整理  60分"), strings.Index(out, "  subtask_2 引越し業者の手配  90分"))
}

func TestText_Degraded(t *testing.T) {
	st := workflow.NewRunState("レポート作成")
	st.Merge(workflow.StageAnalyzer, []workflow.Field{workflow.FieldAnalysis},
		workflow.Patch{Err: workflow.NewStageError(workflow.StageAnalyzer, &workflow.GenerationServiceError{Err: errors.New("503")})})
	st.Issues = append(st.Issues, workflow.Issue{
		Stage: workflow.StageScheduler, Code: workflow.IssueWeekend, SubtaskID: "subtask_1", Message: "scheduled on a weekend",
	})
	r := storage.NewRunRecord(st, time.Now())

	var buf bytes.Buffer
	require.NoError(t, Text(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "[degraded]")
	assert.NotContains(t, out, "分析\n")
	assert.NotContains(t, out, "サブタスク")
	assert.Contains(t, out, "[scheduler/"+workflow.IssueWeekend+"] subtask_1: scheduled on a weekend")
	assert.Contains(t, out, "[analyzer/generation_service] 分析エラー: ")
}
