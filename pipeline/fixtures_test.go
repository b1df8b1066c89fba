package pipeline

import (
	"time"

	"github.com/c360studio/semplan/llm"
)

// friday is the fixed reference date for scheduling in tests.
var friday = time.Date(2024, 6, 7, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return friday }

const (
	analysisReply = `分析結果は以下の通りです。
{"category": "家事", "purpose": "来月の引越しを滞りなく終える", "urgency": "中", "complexity": "中", "key_requirements": ["荷造り", "業者手配"], "constraints": ["来月まで"]}`

	decompositionReply = "```json\n" + `{
  "subtasks": [
    {"id": "subtask_1", "title": "荷物の整理", "description": "不要品を処分して荷物を減らす", "dependencies": []},
    {"id": "subtask_2", "title": "引越し業者の手配", "description": "見積もりを比較して業者を決める", "dependencies": ["subtask_1"]}
  ],
  "total_subtasks": 2
}` + "\n```"

	estimationReply = `{"estimates": [
  {"subtask_id": "subtask_1", "estimated_minutes": 60, "confidence": "中", "reasoning": "部屋数が少ない"},
  {"subtask_id": "subtask_2", "estimated_minutes": 90, "confidence": "低", "reasoning": "業者比較に時間がかかる"}
], "total_minutes": 150}`

	prioritizationReply = `{"priorities": [
  {"subtask_id": "subtask_1", "priority": 3, "urgency": "高", "importance": "低", "reasoning": "先行作業"},
  {"subtask_id": "subtask_2", "priority": 1, "urgency": "高", "importance": "高", "reasoning": "予約が埋まる"}
]}`

	scheduleReply = `{"schedule": [
  {"subtask_id": "subtask_1", "scheduled_date": "2024-06-10", "scheduled_time": "09:00", "duration_minutes": 60},
  {"subtask_id": "subtask_2", "scheduled_date": "2024-06-10", "scheduled_time": "10:10", "duration_minutes": 90}
], "total_days": 1, "warnings": []}`
)

func replies(contents ...string) []*llm.Response {
	out := make([]*llm.Response, len(contents))
	for i, c := range contents {
		out[i] = &llm.Response{Content: c}
	}
	return out
}
