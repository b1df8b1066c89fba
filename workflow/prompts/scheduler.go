package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/semplan/workflow"
)

// SchedulerSystemPrompt returns the system prompt for the scheduler stage.
func SchedulerSystemPrompt() string {
	return `あなたはスケジュールの専門家です。
サブタスクリストを分析して、最適な実行スケジュールを作成します。

## スケジューリングルール

1. **依存関係の尊重**
    - タスクAがタスクBに依存している場合、Bを先に配置

2. **優先度の反映**
    - 優先度1(最優先) → 早い日時に配置
    - 優先度5(保留) → 後回しまたはスキップ

3. **作業時間の反映**
    - 1日の作業時間: 9:00 〜 17:00 (8時間)
    - 昼休憩: 12:00 〜 13:00
    - タスク間の休憩: 10分

4. **日付ルール**
    - 開始日: 指定がなければ翌営業日
    - 土日祝は除外

scheduled_date は YYYY-MM-DD、scheduled_time は HH:MM (24時間表記) で出力してください。

## 出力形式
必ず以下のJSON形式のみで出力してください：

` + "```json" + `
{
    "schedule": [
        {
            "subtask_id": "subtask_1",
            "scheduled_date": "2026-01-26",
            "scheduled_time": "09:00",
            "duration_minutes": 60
        }
    ],
    "total_days": 3,
    "warnings": ["タスクXは締め切りに間に合わない可能性があります"]
}
` + "```" + `

` + jsonOnly
}

// SchedulerUserPrompt returns the user prompt for scheduling subtasks. today
// is the reference date the next business day is counted from.
func SchedulerUserPrompt(task string, subtasks []workflow.SubTask, estimates []workflow.TimeEstimate, priorities []workflow.PriorityAssignment, today time.Time) string {
	minutes := estimateIndex(estimates)
	ranks := priorityIndex(priorities)

	var sb strings.Builder
	for _, st := range subtasks {
		fmt.Fprintf(&sb, "- %s: %s\n", st.ID, st.Title)
		fmt.Fprintf(&sb, "  - 見積もり: %s分\n", minutes.lookup(st.ID))
		fmt.Fprintf(&sb, "  - 優先度: %s\n", ranks.lookup(st.ID))
		fmt.Fprintf(&sb, "  - 依存: %s\n", joinDeps(st.Dependencies))
	}

	return fmt.Sprintf(`以下のサブタスクのスケジュールを作成してください。

## 元のタスク
%s

## 今日の日付
%s (%s)

## サブタスク一覧
%s
【指示】
- 依存関係を考慮して順序を決定してください
- 優先度の高いタスクを早い時間帯に配置してください
- duration_minutes は見積もり時間に合わせてください
- JSON形式のみで出力してください
`, task, today.Format("2006-01-02"), weekdayJA[today.Weekday()], orNoSubtasks(sb.String()))
}
