package prompts

import (
	"fmt"
	"strings"

	"github.com/c360studio/semplan/workflow"
)

// PrioritizerSystemPrompt returns the system prompt for the prioritizer stage.
// Priorities follow the Eisenhower matrix.
func PrioritizerSystemPrompt() string {
	return `あなたは、タスク優先度決定の専門家です。
サブタスクのリストを分析して、アイゼンハワーマトリクスに基づいて優先度を割り当てます。

## アイゼンハワーマトリクス

優先度は「緊急度」と「重要度」の2軸で判断します：

| 優先度 | 緊急度 | 重要度 | 説明 |
|--------|--------|--------|------|
| 1 | 高 | 高 | 最優先：すぐに着手すべき |
| 2 | 低 | 高 | 高優先：計画的に実行 |
| 3 | 高 | 低 | 中優先：可能なら早めに |
| 4 | 低 | 低 | 低優先：後回しでOK |
| 5 | - | - | 保留：今回は不要 |

## 判断基準

### 緊急度の判断
- 高 : 他のタスクがブロックされる、締め切りが近い(1〜2日以内)
- 低 : 時間的余裕がある、他タスクへの影響が少ない

### 重要度の判断
- 高 : プロジェクト完了の必須要件、基盤となる機能
- 低 : あれば便利だが必須ではない、補助的な機能

urgency と importance は「高」か「低」のどちらかで答えてください。

## 出力形式

必ず以下のJSON形式のみで出力してください：

` + "```json" + `
{
    "priorities": [
        {
            "subtask_id": "サブタスクのID",
            "priority": 1,
            "urgency": "高",
            "importance": "高",
            "reasoning": "優先度を決めた理由"
        }
    ]
}
` + "```" + `

` + jsonOnly
}

// PrioritizerUserPrompt returns the user prompt for prioritizing subtasks.
// Subtasks without an estimate are listed with an unknown duration.
func PrioritizerUserPrompt(task string, subtasks []workflow.SubTask, estimates []workflow.TimeEstimate) string {
	minutes := estimateIndex(estimates)

	var sb strings.Builder
	for _, st := range subtasks {
		fmt.Fprintf(&sb, "- %s: %s\n", st.ID, st.Title)
		fmt.Fprintf(&sb, "  - 見積もり: %s分\n", minutes.lookup(st.ID))
		fmt.Fprintf(&sb, "  - 依存: %s\n", joinDeps(st.Dependencies))
	}

	return fmt.Sprintf(`以下のサブタスクの優先度を決定してください。

## 元のタスク
%s

## サブタスク一覧
%s
【指示】
- 依存関係や見積もり時間も判断材料にしてください
- すべてのサブタスクに優先度を割り当ててください
- JSON形式のみで出力してください
`, task, orNoSubtasks(sb.String()))
}
