package prompts

import (
	"fmt"

	"github.com/c360studio/semplan/workflow"
)

// DecomposerSystemPrompt returns the system prompt for the decomposer stage.
func DecomposerSystemPrompt() string {
	return `あなたはタスク分解の専門家です。
大きなタスクを、実行可能なサブタスクに分解します。

## 分解のルール
1. 1つのサブタスクは1〜2時間で完了できる大きさ
2. 細かすぎず、大きすぎない粒度
3. サブタスク間の依存関係を明確に
4. id は "subtask_1", "subtask_2" のように連番で付ける
5. dependencies には先に終わらせる必要があるサブタスクの id を列挙する

## 出力形式
必ず以下のJSON形式で出力してください。余計な文章は不要です。

` + "```json" + `
{
    "subtasks": [
        {
            "id": "subtask_1",
            "title": "...",
            "description": "...",
            "dependencies": []
        }
    ],
    "total_subtasks": 1
}
` + "```" + `

` + jsonOnly
}

// SplitRange returns how many subtasks to ask for at the given complexity.
func SplitRange(complexity workflow.Level) string {
	switch complexity {
	case workflow.LevelHigh:
		return "8〜10個"
	case workflow.LevelLow:
		return "3〜5個"
	default:
		return "5〜7個"
	}
}

// DecomposerUserPrompt returns the user prompt for decomposing task. A nil
// analysis renders as unknown with medium urgency and complexity.
func DecomposerUserPrompt(task string, analysis *workflow.Analysis) string {
	a := workflow.Analysis{}
	if analysis != nil {
		a = *analysis
	}
	urgency := orLevel(a.Urgency, workflow.LevelMedium)
	complexity := orLevel(a.Complexity, workflow.LevelMedium)

	return fmt.Sprintf(`以下のタスクを分解してください。

【元のタスク】
%s

【分析結果】
- カテゴリ: %s
- 目的: %s
- 緊急度: %s
- 複雑さ: %s
- 重要要素: %s
- 制約: %s

【指示】
- %sのサブタスクに分解してください
- 各サブタスクは1〜2時間で完了できる大きさに
- 依存関係を明確に記載してください
- JSON形式のみで出力してください
`, task,
		orUnknown(a.Category),
		orUnknown(a.Purpose),
		urgency,
		complexity,
		joinList(a.KeyRequirements),
		joinList(a.Constraints),
		SplitRange(complexity))
}
