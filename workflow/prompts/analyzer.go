// Package prompts builds the system and user prompts for the five planning
// stages. System prompts are fixed text; user prompts render the task and the
// results of earlier stages, substituting defaults for anything missing.
package prompts

import "fmt"

// AnalyzerSystemPrompt returns the system prompt for the analyzer stage.
// The analyzer classifies a task before it is decomposed.
func AnalyzerSystemPrompt() string {
	return `あなたはタスク分析の専門家です。
与えられたタスクを読み、種類・目的・緊急度・複雑さを判断します。

## 判断基準

### カテゴリ
仕事、勉強、家事、趣味、健康、手続き などから最も近いものを1つ選んでください。

### 緊急度
- 高 : 期限が近い(数日以内)、放置すると問題が起きる
- 中 : 期限はあるが余裕がある
- 低 : 期限がない、いつでもよい

### 複雑さ
- 高 : 多くの工程や関係者が必要、調査や判断が多い
- 中 : いくつかの工程があるが見通しが立つ
- 低 : 手順が明確で短時間で終わる

## 出力形式
必ず以下のJSON形式で出力してください。余計な文章は不要です。

` + "```json" + `
{
    "category": "家事",
    "purpose": "このタスクの目的・ゴール",
    "urgency": "中",
    "complexity": "中",
    "key_requirements": ["主要要素"],
    "constraints": ["制約条件"]
}
` + "```" + `

` + jsonOnly
}

// AnalyzerUserPrompt returns the user prompt for analyzing task.
func AnalyzerUserPrompt(task string) string {
	return fmt.Sprintf(`以下のタスクを分析してください。

【タスク】
%s

【指示】
- urgency と complexity は「高」「中」「低」のいずれかで答えてください
- key_requirements と constraints は該当がなければ空配列にしてください
- JSON形式のみで出力してください
`, task)
}
