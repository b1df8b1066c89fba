package prompts

import (
	"strconv"
	"strings"

	"github.com/c360studio/semplan/workflow"
)

// jsonOnly closes every system prompt.
const jsonOnly = "JSON以外の文章、説明、コードブロック外のテキストは一切出力しないでください。"

const unknown = "不明"

var weekdayJA = [...]string{"日", "月", "火", "水", "木", "金", "土"}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

func orLevel(l, def workflow.Level) workflow.Level {
	if !l.IsValid() {
		return def
	}
	return l
}

func joinList(items []string) string {
	return strings.Join(items, ", ")
}

func joinDeps(deps []string) string {
	if len(deps) == 0 {
		return "なし"
	}
	return strings.Join(deps, ", ")
}

func orNoSubtasks(s string) string {
	if s == "" {
		return "(サブタスクなし)\n"
	}
	return s
}

// index maps subtask ids to a rendered number; absent ids render as unknown.
type index map[string]string

func (ix index) lookup(id string) string {
	if v, ok := ix[id]; ok {
		return v
	}
	return unknown
}

func estimateIndex(estimates []workflow.TimeEstimate) index {
	ix := make(index, len(estimates))
	for _, e := range estimates {
		ix[e.SubtaskID] = strconv.Itoa(e.EstimatedMinutes)
	}
	return ix
}

func priorityIndex(priorities []workflow.PriorityAssignment) index {
	ix := make(index, len(priorities))
	for _, p := range priorities {
		ix[p.SubtaskID] = strconv.Itoa(p.Priority)
	}
	return ix
}
