// Package report renders run records for terminals.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

var weekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

type styles struct {
	title, header, label, ok, warn, bad lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:  r.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		header: r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		label:  r.NewStyle().Foreground(lipgloss.Color("8")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("3")),
		bad:    r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Text writes a human-readable summary of r to w. Sections whose data is
// absent (for example after a failed stage) are left out. Colour is used
// only when w is a terminal.
func Text(w io.Writer, r *storage.RunRecord) error {
	st := newStyles(w)
	var b strings.Builder

	status := st.ok.Render(string(r.Status))
	if r.Status == storage.StatusDegraded {
		status = st.bad.Render(string(r.Status))
	}
	fmt.Fprintf(&b, "%s  [%s]\n", st.title.Render(r.OriginalTask), status)
	fmt.Fprintf(&b, "%s\n", st.label.Render(fmt.Sprintf("run %s  %s", r.ID, r.CreatedAt.Format("2006-01-02 15:04 MST"))))

	if a := r.Analysis; a != nil {
		fmt.Fprintf(&b, "\n%s\n", st.header.Render("分析"))
		fmt.Fprintf(&b, "  %s %s  %s %s\n", st.label.Render("カテゴリ:"), a.Category, st.label.Render("目的:"), a.Purpose)
		fmt.Fprintf(&b, "  %s %s  %s %s\n", st.label.Render("緊急度:"), a.Urgency, st.label.Render("複雑度:"), a.Complexity)
		if len(a.KeyRequirements) > 0 {
			fmt.Fprintf(&b, "  %s %s\n", st.label.Render("主要要件:"), strings.Join(a.KeyRequirements, "、"))
		}
		if len(a.Constraints) > 0 {
			fmt.Fprintf(&b, "  %s %s\n", st.label.Render("制約:"), strings.Join(a.Constraints, "、"))
		}
	}

	if r.Subtasks != nil {
		heading := fmt.Sprintf("サブタスク (%d)", len(r.Subtasks))
		if r.TotalMinutes != nil {
			heading += fmt.Sprintf("  合計 %d分", *r.TotalMinutes)
		}
		fmt.Fprintf(&b, "\n%s\n", st.header.Render(heading))
		for _, s := range dependencyOrder(r.Subtasks) {
			fmt.Fprintf(&b, "  %s %s", s.ID, s.Title)
			if e, ok := r.EstimateFor(s.ID); ok {
				fmt.Fprintf(&b, "  %d分", e.EstimatedMinutes)
			}
			if p, ok := r.PriorityFor(s.ID); ok {
				fmt.Fprintf(&b, "  P%d (緊急:%s 重要:%s)", p.Priority, p.Urgency, p.Importance)
			}
			if len(s.Dependencies) > 0 {
				fmt.Fprintf(&b, "  %s", st.label.Render("依存: "+strings.Join(s.Dependencies, ", ")))
			}
			b.WriteString("\n")
		}
	}

	if r.Schedule != nil {
		heading := "スケジュール"
		if r.TotalDays != nil {
			heading += fmt.Sprintf(" (%d日)", *r.TotalDays)
		}
		fmt.Fprintf(&b, "\n%s\n", st.header.Render(heading))
		writeSchedule(&b, r.RunState)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.header.Render("警告"))
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  %s %s\n", st.warn.Render("!"), w)
		}
	}

	if len(r.Issues) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.header.Render("指摘"))
		for _, i := range r.Issues {
			ref := ""
			if i.SubtaskID != "" {
				ref = " " + i.SubtaskID
			}
			fmt.Fprintf(&b, "  %s%s: %s\n", st.warn.Render(fmt.Sprintf("[%s/%s]", i.Stage, i.Code)), ref, i.Message)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.header.Render("エラー"))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s %s\n", st.bad.Render(fmt.Sprintf("[%s/%s]", e.Stage, e.Kind)), e.Message)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// dependencyOrder lists subtasks after the subtasks they depend on. Ties
// keep the decomposition order. Subtasks whose dependencies do not form a
// valid graph are returned as given.
func dependencyOrder(subtasks []workflow.SubTask) []workflow.SubTask {
	g, err := workflow.NewDependencyGraph(subtasks)
	if err != nil {
		return subtasks
	}
	byID := make(map[string]workflow.SubTask, len(subtasks))
	for _, s := range subtasks {
		byID[s.ID] = s
	}
	ids := g.Order()
	if len(ids) != len(subtasks) {
		return subtasks
	}
	ordered := make([]workflow.SubTask, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered
}

// writeSchedule groups entries by date and orders each day by start time.
func writeSchedule(b *strings.Builder, st *workflow.RunState) {
	entries := make([]workflow.ScheduledTask, len(st.Schedule))
	copy(entries, st.Schedule)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ScheduledDate != entries[j].ScheduledDate {
			return entries[i].ScheduledDate < entries[j].ScheduledDate
		}
		return entries[i].ScheduledTime < entries[j].ScheduledTime
	})

	titles := make(map[string]string, len(st.Subtasks))
	for _, s := range st.Subtasks {
		titles[s.ID] = s.Title
	}

	day := ""
	for _, e := range entries {
		if e.ScheduledDate != day {
			day = e.ScheduledDate
			fmt.Fprintf(b, "  %s\n", dayLabel(day))
		}
		fmt.Fprintf(b, "    %s  %s %s\n", timeRange(e), e.SubtaskID, titles[e.SubtaskID])
	}
}

func dayLabel(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s (%s)", date, weekdays[d.Weekday()])
}

func timeRange(e workflow.ScheduledTask) string {
	start, err := time.Parse("15:04", e.ScheduledTime)
	if err != nil {
		return e.ScheduledTime
	}
	end := start.Add(time.Duration(e.DurationMinutes) * time.Minute)
	return start.Format("15:04") + "-" + end.Format("15:04")
}
