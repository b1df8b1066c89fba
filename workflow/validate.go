package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	workStart  = 9 * 60
	workEnd    = 17 * 60
	lunchStart = 12 * 60
	lunchEnd   = 13 * 60
)

// EisenhowerPriority returns the priority the Eisenhower table assigns to an
// urgency/importance pair, or 0 when either value is not 高 or 低.
// Priority 5 (hold) is a deferral the table never derives on its own.
func EisenhowerPriority(urgency, importance Level) int {
	switch {
	case urgency == LevelHigh && importance == LevelHigh:
		return 1
	case urgency == LevelLow && importance == LevelHigh:
		return 2
	case urgency == LevelHigh && importance == LevelLow:
		return 3
	case urgency == LevelLow && importance == LevelLow:
		return 4
	}
	return 0
}

// ValidateAnalysis checks enum membership and fills absent lists.
func ValidateAnalysis(r *AnalysisResponse) error {
	var v violations
	checkLevel(&v, "urgency", r.Urgency)
	checkLevel(&v, "complexity", r.Complexity)
	if strings.TrimSpace(r.Category) == "" {
		v.add("category: must not be empty")
	}
	if r.KeyRequirements == nil {
		r.KeyRequirements = []string{}
	}
	if r.Constraints == nil {
		r.Constraints = []string{}
	}
	return v.err()
}

// ValidateDecomposition checks subtask ids, dependency references and
// acyclicity. A total_subtasks that disagrees with the list is an Issue.
func ValidateDecomposition(r *DecompositionResponse) ([]Issue, error) {
	var v violations
	if len(r.Subtasks) == 0 {
		v.add("subtasks: at least one subtask is required")
	}

	seen := make(map[string]bool, len(r.Subtasks))
	for i := range r.Subtasks {
		st := &r.Subtasks[i]
		p := fmt.Sprintf("subtasks[%d]", i)
		switch {
		case strings.TrimSpace(st.ID) == "":
			v.add("%s.id: must not be empty", p)
		case seen[st.ID]:
			v.add("%s.id: duplicate subtask id %q", p, st.ID)
		}
		seen[st.ID] = true
		if strings.TrimSpace(st.Title) == "" {
			v.add("%s.title: must not be empty", p)
		}
		if st.Dependencies == nil {
			st.Dependencies = []string{}
		}
	}

	for i, st := range r.Subtasks {
		for _, dep := range st.Dependencies {
			switch {
			case dep == st.ID:
				v.add("subtasks[%d].dependencies: %s depends on itself", i, st.ID)
			case !seen[dep]:
				v.add("subtasks[%d].dependencies: unknown subtask %q", i, dep)
			}
		}
	}

	if len(v) == 0 {
		if _, err := NewDependencyGraph(r.Subtasks); err != nil {
			v.add("subtasks.dependencies: %v", err)
		}
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var issues []Issue
	if r.TotalSubtasks != len(r.Subtasks) {
		issues = append(issues, Issue{
			Stage:   StageDecomposer,
			Code:    IssueSubtaskCount,
			Message: fmt.Sprintf("total_subtasks is %d but %d subtasks were returned", r.TotalSubtasks, len(r.Subtasks)),
		})
	}
	return issues, nil
}

// ValidateEstimation checks estimates against the subtasks in st. A
// total_minutes that differs from the sum is corrected to the sum and
// reported as an Issue.
func ValidateEstimation(r *EstimationResponse, st *RunState) ([]Issue, error) {
	if st == nil {
		st = &RunState{}
	}
	var v violations
	known := subtaskIDs(st)
	seen := make(map[string]bool, len(r.Estimates))
	sum := 0

	for i, e := range r.Estimates {
		p := fmt.Sprintf("estimates[%d]", i)
		checkSubtaskRef(&v, p, e.SubtaskID, known, seen)
		if e.EstimatedMinutes <= 0 {
			v.add("%s.estimated_minutes: must be greater than 0 (got %d)", p, e.EstimatedMinutes)
		}
		checkLevel(&v, p+".confidence", e.Confidence)
		sum += e.EstimatedMinutes
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var issues []Issue
	if r.TotalMinutes != sum {
		issues = append(issues, Issue{
			Stage:   StageEstimator,
			Code:    IssueTotalMinutes,
			Message: fmt.Sprintf("total_minutes was %d, corrected to the sum %d", r.TotalMinutes, sum),
		})
		r.TotalMinutes = sum
	}
	for _, id := range missing(st, seen) {
		issues = append(issues, Issue{
			Stage:     StageEstimator,
			Code:      IssueMissingEstimate,
			SubtaskID: id,
			Message:   fmt.Sprintf("no estimate for %s", id),
		})
	}
	return issues, nil
}

// ValidatePrioritization checks the priority range and the binary
// urgency/importance axes. Disagreement with the Eisenhower table is an Issue.
func ValidatePrioritization(r *PrioritizationResponse, st *RunState) ([]Issue, error) {
	if st == nil {
		st = &RunState{}
	}
	var v violations
	known := subtaskIDs(st)
	seen := make(map[string]bool, len(r.Priorities))

	for i, pa := range r.Priorities {
		p := fmt.Sprintf("priorities[%d]", i)
		checkSubtaskRef(&v, p, pa.SubtaskID, known, seen)
		if pa.Priority < 1 || pa.Priority > 5 {
			v.add("%s.priority: must be between 1 and 5 (got %d)", p, pa.Priority)
		}
		if !pa.Urgency.Binary() {
			v.add("%s.urgency: must be 高 or 低 (got %q)", p, pa.Urgency)
		}
		if !pa.Importance.Binary() {
			v.add("%s.importance: must be 高 or 低 (got %q)", p, pa.Importance)
		}
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var issues []Issue
	for _, pa := range r.Priorities {
		want := EisenhowerPriority(pa.Urgency, pa.Importance)
		if pa.Priority != 5 && pa.Priority != want {
			issues = append(issues, Issue{
				Stage:     StagePrioritizer,
				Code:      IssueEisenhower,
				SubtaskID: pa.SubtaskID,
				Message: fmt.Sprintf("priority %d does not match urgency %s / importance %s (expected %d)",
					pa.Priority, pa.Urgency, pa.Importance, want),
			})
		}
	}
	for _, id := range missing(st, seen) {
		issues = append(issues, Issue{
			Stage:     StagePrioritizer,
			Code:      IssueMissingPriority,
			SubtaskID: id,
			Message:   fmt.Sprintf("no priority for %s", id),
		})
	}
	return issues, nil
}

// slot is a parsed schedule entry.
type slot struct {
	id    string
	date  time.Time
	start int // minutes after midnight
	end   int
}

func (s slot) startAt() time.Time { return s.date.Add(time.Duration(s.start) * time.Minute) }
func (s slot) endAt() time.Time   { return s.date.Add(time.Duration(s.end) * time.Minute) }

// ValidateSchedule checks date and time formats, durations and references.
// Scheduling rule violations (weekends, working hours, lunch, dependency
// order, overlaps, durations that differ from the estimate, dates before
// today) are Issues. A zero today skips the past-date check.
func ValidateSchedule(r *SchedulingResponse, st *RunState, today time.Time) ([]Issue, error) {
	if st == nil {
		st = &RunState{}
	}
	var v violations
	known := subtaskIDs(st)
	seen := make(map[string]bool, len(r.Schedule))
	slots := make([]slot, 0, len(r.Schedule))

	for i, t := range r.Schedule {
		p := fmt.Sprintf("schedule[%d]", i)
		checkSubtaskRef(&v, p, t.SubtaskID, known, seen)

		date, dateErr := time.Parse(dateLayout, t.ScheduledDate)
		if dateErr != nil {
			v.add("%s.scheduled_date: must be YYYY-MM-DD (got %q)", p, t.ScheduledDate)
		}
		clock, clockErr := time.Parse(timeLayout, t.ScheduledTime)
		if clockErr != nil || len(t.ScheduledTime) != len(timeLayout) {
			v.add("%s.scheduled_time: must be HH:MM (got %q)", p, t.ScheduledTime)
		}
		if t.DurationMinutes <= 0 {
			v.add("%s.duration_minutes: must be greater than 0 (got %d)", p, t.DurationMinutes)
		}

		start := clock.Hour()*60 + clock.Minute()
		slots = append(slots, slot{id: t.SubtaskID, date: date, start: start, end: start + t.DurationMinutes})
	}
	if r.TotalDays < 0 {
		v.add("total_days: must not be negative (got %d)", r.TotalDays)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}

	var issues []Issue
	add := func(code, id, format string, args ...any) {
		issues = append(issues, Issue{Stage: StageScheduler, Code: code, SubtaskID: id, Message: fmt.Sprintf(format, args...)})
	}

	byID := make(map[string]slot, len(slots))
	for _, s := range slots {
		byID[s.id] = s
	}

	var todayDate time.Time
	if !today.IsZero() {
		todayDate = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	}

	for _, s := range slots {
		if wd := s.date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			add(IssueWeekend, s.id, "%s is scheduled on a %s", s.id, wd)
		}
		if s.start < workStart || s.end > workEnd {
			add(IssueOutsideHours, s.id, "%s runs %s-%s, outside 09:00-17:00", s.id, clockString(s.start), clockString(s.end))
		}
		if s.start < lunchEnd && s.end > lunchStart {
			add(IssueLunch, s.id, "%s overlaps the 12:00-13:00 lunch break", s.id)
		}
		if !todayDate.IsZero() && s.date.Before(todayDate) {
			add(IssuePastDate, s.id, "%s is scheduled on %s, before %s", s.id, s.date.Format(dateLayout), todayDate.Format(dateLayout))
		}
		if est, ok := st.EstimateFor(s.id); ok && est.EstimatedMinutes != s.end-s.start {
			add(IssueDuration, s.id, "%s is scheduled for %d minutes but estimated at %d", s.id, s.end-s.start, est.EstimatedMinutes)
		}
	}

	for _, sub := range st.Subtasks {
		s, ok := byID[sub.ID]
		if !ok {
			continue
		}
		for _, dep := range sub.Dependencies {
			d, ok := byID[dep]
			if !ok {
				continue
			}
			if d.endAt().After(s.startAt()) {
				add(IssueDependencyOrder, s.id, "%s starts before its dependency %s finishes", s.id, dep)
			}
		}
	}

	ordered := make([]slot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].startAt().Before(ordered[j].startAt())
	})
	// latest holds, per date, the slot that ends last among those started so far.
	latest := make(map[string]slot)
	for _, cur := range ordered {
		day := cur.date.Format(dateLayout)
		prev, ok := latest[day]
		if ok && prev.end > cur.start {
			add(IssueOverlap, cur.id, "%s overlaps %s on %s", cur.id, prev.id, day)
		}
		if !ok || cur.end > prev.end {
			latest[day] = cur
		}
	}

	for _, id := range missing(st, seen) {
		add(IssueUnscheduled, id, "%s is not on the schedule", id)
	}
	return issues, nil
}

func checkLevel(v *violations, path string, l Level) {
	if !l.IsValid() {
		v.add("%s: must be one of 高, 中, 低 (got %q)", path, l)
	}
}

// checkSubtaskRef validates a subtask_id. known is nil when the run has no
// subtasks, in which case references cannot be checked.
func checkSubtaskRef(v *violations, path, id string, known, seen map[string]bool) {
	switch {
	case strings.TrimSpace(id) == "":
		v.add("%s.subtask_id: must not be empty", path)
	case seen[id]:
		v.add("%s.subtask_id: duplicate entry for %q", path, id)
	case known != nil && !known[id]:
		v.add("%s.subtask_id: unknown subtask %q", path, id)
	}
	seen[id] = true
}

func subtaskIDs(st *RunState) map[string]bool {
	if st.Subtasks == nil {
		return nil
	}
	ids := make(map[string]bool, len(st.Subtasks))
	for _, s := range st.Subtasks {
		ids[s.ID] = true
	}
	return ids
}

// missing returns the subtask ids of st not present in seen, in
// decomposition order.
func missing(st *RunState, seen map[string]bool) []string {
	var out []string
	for _, s := range st.Subtasks {
		if !seen[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}

func clockString(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
