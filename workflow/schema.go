// Package workflow defines the planning pipeline's data model: the typed
// result of each stage, the RunState threaded through a run, the error
// taxonomy for generation output, and the parsing and validation rules that
// turn untrusted model text into those types.
package workflow

// Analysis classifies the original task.
type Analysis struct {
	Category        string   `json:"category"`
	Purpose         string   `json:"purpose"`
	Urgency         Level    `json:"urgency"`
	Complexity      Level    `json:"complexity"`
	KeyRequirements []string `json:"key_requirements"`
	Constraints     []string `json:"constraints"`
}

// SubTask is one unit of work, sized at one to two hours.
type SubTask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
}

// TimeEstimate is the estimated duration of one subtask.
type TimeEstimate struct {
	SubtaskID        string `json:"subtask_id"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Confidence       Level  `json:"confidence"`
	Reasoning        string `json:"reasoning"`
}

// PriorityAssignment ranks one subtask on the Eisenhower matrix.
// Priority 1 is urgent and important, 5 is deferred.
type PriorityAssignment struct {
	SubtaskID  string `json:"subtask_id"`
	Priority   int    `json:"priority"`
	Urgency    Level  `json:"urgency"`
	Importance Level  `json:"importance"`
	Reasoning  string `json:"reasoning"`
}

// ScheduledTask places one subtask on the calendar.
// ScheduledDate is YYYY-MM-DD and ScheduledTime is HH:MM.
type ScheduledTask struct {
	SubtaskID       string `json:"subtask_id"`
	ScheduledDate   string `json:"scheduled_date"`
	ScheduledTime   string `json:"scheduled_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// AnalysisResponse is the analyzer's JSON object. The analysis fields sit at
// the top level.
type AnalysisResponse struct {
	Analysis
}

// DecompositionResponse is the decomposer's JSON object.
type DecompositionResponse struct {
	Subtasks      []SubTask `json:"subtasks"`
	TotalSubtasks int       `json:"total_subtasks"`
}

// EstimationResponse is the estimator's JSON object.
type EstimationResponse struct {
	Estimates    []TimeEstimate `json:"estimates"`
	TotalMinutes int            `json:"total_minutes"`
}

// PrioritizationResponse is the prioritizer's JSON object.
type PrioritizationResponse struct {
	Priorities []PriorityAssignment `json:"priorities"`
}

// SchedulingResponse is the scheduler's JSON object.
type SchedulingResponse struct {
	Schedule  []ScheduledTask `json:"schedule"`
	TotalDays int             `json:"total_days"`
	Warnings  []string        `json:"warnings"`
}

func (AnalysisResponse) shape() shape {
	return shape{required: []string{"category", "purpose", "urgency", "complexity"}}
}

func (DecompositionResponse) shape() shape {
	return shape{
		required: []string{"subtasks", "total_subtasks"},
		ints:     []string{"total_subtasks"},
		items: map[string]shape{
			"subtasks": {required: []string{"id", "title", "description"}},
		},
	}
}

func (EstimationResponse) shape() shape {
	return shape{
		required: []string{"estimates", "total_minutes"},
		ints:     []string{"total_minutes"},
		items: map[string]shape{
			"estimates": {
				required: []string{"subtask_id", "estimated_minutes", "confidence", "reasoning"},
				ints:     []string{"estimated_minutes"},
			},
		},
	}
}

func (PrioritizationResponse) shape() shape {
	return shape{
		required: []string{"priorities"},
		items: map[string]shape{
			"priorities": {
				required: []string{"subtask_id", "priority", "urgency", "importance", "reasoning"},
				ints:     []string{"priority"},
			},
		},
	}
}

func (SchedulingResponse) shape() shape {
	return shape{
		required: []string{"schedule", "total_days"},
		ints:     []string{"total_days"},
		items: map[string]shape{
			"schedule": {
				required: []string{"subtask_id", "scheduled_date", "scheduled_time", "duration_minutes"},
				ints:     []string{"duration_minutes"},
			},
		},
	}
}
