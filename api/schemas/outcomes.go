package schemas

import "time"

// Outcome classifies how a task ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeMaxSteps  Outcome = "max_steps_reached"
	OutcomeCancelled Outcome = "cancelled"
)

// StepRecord is the audit trail for one loop iteration. A step that is
// retried after a parse failure produces one record per attempt, sharing a
// step number.
type StepRecord struct {
	TaskID     string        `json:"task_id"`
	StepNumber int           `json:"step_number"`
	Attempt    int           `json:"attempt"`
	Thinking   string        `json:"thinking"`
	RawAction  string        `json:"raw_action"`
	Action     *Action       `json:"action,omitempty"`
	Success    bool          `json:"success"`
	Detail     string        `json:"detail,omitempty"`
	Duration   time.Duration `json:"duration"`
	Metrics    StreamMetrics `json:"metrics"`
	StartedAt  time.Time     `json:"started_at"`
}

// TaskResult summarizes a finished task.
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	Goal     string        `json:"goal"`
	Outcome  Outcome       `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
}
