package types

import "time"

// VerdictKind categorizes a delay classification.
type VerdictKind string

const (
	VerdictNoPlan  VerdictKind = "no_plan"
	VerdictEarly   VerdictKind = "early"
	VerdictOnTime  VerdictKind = "on_time"
	VerdictDelayed VerdictKind = "delayed"
)

// Verdict is the result of classifying a stage's lateness. Hours and
// Minutes carry the whole-unit magnitude of the deviation for Early
// and Delayed verdicts; both are zero otherwise. Settled is true when
// the verdict was computed against an actual completion time rather
// than the current clock.
type Verdict struct {
	Kind    VerdictKind `json:"kind"`
	Hours   int         `json:"hours"`
	Minutes int         `json:"minutes"`
	Settled bool        `json:"settled"`
}

// BatchItemResult reports the outcome of one task inside a batch
// completion.
type BatchItemResult struct {
	TaskID string     `json:"task_id"`
	Task   *StageTask `json:"task,omitempty"`
	Error  string     `json:"error,omitempty"`
	Err    error      `json:"-"`
}

// Succeeded reports whether the item completed.
func (r BatchItemResult) Succeeded() bool { return r.Err == nil }

// BatchResult aggregates per-task outcomes of a batch completion.
// Partial success is a valid outcome, not an error; every submitted id
// appears exactly once.
type BatchResult struct {
	Items     []BatchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// AllFailed reports whether no item in the batch completed.
func (r *BatchResult) AllFailed() bool {
	return len(r.Items) > 0 && r.Succeeded == 0
}

// PendingTask pairs a pending task with its live delay verdict so
// consumers can surface the most overdue work first.
type PendingTask struct {
	Task    *StageTask `json:"task"`
	Verdict Verdict    `json:"verdict"`
}

// NewTaskInput carries the fields needed to open a task at stage 1.
type NewTaskInput struct {
	Kind        TaskKind               `json:"kind" validate:"required"`
	SubjectRef  string                 `json:"subject_ref" validate:"required"`
	Description string                 `json:"description,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	PlannedAt   *time.Time             `json:"planned_at,omitempty"`
}
