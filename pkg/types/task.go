package types

import "time"

// ClinicZone is the fixed timezone every planned/actual stamp is
// normalized to before it is written. Pending/history partitioning
// must not depend on the caller's locale.
var ClinicZone = time.FixedZone("IST", 5*3600+30*60)

// TaskKind identifies which clinical pipeline a task belongs to.
// The kind is immutable after creation and determines the number of
// stages and the completion behavior.
type TaskKind string

const (
	KindDischarge      TaskKind = "discharge"
	KindLabUSG         TaskKind = "lab-usg"
	KindOTAssignment   TaskKind = "ot-assignment"
	KindNurseTask      TaskKind = "nurse-task"
	KindRMOTask        TaskKind = "rmo-task"
	KindDressingTask   TaskKind = "dressing-task"
	KindPharmacyIndent TaskKind = "pharmacy-indent"
)

// CompletionKind is the persisted discriminator for what completing a
// stage does. It is resolved once at task creation, never re-derived
// from free text afterwards.
type CompletionKind string

const (
	CompletionAdvance CompletionKind = "advance"
	CompletionCapture CompletionKind = "capture"
	CompletionFork    CompletionKind = "fork"
)

// Stage is one (planned, actual) timestamp pair in a task's pipeline.
// A nil Planned means the stage has not been opened; a nil Actual
// means the stage has not completed.
type Stage struct {
	Planned *time.Time `json:"planned" db:"planned"`
	Actual  *time.Time `json:"actual" db:"actual"`
}

// StageTask represents a clinical task moving through a staged
// pipeline (discharge, lab/USG, OT assignment, ward tasks, pharmacy
// indents).
type StageTask struct {
	ID             string                 `json:"id" db:"id"`
	Kind           TaskKind               `json:"kind" db:"kind"`
	SubjectRef     string                 `json:"subject_ref" db:"subject_ref"`
	Stages         []Stage                `json:"stages"`
	CompletionKind CompletionKind         `json:"completion_kind" db:"completion_kind"`
	CaptureSchema  string                 `json:"capture_schema,omitempty" db:"capture_schema"`
	ForkKind       TaskKind               `json:"fork_kind,omitempty" db:"fork_kind"`
	Payload        map[string]interface{} `json:"payload" db:"payload"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at" db:"updated_at"`
}

// Stage returns the stage at 1-based index i, or nil when i is out of
// range for this task.
func (t *StageTask) Stage(i int) *Stage {
	if i < 1 || i > len(t.Stages) {
		return nil
	}
	return &t.Stages[i-1]
}

// CurrentStage returns the lowest 1-based stage index whose actual is
// still unset, or 0 when every stage has completed. Callers should use
// this instead of inspecting the planned/actual chain directly.
func (t *StageTask) CurrentStage() int {
	for i := range t.Stages {
		if t.Stages[i].Actual == nil {
			return i + 1
		}
	}
	return 0
}

// StagePending reports whether the task is in the pending set for
// stage i: planned set, actual unset, and every prior stage completed.
func (t *StageTask) StagePending(i int) bool {
	st := t.Stage(i)
	if st == nil || st.Planned == nil || st.Actual != nil {
		return false
	}
	for j := 1; j < i; j++ {
		if prev := t.Stage(j); prev == nil || prev.Actual == nil {
			return false
		}
	}
	return true
}

// StageCompleted reports whether the task is in the history set for
// stage i: both planned and actual set.
func (t *StageTask) StageCompleted(i int) bool {
	st := t.Stage(i)
	return st != nil && st.Planned != nil && st.Actual != nil
}

// PayloadPatch is a partial payload merged into a task's payload when
// a stage completes (status value, remark, report reference).
type PayloadPatch map[string]interface{}

// KindSpec describes the fixed shape of one task kind.
type KindSpec struct {
	// StageCount is N, the fixed number of (planned, actual) pairs.
	StageCount int

	// StageLabels names each stage, 1-based, for display and logs.
	StageLabels []string

	// RequiredFields lists payload fields that must be present in the
	// patch to complete the given stage.
	RequiredFields map[int][]string

	// PayloadEditableUntil allows corrective payload edits while the
	// given stage is still pending (0 disables edits). Used by
	// pharmacy indents, which may be amended before approval.
	PayloadEditableUntil int
}

var kindSpecs = map[TaskKind]KindSpec{
	KindDischarge: {
		StageCount:  4,
		StageLabels: []string{"advised", "summary ready", "bill cleared", "gate pass"},
		RequiredFields: map[int][]string{
			4: {"status"},
		},
	},
	KindLabUSG: {
		StageCount:  3,
		StageLabels: []string{"sample due", "test done", "report delivered"},
		RequiredFields: map[int][]string{
			3: {"report_ref"},
		},
	},
	KindOTAssignment: {
		StageCount:  2,
		StageLabels: []string{"scheduled", "performed"},
		RequiredFields: map[int][]string{
			2: {"status"},
		},
	},
	KindNurseTask: {
		StageCount:  2,
		StageLabels: []string{"assigned", "done"},
	},
	KindRMOTask: {
		StageCount:  2,
		StageLabels: []string{"assigned", "done"},
	},
	KindDressingTask: {
		StageCount:  2,
		StageLabels: []string{"assigned", "done"},
	},
	KindPharmacyIndent: {
		StageCount:  3,
		StageLabels: []string{"raised", "approved", "issued"},
		RequiredFields: map[int][]string{
			2: {"status"},
		},
		PayloadEditableUntil: 2,
	},
}

// SpecFor returns the kind spec for a task kind.
func SpecFor(kind TaskKind) (KindSpec, bool) {
	spec, ok := kindSpecs[kind]
	return spec, ok
}

// Kinds returns every registered task kind.
func Kinds() []TaskKind {
	kinds := make([]TaskKind, 0, len(kindSpecs))
	for k := range kindSpecs {
		kinds = append(kinds, k)
	}
	return kinds
}
