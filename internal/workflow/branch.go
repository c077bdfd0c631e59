package workflow

import (
	"fmt"
	"strings"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/logger"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// TransitionPlan describes what completing a stage does: a plain
// advance, a structured capture, or a fork into another pipeline.
type TransitionPlan struct {
	Kind     types.CompletionKind
	Schema   *CaptureSchema
	ForkKind types.TaskKind
}

// CaptureField is one entry of a structured-capture checklist.
type CaptureField struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "bool" or "text"
	Required bool   `json:"required"`
}

// CaptureSchema names the checklist a capture completion must fill in.
type CaptureSchema struct {
	ID     string         `json:"id"`
	Fields []CaptureField `json:"fields"`
}

// Built-in capture schemas, keyed by schema id.
var captureSchemas = map[string]CaptureSchema{
	"vitals-check": {
		ID: "vitals-check",
		Fields: []CaptureField{
			{Name: "temperature", Type: "text", Required: true},
			{Name: "pulse", Type: "text", Required: true},
			{Name: "bp", Type: "text", Required: true},
			{Name: "spo2", Type: "text", Required: true},
			{Name: "patient_conscious", Type: "bool", Required: true},
			{Name: "remark", Type: "text", Required: false},
		},
	},
	"dressing-round": {
		ID: "dressing-round",
		Fields: []CaptureField{
			{Name: "wound_clean", Type: "bool", Required: true},
			{Name: "dressing_changed", Type: "bool", Required: true},
			{Name: "remark", Type: "text", Required: false},
		},
	},
}

// descriptionTemplate maps a legacy free-text task description onto a
// completion behavior. Matching happens once, at creation; the result
// is persisted on the task.
type descriptionTemplate struct {
	substring  string
	completion types.CompletionKind
	schemaID   string
	forkKind   types.TaskKind
}

var descriptionTemplates = []descriptionTemplate{
	{substring: "vitals check", completion: types.CompletionCapture, schemaID: "vitals-check"},
	{substring: "dressing round", completion: types.CompletionCapture, schemaID: "dressing-round"},
	{substring: "ot information", completion: types.CompletionFork, forkKind: types.KindOTAssignment},
}

// BranchResolver decides which transition behavior applies to a task.
type BranchResolver struct {
	logger *logger.Logger
}

// NewBranchResolver creates a new branch resolver
func NewBranchResolver(log *logger.Logger) *BranchResolver {
	return &BranchResolver{logger: log}
}

// ResolveAtCreation matches a task description against the known
// templates and returns the completion discriminator to persist.
// Unmatched descriptions default to a simple advance.
func (r *BranchResolver) ResolveAtCreation(description string) (types.CompletionKind, string, types.TaskKind) {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return types.CompletionAdvance, "", ""
	}

	for _, tmpl := range descriptionTemplates {
		if strings.Contains(desc, tmpl.substring) {
			return tmpl.completion, tmpl.schemaID, tmpl.forkKind
		}
	}

	return types.CompletionAdvance, "", ""
}

// Resolve returns the transition plan for completing the given stage.
// Capture and fork behavior apply to the task's final stage only;
// intermediate stages always advance.
func (r *BranchResolver) Resolve(task *types.StageTask, stageIndex int) (*TransitionPlan, error) {
	spec, ok := types.SpecFor(task.Kind)
	if !ok {
		return nil, types.NewValidationError(types.ErrCodeUnknownKind,
			fmt.Sprintf("unknown task kind: %s", task.Kind), nil)
	}

	if stageIndex < spec.StageCount || task.CompletionKind == types.CompletionAdvance {
		return &TransitionPlan{Kind: types.CompletionAdvance}, nil
	}

	switch task.CompletionKind {
	case types.CompletionCapture:
		schema, ok := captureSchemas[task.CaptureSchema]
		if !ok {
			return nil, types.NewValidationError(types.ErrCodeCaptureMismatch,
				fmt.Sprintf("unknown capture schema: %s", task.CaptureSchema), nil)
		}
		return &TransitionPlan{Kind: types.CompletionCapture, Schema: &schema}, nil

	case types.CompletionFork:
		if _, ok := types.SpecFor(task.ForkKind); !ok {
			return nil, types.NewValidationError(types.ErrCodeUnknownKind,
				fmt.Sprintf("fork target is not a known kind: %s", task.ForkKind), nil)
		}
		return &TransitionPlan{Kind: types.CompletionFork, ForkKind: task.ForkKind}, nil

	default:
		r.logger.WithTask(task.ID, string(task.Kind)).
			Warnf("Unrecognized completion kind %q, treating as advance", task.CompletionKind)
		return &TransitionPlan{Kind: types.CompletionAdvance}, nil
	}
}

// ValidateCapture checks a payload patch against a capture schema:
// every required field present, every known field of the declared type.
func (r *BranchResolver) ValidateCapture(schema *CaptureSchema, patch types.PayloadPatch) error {
	for _, field := range schema.Fields {
		value, present := patch[field.Name]
		if !present {
			if field.Required {
				return types.NewValidationError(types.ErrCodeCaptureMismatch,
					fmt.Sprintf("capture field %q is required", field.Name),
					map[string]interface{}{"schema": schema.ID, "field": field.Name})
			}
			continue
		}

		switch field.Type {
		case "bool":
			if _, ok := value.(bool); !ok {
				return types.NewValidationError(types.ErrCodeCaptureMismatch,
					fmt.Sprintf("capture field %q must be a boolean", field.Name),
					map[string]interface{}{"schema": schema.ID, "field": field.Name})
			}
		case "text":
			if _, ok := value.(string); !ok {
				return types.NewValidationError(types.ErrCodeCaptureMismatch,
					fmt.Sprintf("capture field %q must be a string", field.Name),
					map[string]interface{}{"schema": schema.ID, "field": field.Name})
			}
		}
	}

	return nil
}

// ForkPayload maps fields from the source task onto the payload of the
// forked task. The forked record keeps a back-reference to its origin.
func ForkPayload(task *types.StageTask) map[string]interface{} {
	payload := map[string]interface{}{
		"source_task_id": task.ID,
	}
	for _, field := range []string{"patient_name", "department", "bed_no"} {
		if v, ok := task.Payload[field]; ok {
			payload[field] = v
		}
	}
	return payload
}
