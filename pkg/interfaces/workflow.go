package interfaces

import (
	"time"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// StagePhase selects which partition of a pipeline stage a query reads.
type StagePhase string

const (
	// PhasePending selects tasks whose stage is opened but not completed,
	// ordered ascending by planned time (most overdue first).
	PhasePending StagePhase = "pending"

	// PhaseHistory selects tasks whose stage has completed, ordered
	// descending by actual time (most recent first).
	PhaseHistory StagePhase = "history"
)

// TaskStore is the persistence boundary of the workflow engine. It is
// the only external collaborator the engine writes to.
type TaskStore interface {
	// GetTask retrieves a task by id. Returns a not found error when no
	// such task exists.
	GetTask(id string) (*types.StageTask, error)

	// QueryStage returns the pending or history partition for one stage
	// of one pipeline. An empty result is not an error.
	QueryStage(kind types.TaskKind, stageIndex int, phase StagePhase) ([]*types.StageTask, error)

	// CompleteStage stamps the stage's actual timestamp, merges the
	// payload patch, and (when seedNext is true) opens the next stage by
	// setting its planned to now. The write must be conditioned on the
	// actual still being null: of two racing callers exactly one
	// succeeds, the other receives an already completed error.
	CompleteStage(id string, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool) (*types.StageTask, error)

	// InsertTask persists a new task with its stage chain.
	InsertTask(task *types.StageTask) (*types.StageTask, error)

	// UpdatePayload merges a corrective patch into a task's payload
	// without touching the stage chain.
	UpdatePayload(id string, patch types.PayloadPatch) (*types.StageTask, error)
}

// AtomicForkStore is implemented by stores that can apply a stage
// completion and a dependent insert as one transaction. The executor
// prefers this path; stores without it get the sequential fallback,
// which can surface a fork partial failure.
type AtomicForkStore interface {
	CompleteAndFork(id string, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool, forked *types.StageTask) (*types.StageTask, *types.StageTask, error)
}

// WorkflowService defines the engine surface consumed by the dashboard
type WorkflowService interface {
	// Task lifecycle
	CreateTask(input *types.NewTaskInput, userID string) (*types.StageTask, error)
	GetTask(taskID, userID string) (*types.StageTask, error)
	EditPayload(taskID string, patch types.PayloadPatch, userID string) (*types.StageTask, error)

	// Pipeline views
	Pending(kind types.TaskKind, stageIndex int) ([]*types.PendingTask, error)
	History(kind types.TaskKind, stageIndex int) ([]*types.StageTask, error)

	// Transitions
	Complete(taskID string, stageIndex int, patch types.PayloadPatch, userID string) (*types.StageTask, error)
	CompleteMany(kind types.TaskKind, taskIDs []string, stageIndex int, patches map[string]types.PayloadPatch, userID string) (*types.BatchResult, error)

	// Service management
	Start(addr string) error
	Stop() error
}

// Notifier delivers task outcome notifications to staff. Delivery is
// an external collaborator; the engine only emits.
type Notifier interface {
	NotifyCompleted(task *types.StageTask, stageIndex int)
	NotifyFailed(taskID string, stageIndex int, err error)
}
