package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/interfaces"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/logger"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/monitoring"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// Executor applies stage completions. Completing a stage is monotonic:
// once an actual timestamp is set it is never cleared.
type Executor struct {
	store    interfaces.TaskStore
	resolver *BranchResolver
	metrics  *monitoring.MetricsCollector
	logger   *logger.Logger
}

// NewExecutor creates a new transition executor
func NewExecutor(store interfaces.TaskStore, resolver *BranchResolver, metrics *monitoring.MetricsCollector, log *logger.Logger) *Executor {
	return &Executor{
		store:    store,
		resolver: resolver,
		metrics:  metrics,
		logger:   log,
	}
}

// Complete stamps the stage's actual timestamp, merges the payload
// patch, and seeds the next stage's planned time when the kind has one.
// The store write is conditioned on the actual still being unset, so
// of two racing callers exactly one succeeds and the other receives an
// already completed error.
func (e *Executor) Complete(taskID string, stageIndex int, patch types.PayloadPatch, now time.Time) (*types.StageTask, error) {
	task, err := e.store.GetTask(taskID)
	if err != nil {
		return nil, e.record("unknown", asStoreError(err))
	}

	spec, ok := types.SpecFor(task.Kind)
	if !ok {
		return nil, e.record(task.Kind, types.NewValidationError(types.ErrCodeUnknownKind,
			fmt.Sprintf("unknown task kind: %s", task.Kind), nil))
	}

	if stageIndex < 1 || stageIndex > spec.StageCount {
		return nil, e.record(task.Kind, types.NewValidationError(types.ErrCodeStageOutOfRange,
			fmt.Sprintf("kind %s has no stage %d", task.Kind, stageIndex), nil))
	}

	stage := task.Stage(stageIndex)
	if stage.Planned == nil {
		return nil, e.record(task.Kind, types.NewValidationError(types.ErrCodeStageNotOpened,
			fmt.Sprintf("stage %d of task %s was never opened", stageIndex, taskID), nil))
	}
	if stage.Actual != nil {
		return nil, e.record(task.Kind, types.NewAlreadyCompletedError(taskID, stageIndex))
	}

	if err := checkRequiredFields(spec, stageIndex, patch); err != nil {
		return nil, e.record(task.Kind, err)
	}

	plan, err := e.resolver.Resolve(task, stageIndex)
	if err != nil {
		return nil, e.record(task.Kind, err)
	}

	if plan.Kind == types.CompletionCapture {
		if err := e.resolver.ValidateCapture(plan.Schema, patch); err != nil {
			return nil, e.record(task.Kind, err)
		}
	}

	now = now.In(types.ClinicZone)
	seedNext := stageIndex < spec.StageCount

	var updated *types.StageTask
	if plan.Kind == types.CompletionFork {
		updated, err = e.completeAndFork(task, plan, stageIndex, patch, now, seedNext)
	} else {
		updated, err = e.store.CompleteStage(taskID, stageIndex, patch, now, seedNext)
		err = asStoreError(err)
	}

	if err != nil && !types.IsForkPartial(err) {
		e.logger.Transition(taskID, string(task.Kind), stageIndex, false, map[string]interface{}{"error": err.Error()})
		return nil, e.record(task.Kind, err)
	}

	e.logger.Transition(taskID, string(task.Kind), stageIndex, true, nil)
	e.metrics.RecordTransition(string(task.Kind), "success")
	// A fork partial failure still returns the updated task: the
	// primary completion is applied and must not be reported as undone.
	return updated, err
}

// completeAndFork completes the current stage and inserts the forked
// task. Stores that support it get both writes in one transaction;
// otherwise the writes are sequential and a failed insert surfaces as
// a fork partial failure needing reconciliation.
func (e *Executor) completeAndFork(task *types.StageTask, plan *TransitionPlan, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool) (*types.StageTask, error) {
	forked := e.buildFork(task, plan.ForkKind, now)

	if atomic, ok := e.store.(interfaces.AtomicForkStore); ok {
		updated, _, err := atomic.CompleteAndFork(task.ID, stageIndex, patch, now, seedNext, forked)
		return updated, asStoreError(err)
	}

	updated, err := e.store.CompleteStage(task.ID, stageIndex, patch, now, seedNext)
	if err != nil {
		return nil, asStoreError(err)
	}

	if _, err := e.store.InsertTask(forked); err != nil {
		e.metrics.RecordForkFailure(string(task.Kind), string(plan.ForkKind))
		return updated, types.NewForkPartialError(task.ID, plan.ForkKind, err)
	}

	return updated, nil
}

// buildFork constructs the new task seeded into the target pipeline,
// with stage 1 planned at the completion moment.
func (e *Executor) buildFork(task *types.StageTask, targetKind types.TaskKind, now time.Time) *types.StageTask {
	spec, _ := types.SpecFor(targetKind)

	stages := make([]types.Stage, spec.StageCount)
	planned := now
	stages[0].Planned = &planned

	return &types.StageTask{
		ID:             uuid.New().String(),
		Kind:           targetKind,
		SubjectRef:     task.SubjectRef,
		Stages:         stages,
		CompletionKind: types.CompletionAdvance,
		Payload:        ForkPayload(task),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// checkRequiredFields verifies the patch carries every payload field
// the kind requires to complete this stage.
func checkRequiredFields(spec types.KindSpec, stageIndex int, patch types.PayloadPatch) error {
	for _, field := range spec.RequiredFields[stageIndex] {
		v, ok := patch[field]
		if !ok || v == nil || v == "" {
			return types.NewValidationError(types.ErrCodeMissingField,
				fmt.Sprintf("field %q is required to complete this stage", field),
				map[string]interface{}{"field": field})
		}
	}
	return nil
}

// record increments the transition failure metric for err and passes
// it through unchanged.
func (e *Executor) record(kind types.TaskKind, err error) error {
	if err == nil {
		return nil
	}
	var wfErr *types.WorkflowError
	result := "error"
	if errors.As(err, &wfErr) {
		result = string(wfErr.Type)
	}
	e.metrics.RecordTransition(string(kind), result)
	return err
}

// asStoreError passes workflow errors through and wraps anything else
// as a transient store failure, safe for the caller to retry.
func asStoreError(err error) error {
	if err == nil {
		return nil
	}
	var wfErr *types.WorkflowError
	if errors.As(err, &wfErr) {
		return err
	}
	return types.NewStoreUnavailableError("task store request failed", err)
}
