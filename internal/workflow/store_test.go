package workflow

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/interfaces"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/logger"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/monitoring"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// fakeStore is an in-memory task store with the same completion
// semantics as the real one: the actual stamp is written under a lock
// only when still unset, so concurrent completions race for real.
// It intentionally does not implement AtomicForkStore, which makes the
// executor take its sequential fork fallback.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*types.StageTask
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]*types.StageTask{}}
}

func (f *fakeStore) put(task *types.StageTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = cloneTask(task)
}

func (f *fakeStore) GetTask(id string) (*types.StageTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeTaskNotFound, "task not found: "+id)
	}
	return cloneTask(task), nil
}

func (f *fakeStore) QueryStage(kind types.TaskKind, stageIndex int, phase interfaces.StagePhase) ([]*types.StageTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*types.StageTask
	for _, task := range f.tasks {
		if task.Kind != kind {
			continue
		}
		switch phase {
		case interfaces.PhasePending:
			if task.StagePending(stageIndex) {
				out = append(out, cloneTask(task))
			}
		case interfaces.PhaseHistory:
			if task.StageCompleted(stageIndex) {
				out = append(out, cloneTask(task))
			}
		}
	}

	switch phase {
	case interfaces.PhasePending:
		sort.Slice(out, func(i, j int) bool {
			return out[i].Stage(stageIndex).Planned.Before(*out[j].Stage(stageIndex).Planned)
		})
	case interfaces.PhaseHistory:
		sort.Slice(out, func(i, j int) bool {
			return out[i].Stage(stageIndex).Actual.After(*out[j].Stage(stageIndex).Actual)
		})
	}

	return out, nil
}

func (f *fakeStore) CompleteStage(id string, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool) (*types.StageTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeTaskNotFound, "task not found: "+id)
	}

	stage := task.Stage(stageIndex)
	if stage == nil {
		return nil, types.NewValidationError(types.ErrCodeStageOutOfRange, "no such stage", nil)
	}
	if stage.Planned == nil {
		return nil, types.NewValidationError(types.ErrCodeStageNotOpened, "stage never opened", nil)
	}
	if stage.Actual != nil {
		return nil, types.NewAlreadyCompletedError(id, stageIndex)
	}

	actual := now
	stage.Actual = &actual

	if seedNext {
		if next := task.Stage(stageIndex + 1); next != nil && next.Planned == nil {
			planned := now
			next.Planned = &planned
		}
	}

	for k, v := range patch {
		task.Payload[k] = v
	}
	task.UpdatedAt = now

	return cloneTask(task), nil
}

func (f *fakeStore) InsertTask(task *types.StageTask) (*types.StageTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = cloneTask(task)
	return cloneTask(task), nil
}

func (f *fakeStore) UpdatePayload(id string, patch types.PayloadPatch) (*types.StageTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeTaskNotFound, "task not found: "+id)
	}
	for k, v := range patch {
		task.Payload[k] = v
	}
	return cloneTask(task), nil
}

// atomicFakeStore adds transactional fork semantics on top of fakeStore
type atomicFakeStore struct {
	*fakeStore
}

func (f *atomicFakeStore) CompleteAndFork(id string, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool, forked *types.StageTask) (*types.StageTask, *types.StageTask, error) {
	updated, err := f.CompleteStage(id, stageIndex, patch, now, seedNext)
	if err != nil {
		return nil, nil, err
	}
	inserted, err := f.InsertTask(forked)
	if err != nil {
		return nil, nil, err
	}
	return updated, inserted, nil
}

// failingInsertStore rejects inserts, which turns the executor's
// sequential fork fallback into a partial failure.
type failingInsertStore struct {
	*fakeStore
}

func (f *failingInsertStore) InsertTask(task *types.StageTask) (*types.StageTask, error) {
	return nil, types.NewStoreUnavailableError("insert rejected", nil)
}

func cloneTask(task *types.StageTask) *types.StageTask {
	out := *task
	out.Stages = make([]types.Stage, len(task.Stages))
	for i, st := range task.Stages {
		out.Stages[i] = types.Stage{
			Planned: cloneTime(st.Planned),
			Actual:  cloneTime(st.Actual),
		}
	}
	out.Payload = make(map[string]interface{}, len(task.Payload))
	for k, v := range task.Payload {
		out.Payload[k] = v
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// newTestTask builds a task of the given kind with stage 1 opened at
// plannedAt and persists it into the store.
func newTestTask(store *fakeStore, kind types.TaskKind, plannedAt time.Time) *types.StageTask {
	spec, _ := types.SpecFor(kind)

	stages := make([]types.Stage, spec.StageCount)
	planned := plannedAt.In(types.ClinicZone)
	stages[0].Planned = &planned

	task := &types.StageTask{
		ID:             uuid.New().String(),
		Kind:           kind,
		SubjectRef:     "uhid-1001",
		Stages:         stages,
		CompletionKind: types.CompletionAdvance,
		Payload:        map[string]interface{}{"patient_name": "A. Sharma"},
		CreatedAt:      planned,
		UpdatedAt:      planned,
	}
	store.put(task)
	return task
}

// advanceTask completes stages 1..upTo directly in the store, opening
// each following stage, so tests can position a task mid-pipeline.
func advanceTask(store *fakeStore, task *types.StageTask, upTo int, at time.Time) *types.StageTask {
	spec, _ := types.SpecFor(task.Kind)
	current := task
	for i := 1; i <= upTo; i++ {
		updated, err := store.CompleteStage(task.ID, i, nil, at.In(types.ClinicZone), i < spec.StageCount)
		if err != nil {
			panic(err)
		}
		current = updated
	}
	return current
}

func testLogger() *logger.Logger {
	return logger.New("error")
}

func testMetrics() *monitoring.MetricsCollector {
	return monitoring.NewMetricsCollector("workflow-service-test")
}
