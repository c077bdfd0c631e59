package workflow

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/database"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/interfaces"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

func setupTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := &Repository{
		db:     &database.DB{DB: sqlDB},
		logger: testLogger(),
	}

	cleanup := func() {
		sqlDB.Close()
	}

	return repo, mock, cleanup
}

var taskRowColumns = []string{
	"id", "kind", "subject_ref", "completion_kind",
	"capture_schema", "fork_kind", "payload", "created_at", "updated_at",
}

func expectTaskLoad(mock sqlmock.Sqlmock, id string, kind types.TaskKind, planned time.Time) {
	mock.ExpectQuery("SELECT (.+) FROM stage_tasks t WHERE t.id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(id, string(kind), "uhid-1001", "advance", nil, nil, []byte(`{}`), planned, planned))

	mock.ExpectQuery("SELECT task_id, stage_index, planned, actual").
		WithArgs(pq.Array([]string{id})).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "stage_index", "planned", "actual"}).
			AddRow(id, 1, planned, nil).
			AddRow(id, 2, nil, nil))
}

func TestRepositoryGetTask(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	planned := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)
	expectTaskLoad(mock, "task-1", types.KindNurseTask, planned)

	task, err := repo.GetTask("task-1")
	require.NoError(t, err)

	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, types.KindNurseTask, task.Kind)
	require.Len(t, task.Stages, 2)
	require.NotNil(t, task.Stages[0].Planned)
	assert.True(t, task.Stages[0].Planned.Equal(planned))
	assert.Nil(t, task.Stages[0].Actual)
	assert.Nil(t, task.Stages[1].Planned)
	assert.Equal(t, 1, task.CurrentStage())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetTaskNotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM stage_tasks t WHERE t.id").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetTask("nope")
	assert.True(t, types.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCompleteStage(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Date(2025, 3, 10, 9, 40, 0, 0, types.ClinicZone)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE task_stages SET actual").
		WithArgs(now, "task-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE task_stages SET planned").
		WithArgs(now, "task-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE stage_tasks SET payload").
		WithArgs([]byte(`{"remark":"done"}`), now, "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expectTaskLoad(mock, "task-1", types.KindNurseTask, now)

	_, err := repo.CompleteStage("task-1", 1, types.PayloadPatch{"remark": "done"}, now, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCompleteStageLostRace(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Date(2025, 3, 10, 9, 40, 0, 0, types.ClinicZone)
	earlier := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE task_stages SET actual").
		WithArgs(now, "task-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT planned, actual FROM task_stages").
		WithArgs("task-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"planned", "actual"}).AddRow(earlier, earlier))
	mock.ExpectRollback()

	_, err := repo.CompleteStage("task-1", 1, nil, now, true)
	assert.True(t, types.IsAlreadyCompleted(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCompleteStageNeverOpened(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Date(2025, 3, 10, 9, 40, 0, 0, types.ClinicZone)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE task_stages SET actual").
		WithArgs(now, "task-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT planned, actual FROM task_stages").
		WithArgs("task-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"planned", "actual"}).AddRow(nil, nil))
	mock.ExpectRollback()

	_, err := repo.CompleteStage("task-1", 2, nil, now, false)
	require.Error(t, err)

	var wfErr *types.WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, types.ErrCodeStageNotOpened, wfErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCompleteStageTaskMissing(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Date(2025, 3, 10, 9, 40, 0, 0, types.ClinicZone)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE task_stages SET actual").
		WithArgs(now, "ghost", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT planned, actual FROM task_stages").
		WithArgs("ghost", 1).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM stage_tasks").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.CompleteStage("ghost", 1, nil, now, true)
	assert.True(t, types.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryQueryStagePending(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	planned := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	mock.ExpectQuery("SELECT (.+) FROM stage_tasks t").
		WithArgs("nurse-task", 1).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow("task-1", "nurse-task", "uhid-1001", "advance", nil, nil, []byte(`{}`), planned, planned))

	mock.ExpectQuery("SELECT task_id, stage_index, planned, actual").
		WithArgs(pq.Array([]string{"task-1"})).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "stage_index", "planned", "actual"}).
			AddRow("task-1", 1, planned, nil).
			AddRow("task-1", 2, nil, nil))

	tasks, err := repo.QueryStage(types.KindNurseTask, 1, interfaces.PhasePending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)
	assert.True(t, tasks[0].StagePending(1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryQueryStageEmpty(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM stage_tasks t").
		WithArgs("nurse-task", 1).
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	tasks, err := repo.QueryStage(types.KindNurseTask, 1, interfaces.PhaseHistory)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdatePayloadNotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE stage_tasks SET payload").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdatePayload("ghost", types.PayloadPatch{"remark": "x"})
	assert.True(t, types.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDriverErrorIsStoreUnavailable(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM stage_tasks t").
		WithArgs("task-1").
		WillReturnError(sql.ErrConnDone)

	_, err := repo.GetTask("task-1")
	assert.True(t, types.IsStoreUnavailable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCompleteAndForkRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Date(2025, 3, 10, 9, 40, 0, 0, types.ClinicZone)
	forked := &types.StageTask{
		ID:             "forked-1",
		Kind:           types.KindOTAssignment,
		SubjectRef:     "uhid-1001",
		Stages:         []types.Stage{{Planned: &now}, {}},
		CompletionKind: types.CompletionAdvance,
		Payload:        map[string]interface{}{"source_task_id": "task-1"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE task_stages SET actual").
		WithArgs(now, "task-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE stage_tasks SET payload").
		WithArgs([]byte(`{}`), now, "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stage_tasks").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, _, err := repo.CompleteAndFork("task-1", 2, nil, now, false, forked)
	assert.True(t, types.IsStoreUnavailable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
