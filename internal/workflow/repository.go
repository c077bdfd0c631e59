package workflow

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/database"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/interfaces"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/logger"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// Repository implements the TaskStore interface on PostgreSQL. Stage
// completion is a conditional update guarded by `actual IS NULL`, so
// racing completions cannot overwrite each other. It also implements
// AtomicForkStore: a fork's two writes share one transaction.
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new task store repository
func NewRepository(db *database.DB, log *logger.Logger) interfaces.TaskStore {
	return &Repository{
		db:     db,
		logger: log,
	}
}

const taskColumns = "t.id, t.kind, t.subject_ref, t.completion_kind, t.capture_schema, t.fork_kind, t.payload, t.created_at, t.updated_at"

// GetTask retrieves a task and its stage chain by id
func (r *Repository) GetTask(id string) (*types.StageTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM stage_tasks t WHERE t.id = $1`, taskColumns)

	task, err := scanTask(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeTaskNotFound, fmt.Sprintf("task not found: %s", id))
		}
		r.logger.WithError(err).Errorf("Failed to get task %s", id)
		return nil, types.NewStoreUnavailableError("failed to get task", err)
	}

	stages, err := r.loadStages([]string{id})
	if err != nil {
		return nil, err
	}
	task.Stages = stages[id]

	return task, nil
}

// QueryStage returns the pending or history partition for one stage of
// one pipeline
func (r *Repository) QueryStage(kind types.TaskKind, stageIndex int, phase interfaces.StagePhase) ([]*types.StageTask, error) {
	var query string
	switch phase {
	case interfaces.PhasePending:
		// A task is pending at a stage only when every prior stage has
		// completed; exactly one stage is open at a time.
		query = fmt.Sprintf(`
			SELECT %s FROM stage_tasks t
			JOIN task_stages s ON s.task_id = t.id
			WHERE t.kind = $1 AND s.stage_index = $2
			  AND s.planned IS NOT NULL AND s.actual IS NULL
			  AND NOT EXISTS (
			    SELECT 1 FROM task_stages p
			    WHERE p.task_id = t.id AND p.stage_index < s.stage_index AND p.actual IS NULL
			  )
			ORDER BY s.planned ASC`, taskColumns)
	case interfaces.PhaseHistory:
		query = fmt.Sprintf(`
			SELECT %s FROM stage_tasks t
			JOIN task_stages s ON s.task_id = t.id
			WHERE t.kind = $1 AND s.stage_index = $2
			  AND s.actual IS NOT NULL
			ORDER BY s.actual DESC`, taskColumns)
	default:
		return nil, types.NewValidationError(types.ErrCodeInternalError,
			fmt.Sprintf("unknown stage phase: %s", phase), nil)
	}

	rows, err := r.db.Query(query, string(kind), stageIndex)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to query %s stage %d of %s", phase, stageIndex, kind)
		return nil, types.NewStoreUnavailableError("failed to query stage", err)
	}
	defer rows.Close()

	var tasks []*types.StageTask
	var ids []string
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, types.NewStoreUnavailableError("failed to scan task", err)
		}
		tasks = append(tasks, task)
		ids = append(ids, task.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, types.NewStoreUnavailableError("error iterating tasks", err)
	}

	if len(ids) == 0 {
		return []*types.StageTask{}, nil
	}

	stages, err := r.loadStages(ids)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		task.Stages = stages[task.ID]
	}

	return tasks, nil
}

// CompleteStage stamps actual, merges the patch, and seeds the next
// stage, all in one transaction
func (r *Repository) CompleteStage(id string, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool) (*types.StageTask, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, types.NewStoreUnavailableError("failed to begin transaction", err)
	}

	if err := r.completeInTx(tx, id, stageIndex, patch, now, seedNext); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, types.NewStoreUnavailableError("failed to commit stage completion", err)
	}

	r.logger.WithTask(id, "").Infof("Completed stage %d", stageIndex)
	return r.GetTask(id)
}

// CompleteAndFork applies a stage completion and the dependent insert
// atomically: if the insert fails neither write is kept
func (r *Repository) CompleteAndFork(id string, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool, forked *types.StageTask) (*types.StageTask, *types.StageTask, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, nil, types.NewStoreUnavailableError("failed to begin transaction", err)
	}

	if err := r.completeInTx(tx, id, stageIndex, patch, now, seedNext); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := r.insertInTx(tx, forked); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, types.NewStoreUnavailableError("failed to commit fork", err)
	}

	updated, err := r.GetTask(id)
	if err != nil {
		return nil, nil, err
	}
	inserted, err := r.GetTask(forked.ID)
	if err != nil {
		return nil, nil, err
	}

	return updated, inserted, nil
}

// InsertTask persists a new task with its stage chain
func (r *Repository) InsertTask(task *types.StageTask) (*types.StageTask, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, types.NewStoreUnavailableError("failed to begin transaction", err)
	}

	if err := r.insertInTx(tx, task); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, types.NewStoreUnavailableError("failed to commit insert", err)
	}

	r.logger.WithTask(task.ID, string(task.Kind)).Info("Created task")
	return r.GetTask(task.ID)
}

// UpdatePayload merges a corrective patch into a task's payload
func (r *Repository) UpdatePayload(id string, patch types.PayloadPatch) (*types.StageTask, error) {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to marshal payload patch", err)
	}

	query := `UPDATE stage_tasks SET payload = payload || $1::jsonb, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(query, patchJSON, time.Now().In(types.ClinicZone), id)
	if err != nil {
		r.logger.WithError(err).Errorf("Failed to update payload of task %s", id)
		return nil, types.NewStoreUnavailableError("failed to update payload", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, types.NewStoreUnavailableError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, types.NewNotFoundError(types.ErrCodeTaskNotFound, fmt.Sprintf("task not found: %s", id))
	}

	return r.GetTask(id)
}

// completeInTx runs the conditional completion inside a transaction:
// CAS on actual, next-stage seeding, payload merge.
func (r *Repository) completeInTx(tx *sql.Tx, id string, stageIndex int, patch types.PayloadPatch, now time.Time, seedNext bool) error {
	result, err := tx.Exec(`
		UPDATE task_stages SET actual = $1
		WHERE task_id = $2 AND stage_index = $3
		  AND planned IS NOT NULL AND actual IS NULL`,
		now, id, stageIndex)
	if err != nil {
		return types.NewStoreUnavailableError("failed to complete stage", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewStoreUnavailableError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return r.diagnoseCompletionFailure(tx, id, stageIndex)
	}

	if seedNext {
		if _, err := tx.Exec(`
			UPDATE task_stages SET planned = $1
			WHERE task_id = $2 AND stage_index = $3 AND planned IS NULL`,
			now, id, stageIndex+1); err != nil {
			return types.NewStoreUnavailableError("failed to seed next stage", err)
		}
	}

	patchJSON := []byte(`{}`)
	if len(patch) > 0 {
		patchJSON, err = json.Marshal(patch)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to marshal payload patch", err)
		}
	}
	if _, err := tx.Exec(`
		UPDATE stage_tasks SET payload = payload || $1::jsonb, updated_at = $2
		WHERE id = $3`,
		patchJSON, now, id); err != nil {
		return types.NewStoreUnavailableError("failed to merge payload", err)
	}

	return nil
}

// diagnoseCompletionFailure distinguishes why a conditional completion
// matched no row: missing task, missing stage, lost race, or a stage
// that was never opened.
func (r *Repository) diagnoseCompletionFailure(tx *sql.Tx, id string, stageIndex int) error {
	var planned, actual sql.NullTime
	err := tx.QueryRow(`SELECT planned, actual FROM task_stages WHERE task_id = $1 AND stage_index = $2`,
		id, stageIndex).Scan(&planned, &actual)

	if err == sql.ErrNoRows {
		var one int
		if err := tx.QueryRow(`SELECT 1 FROM stage_tasks WHERE id = $1`, id).Scan(&one); err == sql.ErrNoRows {
			return types.NewNotFoundError(types.ErrCodeTaskNotFound, fmt.Sprintf("task not found: %s", id))
		} else if err != nil {
			return types.NewStoreUnavailableError("failed to diagnose completion failure", err)
		}
		return types.NewValidationError(types.ErrCodeStageOutOfRange,
			fmt.Sprintf("task %s has no stage %d", id, stageIndex), nil)
	}
	if err != nil {
		return types.NewStoreUnavailableError("failed to diagnose completion failure", err)
	}

	if actual.Valid {
		return types.NewAlreadyCompletedError(id, stageIndex)
	}
	return types.NewValidationError(types.ErrCodeStageNotOpened,
		fmt.Sprintf("stage %d of task %s was never opened", stageIndex, id), nil)
}

// insertInTx inserts a task row and its stage chain
func (r *Repository) insertInTx(tx *sql.Tx, task *types.StageTask) error {
	payloadJSON := []byte(`{}`)
	if len(task.Payload) > 0 {
		var err error
		payloadJSON, err = json.Marshal(task.Payload)
		if err != nil {
			return types.NewInternalError(types.ErrCodeInternalError, "failed to marshal payload", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO stage_tasks (id, kind, subject_ref, completion_kind, capture_schema, fork_kind, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID,
		string(task.Kind),
		task.SubjectRef,
		string(task.CompletionKind),
		nullString(task.CaptureSchema),
		nullString(string(task.ForkKind)),
		payloadJSON,
		task.CreatedAt,
		task.UpdatedAt,
	); err != nil {
		return types.NewStoreUnavailableError("failed to insert task", err)
	}

	for i, stage := range task.Stages {
		if _, err := tx.Exec(`
			INSERT INTO task_stages (task_id, stage_index, planned, actual)
			VALUES ($1, $2, $3, $4)`,
			task.ID, i+1, nullTime(stage.Planned), nullTime(stage.Actual),
		); err != nil {
			return types.NewStoreUnavailableError("failed to insert task stage", err)
		}
	}

	return nil
}

// loadStages fetches the stage chains for a set of tasks in one query
func (r *Repository) loadStages(ids []string) (map[string][]types.Stage, error) {
	rows, err := r.db.Query(`
		SELECT task_id, stage_index, planned, actual
		FROM task_stages
		WHERE task_id = ANY($1)
		ORDER BY task_id, stage_index`,
		pq.Array(ids))
	if err != nil {
		return nil, types.NewStoreUnavailableError("failed to load task stages", err)
	}
	defer rows.Close()

	stages := make(map[string][]types.Stage, len(ids))
	for rows.Next() {
		var taskID string
		var index int
		var planned, actual sql.NullTime
		if err := rows.Scan(&taskID, &index, &planned, &actual); err != nil {
			return nil, types.NewStoreUnavailableError("failed to scan task stage", err)
		}
		stages[taskID] = append(stages[taskID], types.Stage{
			Planned: timePtr(planned),
			Actual:  timePtr(actual),
		})
	}
	if err = rows.Err(); err != nil {
		return nil, types.NewStoreUnavailableError("error iterating task stages", err)
	}

	return stages, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask scans one stage_tasks row (without the stage chain)
func scanTask(row rowScanner) (*types.StageTask, error) {
	task := &types.StageTask{}
	var captureSchema, forkKind sql.NullString
	var payloadJSON []byte

	if err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.SubjectRef,
		&task.CompletionKind,
		&captureSchema,
		&forkKind,
		&payloadJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.CaptureSchema = captureSchema.String
	task.ForkKind = types.TaskKind(forkKind.String)

	task.Payload = map[string]interface{}{}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	return task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}
