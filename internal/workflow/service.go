package workflow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/config"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/database"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/interfaces"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/logger"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/monitoring"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// Service implements the WorkflowService interface
type Service struct {
	config   *config.Config
	logger   *logger.Logger
	db       *database.DB
	store    interfaces.TaskStore
	validate *validator.Validate

	classifier *Classifier
	resolver   *BranchResolver
	executor   *Executor
	queries    *QueryEngine
	batch      *BatchCoordinator
	notifier   interfaces.Notifier

	metrics *monitoring.MetricsCollector
	health  *monitoring.HealthManager
	server  *http.Server
}

// New creates a new workflow service backed by PostgreSQL
func New(cfg *config.Config, log *logger.Logger) interfaces.WorkflowService {
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.CreateSchema(ctx); err != nil {
		log.WithError(err).Error("Failed to create database schema")
		panic(err)
	}

	store := NewRepository(db, log)

	svc := newService(cfg, store, log)
	svc.db = db

	svc.health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	return svc
}

// NewWithStore creates a workflow service on an externally provided
// task store. Used by tests and by embedders that bring their own
// persistence.
func NewWithStore(cfg *config.Config, store interfaces.TaskStore, log *logger.Logger) *Service {
	return newService(cfg, store, log)
}

func newService(cfg *config.Config, store interfaces.TaskStore, log *logger.Logger) *Service {
	metrics := monitoring.NewMetricsCollector("workflow-service")

	classifier := NewClassifier(cfg.Workflow.GraceMinutes)
	resolver := NewBranchResolver(log)
	executor := NewExecutor(store, resolver, metrics, log)

	return &Service{
		config:     cfg,
		logger:     log,
		store:      store,
		validate:   validator.New(),
		classifier: classifier,
		resolver:   resolver,
		executor:   executor,
		queries:    NewQueryEngine(store, classifier, metrics, log),
		batch:      NewBatchCoordinator(executor, cfg.Workflow.BatchConcurrency, metrics, log),
		notifier:   NewLogNotifier(log),
		metrics:    metrics,
		health:     monitoring.NewHealthManager("workflow-service"),
	}
}

// CreateTask opens a new task at stage 1. The completion behavior is
// resolved from the description once, here, and persisted on the task.
func (s *Service) CreateTask(input *types.NewTaskInput, userID string) (*types.StageTask, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, types.NewValidationError(types.ErrCodeMissingField,
			fmt.Sprintf("invalid task input: %v", err), nil)
	}

	spec, ok := types.SpecFor(input.Kind)
	if !ok {
		return nil, types.NewValidationError(types.ErrCodeUnknownKind,
			fmt.Sprintf("unknown task kind: %s", input.Kind), nil)
	}

	completion, schemaID, forkKind := s.resolver.ResolveAtCreation(input.Description)

	now := time.Now().In(types.ClinicZone)
	planned := now
	if input.PlannedAt != nil {
		planned = input.PlannedAt.In(types.ClinicZone)
	}

	stages := make([]types.Stage, spec.StageCount)
	stages[0].Planned = &planned

	payload := map[string]interface{}{}
	for k, v := range input.Payload {
		payload[k] = v
	}
	if input.Description != "" {
		payload["description"] = input.Description
	}

	task := &types.StageTask{
		ID:             uuid.New().String(),
		Kind:           input.Kind,
		SubjectRef:     input.SubjectRef,
		Stages:         stages,
		CompletionKind: completion,
		CaptureSchema:  schemaID,
		ForkKind:       forkKind,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.store.InsertTask(task)
	if err != nil {
		s.logger.Audit(userID, "create_task", string(input.Kind), false, map[string]interface{}{"error": err.Error()})
		return nil, asStoreError(err)
	}

	s.logger.Audit(userID, "create_task", created.ID, true, map[string]interface{}{
		"kind":            string(created.Kind),
		"completion_kind": string(created.CompletionKind),
	})
	return created, nil
}

// GetTask retrieves a task by id
func (s *Service) GetTask(taskID, userID string) (*types.StageTask, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, asStoreError(err)
	}
	return task, nil
}

// EditPayload merges a corrective patch into a task's payload. Only
// kinds that declare an editable window allow this, and only while the
// task has not advanced past that window.
func (s *Service) EditPayload(taskID string, patch types.PayloadPatch, userID string) (*types.StageTask, error) {
	if len(patch) == 0 {
		return nil, types.NewValidationError(types.ErrCodeMissingField, "payload patch is empty", nil)
	}

	task, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, asStoreError(err)
	}

	spec, ok := types.SpecFor(task.Kind)
	if !ok {
		return nil, types.NewValidationError(types.ErrCodeUnknownKind,
			fmt.Sprintf("unknown task kind: %s", task.Kind), nil)
	}

	if spec.PayloadEditableUntil == 0 {
		return nil, types.NewValidationError(types.ErrCodePayloadLocked,
			fmt.Sprintf("kind %s does not allow payload edits", task.Kind), nil)
	}

	current := task.CurrentStage()
	if current == 0 || current > spec.PayloadEditableUntil {
		return nil, types.NewValidationError(types.ErrCodePayloadLocked,
			fmt.Sprintf("task %s is past its editable window", taskID),
			map[string]interface{}{"editable_until": spec.PayloadEditableUntil})
	}

	updated, err := s.store.UpdatePayload(taskID, patch)
	if err != nil {
		return nil, asStoreError(err)
	}

	s.logger.Audit(userID, "edit_payload", taskID, true, map[string]interface{}{"kind": string(task.Kind)})
	return updated, nil
}

// Pending returns the pending view of one pipeline stage
func (s *Service) Pending(kind types.TaskKind, stageIndex int) ([]*types.PendingTask, error) {
	return s.queries.Pending(kind, stageIndex)
}

// History returns the history view of one pipeline stage
func (s *Service) History(kind types.TaskKind, stageIndex int) ([]*types.StageTask, error) {
	return s.queries.History(kind, stageIndex)
}

// Complete applies a single stage completion
func (s *Service) Complete(taskID string, stageIndex int, patch types.PayloadPatch, userID string) (*types.StageTask, error) {
	now := time.Now().In(types.ClinicZone)

	task, err := s.executor.Complete(taskID, stageIndex, patch, now)
	if err != nil && !types.IsForkPartial(err) {
		s.notifier.NotifyFailed(taskID, stageIndex, err)
		s.logger.Audit(userID, "complete_stage", taskID, false, map[string]interface{}{
			"stage_index": stageIndex,
			"error":       err.Error(),
		})
		return nil, err
	}

	s.notifier.NotifyCompleted(task, stageIndex)
	s.logger.Audit(userID, "complete_stage", taskID, true, map[string]interface{}{
		"stage_index": stageIndex,
		"kind":        string(task.Kind),
	})
	return task, err
}

// CompleteMany applies the same stage completion to a set of tasks and
// reports per-item outcomes
func (s *Service) CompleteMany(kind types.TaskKind, taskIDs []string, stageIndex int, patches map[string]types.PayloadPatch, userID string) (*types.BatchResult, error) {
	if err := validateStageRef(kind, stageIndex); err != nil {
		return nil, err
	}

	now := time.Now().In(types.ClinicZone)
	result, err := s.batch.CompleteMany(kind, taskIDs, stageIndex, patches, now)
	if result != nil {
		s.logger.Audit(userID, "complete_batch", string(kind), !result.AllFailed(), map[string]interface{}{
			"stage_index": stageIndex,
			"succeeded":   result.Succeeded,
			"failed":      result.Failed,
		})
	}
	return result, err
}

// Start starts the workflow service HTTP server
func (s *Service) Start(addr string) error {
	router := mux.NewRouter()
	if s.config.Monitoring.Enabled {
		router.Use(s.metrics.HTTPMiddleware)
	}
	s.setupRoutes(router)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.Infof("Starting Workflow Service on %s", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the workflow service
func (s *Service) Stop() error {
	if s.server != nil {
		s.logger.Info("Stopping Workflow Service")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
