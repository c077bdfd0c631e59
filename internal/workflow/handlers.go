package workflow

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// setupRoutes configures HTTP routes for the workflow service
func (s *Service) setupRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	// Task lifecycle
	api.HandleFunc("/tasks", s.createTaskHandler).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.getTaskHandler).Methods("GET")
	api.HandleFunc("/tasks/{id}/payload", s.editPayloadHandler).Methods("PATCH")

	// Transitions
	api.HandleFunc("/tasks/{id}/stages/{index}/complete", s.completeStageHandler).Methods("POST")
	api.HandleFunc("/pipelines/{kind}/stages/{index}/complete-batch", s.completeBatchHandler).Methods("POST")

	// Pipeline views
	api.HandleFunc("/pipelines/{kind}/stages/{index}/pending", s.pendingHandler).Methods("GET")
	api.HandleFunc("/pipelines/{kind}/stages/{index}/history", s.historyHandler).Methods("GET")

	// Monitoring
	router.HandleFunc(s.config.Monitoring.HealthPath, s.health.HTTPHandler()).Methods("GET")
	if s.config.Monitoring.Enabled {
		router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")
	}

	s.logger.Info("Workflow service routes configured")
}

// createTaskHandler handles task creation
func (s *Service) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var input types.NewTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	userID := s.getUserIDFromRequest(r)
	task, err := s.CreateTask(&input, userID)
	if err != nil {
		s.writeWorkflowError(w, "Failed to create task", err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, task)
}

// getTaskHandler handles task retrieval
func (s *Service) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	userID := s.getUserIDFromRequest(r)
	task, err := s.GetTask(taskID, userID)
	if err != nil {
		s.writeWorkflowError(w, "Failed to get task", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, task)
}

// editPayloadHandler handles corrective payload edits
func (s *Service) editPayloadHandler(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	var patch types.PayloadPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	userID := s.getUserIDFromRequest(r)
	task, err := s.EditPayload(taskID, patch, userID)
	if err != nil {
		s.writeWorkflowError(w, "Failed to edit payload", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, task)
}

// completeStageRequest is the body of a single stage completion
type completeStageRequest struct {
	Payload types.PayloadPatch `json:"payload"`
}

// completeStageHandler handles a single stage completion
func (s *Service) completeStageHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	taskID := vars["id"]

	stageIndex, err := strconv.Atoi(vars["index"])
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid stage index", err)
		return
	}

	var req completeStageRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	userID := s.getUserIDFromRequest(r)
	task, err := s.Complete(taskID, stageIndex, req.Payload, userID)
	if err != nil {
		if types.IsForkPartial(err) {
			// The completion itself stuck; the fork needs reconciliation.
			s.writeJSONResponse(w, http.StatusBadGateway, map[string]interface{}{
				"task":  task,
				"error": err.Error(),
			})
			return
		}
		s.writeWorkflowError(w, "Failed to complete stage", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, task)
}

// completeBatchRequest is the body of a batch completion
type completeBatchRequest struct {
	TaskIDs  []string                      `json:"task_ids"`
	Payloads map[string]types.PayloadPatch `json:"payloads"`
}

// completeBatchHandler handles a batch stage completion
func (s *Service) completeBatchHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind := types.TaskKind(vars["kind"])

	stageIndex, err := strconv.Atoi(vars["index"])
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid stage index", err)
		return
	}

	var req completeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	userID := s.getUserIDFromRequest(r)
	result, err := s.CompleteMany(kind, req.TaskIDs, stageIndex, req.Payloads, userID)
	if err != nil && result == nil {
		s.writeWorkflowError(w, "Failed to complete batch", err)
		return
	}

	// Partial success, and even total failure of individual items, is a
	// reportable outcome; per-item errors are in the items themselves.
	s.writeJSONResponse(w, http.StatusOK, result)
}

// pendingHandler returns the pending view of a pipeline stage
func (s *Service) pendingHandler(w http.ResponseWriter, r *http.Request) {
	kind, stageIndex, ok := s.parseStageRef(w, r)
	if !ok {
		return
	}

	pending, err := s.Pending(kind, stageIndex)
	if err != nil {
		s.writeWorkflowError(w, "Failed to query pending tasks", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"kind":        kind,
		"stage_index": stageIndex,
		"tasks":       pending,
	})
}

// historyHandler returns the history view of a pipeline stage
func (s *Service) historyHandler(w http.ResponseWriter, r *http.Request) {
	kind, stageIndex, ok := s.parseStageRef(w, r)
	if !ok {
		return
	}

	history, err := s.History(kind, stageIndex)
	if err != nil {
		s.writeWorkflowError(w, "Failed to query task history", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"kind":        kind,
		"stage_index": stageIndex,
		"tasks":       history,
	})
}

// parseStageRef extracts the kind and stage index path variables
func (s *Service) parseStageRef(w http.ResponseWriter, r *http.Request) (types.TaskKind, int, bool) {
	vars := mux.Vars(r)

	stageIndex, err := strconv.Atoi(vars["index"])
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid stage index", err)
		return "", 0, false
	}

	return types.TaskKind(vars["kind"]), stageIndex, true
}

// getUserIDFromRequest extracts the acting user for audit logging
func (s *Service) getUserIDFromRequest(r *http.Request) string {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = "anonymous"
	}
	return userID
}

// writeWorkflowError maps an engine error onto an HTTP status
func (s *Service) writeWorkflowError(w http.ResponseWriter, message string, err error) {
	s.writeErrorResponse(w, statusForError(err), message, err)
}

// statusForError maps engine error types onto HTTP status codes
func statusForError(err error) int {
	var wfErr *types.WorkflowError
	if !errors.As(err, &wfErr) {
		return http.StatusInternalServerError
	}

	switch wfErr.Type {
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeAlreadyCompleted:
		return http.StatusConflict
	case types.ErrorTypeValidation:
		return http.StatusUnprocessableEntity
	case types.ErrorTypeStoreUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrorTypeForkPartial:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	s.logger.WithError(err).Warn(message)

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	if err != nil {
		response["details"] = err.Error()
		var wfErr *types.WorkflowError
		if errors.As(err, &wfErr) {
			response["code"] = wfErr.Code
		}
	}

	s.writeJSONResponse(w, statusCode, response)
}
