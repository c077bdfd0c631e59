package workflow

import (
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/interfaces"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/logger"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// LogNotifier emits task outcome notifications to the application log.
// The ward notification channel consumes the same structured fields, so
// a push-backed implementation can replace this one without touching
// the engine.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(log *logger.Logger) interfaces.Notifier {
	return &LogNotifier{logger: log}
}

// NotifyCompleted announces a completed stage
func (n *LogNotifier) NotifyCompleted(task *types.StageTask, stageIndex int) {
	label := ""
	if spec, ok := types.SpecFor(task.Kind); ok && stageIndex >= 1 && stageIndex <= len(spec.StageLabels) {
		label = spec.StageLabels[stageIndex-1]
	}

	n.logger.WithFields(map[string]interface{}{
		"notification": "stage_completed",
		"task_id":      task.ID,
		"kind":         string(task.Kind),
		"subject_ref":  task.SubjectRef,
		"stage_index":  stageIndex,
		"stage_label":  label,
	}).Info("Stage completed notification")
}

// NotifyFailed announces a failed completion attempt
func (n *LogNotifier) NotifyFailed(taskID string, stageIndex int, err error) {
	n.logger.WithFields(map[string]interface{}{
		"notification": "stage_failed",
		"task_id":      taskID,
		"stage_index":  stageIndex,
	}).WithError(err).Warn("Stage completion failed notification")
}
