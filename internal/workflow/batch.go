package workflow

import (
	"errors"
	"sync"
	"time"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/logger"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/monitoring"
	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// BatchCoordinator applies the same transition to a set of selected
// tasks as one logical operation. Items are independent records, so
// they may run concurrently; there is no cross-record transaction and
// no ordering guarantee between items.
type BatchCoordinator struct {
	executor    *Executor
	concurrency int
	metrics     *monitoring.MetricsCollector
	logger      *logger.Logger
}

// NewBatchCoordinator creates a new batch coordinator
func NewBatchCoordinator(executor *Executor, concurrency int, metrics *monitoring.MetricsCollector, log *logger.Logger) *BatchCoordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchCoordinator{
		executor:    executor,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      log,
	}
}

// CompleteMany completes the given stage on every selected task and
// reports each outcome individually. Partial success is a valid,
// reportable result: the returned error is non-nil only when the batch
// is empty or every item failed, and the per-item results are returned
// either way.
func (b *BatchCoordinator) CompleteMany(kind types.TaskKind, taskIDs []string, stageIndex int, patches map[string]types.PayloadPatch, now time.Time) (*types.BatchResult, error) {
	if len(taskIDs) == 0 {
		return nil, types.NewValidationError(types.ErrCodeEmptyBatch, "no tasks selected", nil)
	}

	// The UI's select-then-submit flow can hand us the same row twice;
	// each id is processed and reported exactly once.
	ids := dedupe(taskIDs)

	results := make([]types.BatchItemResult, len(ids))
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			task, err := b.executor.Complete(id, stageIndex, patches[id], now)
			item := types.BatchItemResult{TaskID: id, Task: task, Err: err}
			if err != nil {
				item.Error = err.Error()
			}
			results[i] = item
		}(i, id)
	}
	wg.Wait()

	result := &types.BatchResult{Items: results}
	for _, item := range results {
		outcome := "success"
		if item.Err != nil {
			result.Failed++
			var wfErr *types.WorkflowError
			if errors.As(item.Err, &wfErr) {
				outcome = string(wfErr.Type)
			} else {
				outcome = "error"
			}
		} else {
			result.Succeeded++
		}
		b.metrics.RecordBatchItem(string(kind), outcome)
	}

	b.logger.WithFields(map[string]interface{}{
		"kind":        string(kind),
		"stage_index": stageIndex,
		"selected":    len(ids),
		"succeeded":   result.Succeeded,
		"failed":      result.Failed,
	}).Info("Batch completion finished")

	if result.AllFailed() {
		return result, types.NewInternalError(types.ErrCodeInternalError,
			"every task in the batch failed", result.Items[0].Err)
	}

	return result, nil
}

// dedupe keeps the first occurrence of each id, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
