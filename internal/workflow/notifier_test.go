package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyCompleted(task *types.StageTask, stageIndex int) {
	m.Called(task, stageIndex)
}

func (m *MockNotifier) NotifyFailed(taskID string, stageIndex int, err error) {
	m.Called(taskID, stageIndex, err)
}

func TestServiceNotifiesOnCompletion(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	notifier := new(MockNotifier)
	svc.notifier = notifier

	task := newTestTask(store, types.KindNurseTask, time.Now().In(types.ClinicZone))
	notifier.On("NotifyCompleted", mock.AnythingOfType("*types.StageTask"), 1).Once()

	_, err := svc.Complete(task.ID, 1, nil, "nurse-7")
	require.NoError(t, err)

	notifier.AssertExpectations(t)
}

func TestServiceNotifiesOnFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	notifier := new(MockNotifier)
	svc.notifier = notifier

	notifier.On("NotifyFailed", "missing", 1, mock.Anything).Once()

	_, err := svc.Complete("missing", 1, nil, "nurse-7")
	require.Error(t, err)

	notifier.AssertExpectations(t)
	notifier.AssertNotCalled(t, "NotifyCompleted", mock.Anything, mock.Anything)
}
