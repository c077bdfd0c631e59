package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

func newTestQueryEngine(store *fakeStore) *QueryEngine {
	return NewQueryEngine(store, NewClassifier(DefaultGraceMinutes), testMetrics(), testLogger())
}

func TestPendingOrderedByPlanned(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	late := newTestTask(store, types.KindLabUSG, base)
	mid := newTestTask(store, types.KindLabUSG, base.Add(30*time.Minute))
	fresh := newTestTask(store, types.KindLabUSG, base.Add(2*time.Hour))

	pending, err := newTestQueryEngine(store).Pending(types.KindLabUSG, 1)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	// earliest planned first, so the most overdue work leads
	assert.Equal(t, late.ID, pending[0].Task.ID)
	assert.Equal(t, mid.ID, pending[1].Task.ID)
	assert.Equal(t, fresh.ID, pending[2].Task.ID)
}

func TestPendingCarriesLiveVerdicts(t *testing.T) {
	store := newFakeStore()
	planned := time.Now().In(types.ClinicZone).Add(-40 * time.Minute)
	task := newTestTask(store, types.KindDischarge, planned)

	pending, err := newTestQueryEngine(store).Pending(types.KindDischarge, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	assert.Equal(t, task.ID, pending[0].Task.ID)
	assert.Equal(t, types.VerdictDelayed, pending[0].Verdict.Kind)
	assert.False(t, pending[0].Verdict.Settled)
	assert.Equal(t, 0, pending[0].Verdict.Hours)
	assert.GreaterOrEqual(t, pending[0].Verdict.Minutes, 40)
}

func TestPendingExcludesLaterStages(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	atOne := newTestTask(store, types.KindDischarge, base)
	atTwo := newTestTask(store, types.KindDischarge, base)
	advanceTask(store, atTwo, 1, base.Add(10*time.Minute))

	engine := newTestQueryEngine(store)

	stageOne, err := engine.Pending(types.KindDischarge, 1)
	require.NoError(t, err)
	require.Len(t, stageOne, 1)
	assert.Equal(t, atOne.ID, stageOne[0].Task.ID)

	stageTwo, err := engine.Pending(types.KindDischarge, 2)
	require.NoError(t, err)
	require.Len(t, stageTwo, 1)
	assert.Equal(t, atTwo.ID, stageTwo[0].Task.ID)
}

func TestHistoryOrderedByActualDescending(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	first := newTestTask(store, types.KindNurseTask, base)
	advanceTask(store, first, 1, base.Add(10*time.Minute))
	second := newTestTask(store, types.KindNurseTask, base)
	advanceTask(store, second, 1, base.Add(50*time.Minute))

	history, err := newTestQueryEngine(store).History(types.KindNurseTask, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// most recent completion first
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestQueryEmptyStageIsNotAnError(t *testing.T) {
	store := newFakeStore()
	engine := newTestQueryEngine(store)

	pending, err := engine.Pending(types.KindPharmacyIndent, 1)
	require.NoError(t, err)
	assert.Empty(t, pending)

	history, err := engine.History(types.KindPharmacyIndent, 1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestQueryRejectsBadStageRefs(t *testing.T) {
	engine := newTestQueryEngine(newFakeStore())

	_, err := engine.Pending("no-such-kind", 1)
	assert.True(t, types.IsValidation(err))

	_, err = engine.Pending(types.KindNurseTask, 0)
	assert.True(t, types.IsValidation(err))

	_, err = engine.History(types.KindNurseTask, 5)
	assert.True(t, types.IsValidation(err))
}
