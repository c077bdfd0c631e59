package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

func TestClassifyVerdicts(t *testing.T) {
	classifier := NewClassifier(5)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	tests := []struct {
		name    string
		planned *time.Time
		actual  *time.Time
		now     time.Time
		want    types.Verdict
	}{
		{
			name: "no planned time",
			now:  base,
			want: types.Verdict{Kind: types.VerdictNoPlan},
		},
		{
			name:    "exactly on time",
			planned: &base,
			now:     base,
			want:    types.Verdict{Kind: types.VerdictOnTime},
		},
		{
			name:    "at the grace boundary",
			planned: &base,
			now:     base.Add(5 * time.Minute),
			want:    types.Verdict{Kind: types.VerdictOnTime},
		},
		{
			name:    "just past the grace boundary",
			planned: &base,
			now:     base.Add(5*time.Minute + time.Second),
			want:    types.Verdict{Kind: types.VerdictDelayed, Hours: 0, Minutes: 5},
		},
		{
			name:    "delayed by forty minutes",
			planned: &base,
			now:     base.Add(40 * time.Minute),
			want:    types.Verdict{Kind: types.VerdictDelayed, Hours: 0, Minutes: 40},
		},
		{
			name:    "delayed past an hour",
			planned: &base,
			now:     base.Add(95 * time.Minute),
			want:    types.Verdict{Kind: types.VerdictDelayed, Hours: 1, Minutes: 35},
		},
		{
			name:    "early",
			planned: &base,
			now:     base.Add(-10 * time.Minute),
			want:    types.Verdict{Kind: types.VerdictEarly, Hours: 0, Minutes: 10},
		},
		{
			name:    "early by more than an hour",
			planned: &base,
			now:     base.Add(-130 * time.Minute),
			want:    types.Verdict{Kind: types.VerdictEarly, Hours: 2, Minutes: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.planned, tt.actual, tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifySettledAgainstActual(t *testing.T) {
	classifier := NewClassifier(5)
	planned := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)
	actual := planned.Add(25 * time.Minute)

	// now is far in the future; a settled verdict must ignore it
	got := classifier.Classify(&planned, &actual, planned.Add(6*time.Hour))

	assert.Equal(t, types.VerdictDelayed, got.Kind)
	assert.Equal(t, 0, got.Hours)
	assert.Equal(t, 25, got.Minutes)
	assert.True(t, got.Settled)
}

func TestClassifyLiveVerdictIsNotSettled(t *testing.T) {
	classifier := NewClassifier(5)
	planned := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	got := classifier.Classify(&planned, nil, planned.Add(10*time.Minute))

	assert.Equal(t, types.VerdictDelayed, got.Kind)
	assert.False(t, got.Settled)
}

func TestNewClassifierGraceFallback(t *testing.T) {
	classifier := NewClassifier(-1)
	planned := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	got := classifier.Classify(&planned, nil, planned.Add(4*time.Minute))
	assert.Equal(t, types.VerdictOnTime, got.Kind)

	got = classifier.Classify(&planned, nil, planned.Add(6*time.Minute))
	assert.Equal(t, types.VerdictDelayed, got.Kind)
}

func TestClassifyZeroGrace(t *testing.T) {
	classifier := NewClassifier(0)
	planned := time.Date(2025, 3, 10, 9, 0, 0, 0, types.ClinicZone)

	got := classifier.Classify(&planned, nil, planned.Add(time.Minute))
	assert.Equal(t, types.VerdictDelayed, got.Kind)
	assert.Equal(t, 1, got.Minutes)
}
