package workflow

import (
	"time"

	"github.com/Ritu-Bisen/Hospital-management-system-sub001/pkg/types"
)

// DefaultGraceMinutes is the on-time window after a stage's planned
// moment. Deviations inside the window are not reported as delays.
const DefaultGraceMinutes = 5

// Classifier computes lateness verdicts for pipeline stages. It is
// pure: no clock access, no store access.
type Classifier struct {
	grace time.Duration
}

// NewClassifier creates a classifier with the given grace window in
// minutes; values below zero fall back to the default.
func NewClassifier(graceMinutes int) *Classifier {
	if graceMinutes < 0 {
		graceMinutes = DefaultGraceMinutes
	}
	return &Classifier{grace: time.Duration(graceMinutes) * time.Minute}
}

// Classify returns the lateness verdict for one stage. A nil actual
// classifies against now (live delay, still moving); a set actual
// classifies against the completion time (settled delay).
func (c *Classifier) Classify(planned, actual *time.Time, now time.Time) types.Verdict {
	if planned == nil {
		return types.Verdict{Kind: types.VerdictNoPlan}
	}

	ref := now
	settled := false
	if actual != nil {
		ref = *actual
		settled = true
	}

	delta := ref.Sub(*planned)
	if delta < 0 {
		mins := int((-delta).Minutes())
		return types.Verdict{
			Kind:    types.VerdictEarly,
			Hours:   mins / 60,
			Minutes: mins % 60,
			Settled: settled,
		}
	}

	if delta <= c.grace {
		return types.Verdict{Kind: types.VerdictOnTime, Settled: settled}
	}

	mins := int(delta.Minutes())
	return types.Verdict{
		Kind:    types.VerdictDelayed,
		Hours:   mins / 60,
		Minutes: mins % 60,
		Settled: settled,
	}
}
