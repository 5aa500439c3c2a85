package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Jinn-Network/jinn-worker/core/cycle"
	wkerrors "github.com/Jinn-Network/jinn-worker/infrastructure/errors"
)

func TestExitCodeForStuckCyclesReturnsTwo(t *testing.T) {
	w := &Worker{}
	assert.Equal(t, ExitStuckCycles, w.exitCodeFor(cycle.StopReasonStuckCycles))
}

func TestExitCodeForOtherReasonsReturnSuccess(t *testing.T) {
	w := &Worker{}
	assert.Equal(t, ExitSuccess, w.exitCodeFor(cycle.StopReasonStopFile))
	assert.Equal(t, ExitSuccess, w.exitCodeFor(cycle.StopReasonMaxRuns))
	assert.Equal(t, ExitSuccess, w.exitCodeFor(cycle.StopReasonMaxCycles))
}

func TestReportReflectsWorkerState(t *testing.T) {
	w := &Worker{state: &WorkerState{cycles: 4, lastRequestID: "req-9"}}
	got := w.report("max_runs_reached")
	assert.Equal(t, Report{CyclesRun: 4, LastRequestID: "req-9", ExitReason: "max_runs_reached"}, got)
}

func TestRecordPhaseErrorNoPanicWithoutMetrics(t *testing.T) {
	w := &Worker{}
	assert.NotPanics(t, func() {
		w.recordPhaseError("discovery", wkerrors.ErrCodeIndexerUnavailable, errors.New("boom"))
	})
}
