package sched

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusEvents(t *testing.T) {
	s, mc := newTestScheduler(t)

	var kinds []StatusKind
	s.OnEvent(func(ev StatusEvent) { kinds = append(kinds, ev.Kind) })

	owner := NewOwner()
	submit(t, s, &workload{mc: mc, steps: 1})
	submit(t, s, ComputationFunc(func(*Budget) StepResult { return Fail(errors.New("broken")) }))
	submit(t, s, &workload{mc: mc}, WithOwner(owner))
	require.NoError(t, s.Tick(0))
	s.CancelGroup(owner)

	assert.Equal(t, []StatusKind{
		StatusEnqueue, StatusEnqueue, StatusEnqueue,
		StatusAdvance, StatusFinish,
		StatusAdvance, StatusFail,
		StatusAdvance,
		StatusTick,
		StatusCancel,
	}, kinds)
}

func TestCSVTrace(t *testing.T) {
	s, mc := newTestScheduler(t)
	path := filepath.Join(t.TempDir(), "trace.csv")
	require.NoError(t, s.EnableCSVTrace(path))

	submit(t, s, &workload{mc: mc, steps: 1}, WithName("voxelize"))
	require.NoError(t, s.Tick(0))
	require.NoError(t, s.Shutdown())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "Enqueued", rows[1][2])
	assert.Equal(t, "voxelize", rows[1][4])
	assert.Equal(t, "Advance", rows[2][2])
	assert.Equal(t, "1", rows[2][1])
	assert.Equal(t, "Finish", rows[3][2])
	assert.Equal(t, "Tick", rows[4][2])
}

func TestEnableCSVTraceBadPath(t *testing.T) {
	s, _ := newTestScheduler(t)
	err := s.EnableCSVTrace(filepath.Join(t.TempDir(), "missing", "trace.csv"))
	assert.Error(t, err)
}

func TestStatusKindString(t *testing.T) {
	assert.Equal(t, "Cancel", StatusCancel.String())
	assert.Equal(t, "Unknown", StatusKind(99).String())
	assert.Equal(t, "WaitTask", StepWaitTask.String())
	assert.Equal(t, "StepKind(9)", StepKind(9).String())
}
