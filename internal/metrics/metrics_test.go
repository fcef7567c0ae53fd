package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	m := r.Scheduler("editor")

	m.Submitted()
	m.Submitted()
	m.Advanced(2 * time.Millisecond)
	m.Completed()
	m.Failed()
	m.Cancelled(3)
	m.Cancelled(0)
	m.Tick(10*time.Millisecond, 40*time.Millisecond, 4, 1, true)
	m.Tick(10*time.Millisecond, 40*time.Millisecond, 4, 1, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.TasksSubmitted.WithLabelValues("editor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TasksAdvanced.WithLabelValues("editor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TasksCompleted.WithLabelValues("editor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TasksFailed.WithLabelValues("editor")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.TasksCancelled.WithLabelValues("editor")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Ticks.WithLabelValues("editor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TickOverruns.WithLabelValues("editor")))
	assert.Equal(t, 0.01, testutil.ToFloat64(r.TimeSlice.WithLabelValues("editor")))
	assert.Equal(t, 0.04, testutil.ToFloat64(r.TargetTick.WithLabelValues("editor")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.RunningTasks.WithLabelValues("editor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PendingTasks.WithLabelValues("editor")))

	n, err := testutil.GatherAndCount(reg, "ticksched_scheduler_advance_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilSchedulerMetricsIsNoop(t *testing.T) {
	var r *Registry
	m := r.Scheduler("x")
	assert.Nil(t, m)

	assert.NotPanics(t, func() {
		m.Submitted()
		m.Advanced(time.Millisecond)
		m.Completed()
		m.Failed()
		m.Cancelled(1)
		m.Tick(0, 0, 0, 0, false)
	})
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewRegistry(prometheus.NewRegistry())
		NewRegistry(prometheus.NewRegistry())
	})
}
