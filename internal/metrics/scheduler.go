package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics records the metrics of one scheduler.
// All methods are no-ops on a nil receiver so callers need no enabled check.
type SchedulerMetrics struct {
	ticks           prometheus.Counter
	tickOverruns    prometheus.Counter
	tasksSubmitted  prometheus.Counter
	tasksAdvanced   prometheus.Counter
	tasksCompleted  prometheus.Counter
	tasksFailed     prometheus.Counter
	tasksCancelled  prometheus.Counter
	advanceDuration prometheus.Observer
	timeSlice       prometheus.Gauge
	targetTick      prometheus.Gauge
	runningTasks    prometheus.Gauge
	pendingTasks    prometheus.Gauge
}

// Submitted counts one submitted task.
func (m *SchedulerMetrics) Submitted() {
	if m == nil {
		return
	}
	m.tasksSubmitted.Inc()
}

// Advanced records one task advance taking elapsed.
func (m *SchedulerMetrics) Advanced(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksAdvanced.Inc()
	m.advanceDuration.Observe(elapsed.Seconds())
}

// Completed counts one task that finished its work.
func (m *SchedulerMetrics) Completed() {
	if m == nil {
		return
	}
	m.tasksCompleted.Inc()
}

// Failed counts one task terminated by an error.
func (m *SchedulerMetrics) Failed() {
	if m == nil {
		return
	}
	m.tasksFailed.Inc()
}

// Cancelled counts n cancelled tasks.
func (m *SchedulerMetrics) Cancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tasksCancelled.Add(float64(n))
}

// Tick records the state at the end of a tick.
func (m *SchedulerMetrics) Tick(slice, target time.Duration, running, pending int, overrun bool) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	if overrun {
		m.tickOverruns.Inc()
	}
	m.timeSlice.Set(slice.Seconds())
	m.targetTick.Set(target.Seconds())
	m.runningTasks.Set(float64(running))
	m.pendingTasks.Set(float64(pending))
}
