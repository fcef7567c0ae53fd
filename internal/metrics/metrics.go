// Package metrics provides Prometheus instrumentation for the tick scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ticksched"

// Registry holds all metric instances of a scheduler.
type Registry struct {
	Ticks          *prometheus.CounterVec
	TickOverruns   *prometheus.CounterVec
	TasksSubmitted *prometheus.CounterVec
	TasksAdvanced  *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksCancelled *prometheus.CounterVec

	AdvanceDuration *prometheus.HistogramVec

	TimeSlice    *prometheus.GaugeVec
	TargetTick   *prometheus.GaugeVec
	RunningTasks *prometheus.GaugeVec
	PendingTasks *prometheus.GaugeVec
}

// NewRegistry creates a metrics registry registered with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := []string{"scheduler_name"}

	counter := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Registry{
		Ticks:          counter("ticks_total", "Total number of scheduler ticks"),
		TickOverruns:   counter("tick_overruns_total", "Ticks whose advances used more than the time slice"),
		TasksSubmitted: counter("tasks_submitted_total", "Total number of tasks submitted"),
		TasksAdvanced:  counter("tasks_advanced_total", "Total number of task advances"),
		TasksCompleted: counter("tasks_completed_total", "Total number of tasks that finished their work"),
		TasksFailed:    counter("tasks_failed_total", "Total number of tasks terminated by an error"),
		TasksCancelled: counter("tasks_cancelled_total", "Total number of tasks cancelled by owner"),

		AdvanceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "advance_duration_seconds",
			Help:      "Wall time spent in a single task advance",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, labels),

		TimeSlice:    gauge("time_slice_seconds", "Smoothed per-tick time slice shared by tasks"),
		TargetTick:   gauge("target_tick_seconds", "Adaptive target tick duration"),
		RunningTasks: gauge("running_tasks", "Tasks in the running set"),
		PendingTasks: gauge("pending_tasks", "Tasks submitted but not yet merged into the running set"),
	}
}

// Scheduler returns the per-scheduler view of r, bound to name.
func (r *Registry) Scheduler(name string) *SchedulerMetrics {
	if r == nil {
		return nil
	}
	l := prometheus.Labels{"scheduler_name": name}
	return &SchedulerMetrics{
		ticks:           r.Ticks.With(l),
		tickOverruns:    r.TickOverruns.With(l),
		tasksSubmitted:  r.TasksSubmitted.With(l),
		tasksAdvanced:   r.TasksAdvanced.With(l),
		tasksCompleted:  r.TasksCompleted.With(l),
		tasksFailed:     r.TasksFailed.With(l),
		tasksCancelled:  r.TasksCancelled.With(l),
		advanceDuration: r.AdvanceDuration.With(l),
		timeSlice:       r.TimeSlice.With(l),
		targetTick:      r.TargetTick.With(l),
		runningTasks:    r.RunningTasks.With(l),
		pendingTasks:    r.PendingTasks.With(l),
	}
}
