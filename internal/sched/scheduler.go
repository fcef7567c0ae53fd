// internal/sched/scheduler.go

package sched

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"ticksched/internal/metrics"
)

// Smoothing weights of the per-tick time slice and the target adjustment step.
const (
	sliceKeep    = 0.8
	sliceBlend   = 0.2
	targetGrow   = 1.01
	targetShrink = 0.99
)

// Scheduler advances cooperative tasks once per external tick, sharing a
// smoothed time slice between them.
//
// Tick, ShouldYieldNow and everything a task step does run on the host's tick
// goroutine. Submit and CancelGroup may also be called from other goroutines.
type Scheduler struct {
	name    string
	cfg     Config
	clock   *TickClock
	logger  *slog.Logger
	metrics *metrics.SchedulerMetrics

	mu      sync.RWMutex           // protects the registry below
	running *linkedhashmap.Map     // TaskID -> *Task, insertion order
	pending *linkedlistqueue.Queue // *Task submitted since the last merge
	nextID  TaskID
	closed  bool

	hooksMu  sync.RWMutex
	onError  []func(*Task, error)
	onEvent  []func(StatusEvent)
	trace    *csvTrace
	traceErr atomic.Bool

	// tick loop state, owned by the goroutine inside Tick
	ticking    atomic.Bool
	current    *Task
	order      []*Task
	ready      []bool
	completed  []*Task
	timeSlice  time.Duration
	targetTick time.Duration
	last       TickStats
}

// TickStats summarizes one tick.
type TickStats struct {
	Tick       int64
	Advanced   int           // tasks that ran a step
	Skipped    int           // tasks whose wait predicate was not ready
	Reaped     int           // tasks removed because they were done
	Failed     int           // tasks terminated by an error this tick
	TimeSlice  time.Duration // slice shared by the tasks
	TargetTick time.Duration // adaptive target after this tick
	Used       time.Duration // wall time consumed by all advances
}

// Overrun reports whether the advances used more than the time slice.
func (ts TickStats) Overrun() bool { return ts.Used > ts.TimeSlice }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records scheduler metrics into r.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Scheduler) { s.metrics = r.Scheduler(s.name) }
}

// WithClock replaces the wall-time source, e.g. with ManualClock.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.clock = NewTickClock(now) }
}

// New creates a new Scheduler instance with the given configuration.
func New(cfg Config, opts ...Option) *Scheduler {
	cfg = cfg.clamped()
	s := &Scheduler{
		name:       cfg.Name,
		cfg:        cfg,
		clock:      NewTickClock(nil),
		logger:     slog.Default(),
		running:    linkedhashmap.New(),
		pending:    linkedlistqueue.New(),
		timeSlice:  cfg.InitialSlice(),
		targetTick: cfg.TargetTick(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler", "scheduler", s.name)
	return s
}

// Clock returns the tick clock that Frames and Seconds predicates should read.
func (s *Scheduler) Clock() *TickClock { return s.clock }

// Frames is Frames(s.Clock(), n).
func (s *Scheduler) Frames(n int) (WaitPredicate, error) { return Frames(s.clock, n) }

// Seconds is Seconds(s.Clock(), d).
func (s *Scheduler) Seconds(d time.Duration) (WaitPredicate, error) { return Seconds(s.clock, d) }

// TimeSlice returns the current smoothed time slice.
func (s *Scheduler) TimeSlice() time.Duration { return s.timeSlice }

// TargetTick returns the current adaptive target tick duration.
func (s *Scheduler) TargetTick() time.Duration { return s.targetTick }

// LastTick returns the statistics of the most recent tick.
func (s *Scheduler) LastTick() TickStats { return s.last }

// RunningCount returns the number of tasks in the running set.
func (s *Scheduler) RunningCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running.Size()
}

// PendingCount returns the number of tasks waiting to be merged on the next tick.
func (s *Scheduler) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.Size()
}

// OnTaskError subscribes fn to task failures. fn runs on the tick goroutine.
func (s *Scheduler) OnTaskError(fn func(*Task, error)) {
	if fn == nil {
		return
	}
	s.hooksMu.Lock()
	s.onError = append(s.onError, fn)
	s.hooksMu.Unlock()
}

// OnEvent subscribes fn to the scheduler's status events. Advance, finish,
// fail and tick events fire on the tick goroutine; enqueue and cancel events
// fire on whichever goroutine called Submit, CancelGroup or Shutdown, so fn
// must be safe to call concurrently with a tick.
func (s *Scheduler) OnEvent(fn func(StatusEvent)) {
	if fn == nil {
		return
	}
	s.hooksMu.Lock()
	s.onEvent = append(s.onEvent, fn)
	s.hooksMu.Unlock()
}

// EnableCSVTrace opens the given file path for CSV logging of events.
// Must be called before the first Tick.
func (s *Scheduler) EnableCSVTrace(path string) error {
	t, err := openCSVTrace(path)
	if err != nil {
		return fmt.Errorf("open csv trace: %w", err)
	}
	s.hooksMu.Lock()
	s.trace = t
	s.hooksMu.Unlock()
	return nil
}

// SubmitOption configures a submitted task.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	owner Owner
	wait  WaitPredicate
	name  string
}

// WithOwner puts the task in o's cancellation group.
func WithOwner(o Owner) SubmitOption {
	return func(so *submitOptions) { so.owner = o }
}

// WithWait delays the first advance until p is ready.
// Without it a task first runs on the tick after submission.
func WithWait(p WaitPredicate) SubmitOption {
	return func(so *submitOptions) { so.wait = p }
}

// WithName labels the task in logs and traces.
func WithName(name string) SubmitOption {
	return func(so *submitOptions) { so.name = name }
}

// Submit enqueues c. The task joins the running set on the next tick, so it
// never runs in the tick it was submitted from.
func (s *Scheduler) Submit(c Computation, opts ...SubmitOption) (*Task, error) {
	if c == nil {
		return nil, invalidArg("Submit", "computation", nil, "cannot be nil")
	}
	if f, ok := c.(ComputationFunc); ok && f == nil {
		return nil, invalidArg("Submit", "computation", nil, "cannot be nil")
	}
	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	t := newTask(s.nextID, c, s.clock, so)
	s.pending.Enqueue(t)
	s.mu.Unlock() // NOTE: unlock before emitting, hooks may submit again

	s.metrics.Submitted()
	s.emit(StatusEvent{Kind: StatusEnqueue, TaskID: t.id, TaskName: t.name})
	return t, nil
}

// ShouldYieldNow reports whether the task currently advancing has used up
// its budget. Outside of a task step it always answers true.
func (s *Scheduler) ShouldYieldNow() bool {
	if s.current == nil {
		return true
	}
	return s.current.budget.ShouldYield()
}

// CancelGroup marks every pending or running task owned by o as done and
// returns how many were not done already. Work already performed is not undone.
func (s *Scheduler) CancelGroup(o Owner) int {
	if o.IsZero() {
		return 0
	}
	var cancelled []*Task
	visit := func(v interface{}) {
		t := v.(*Task)
		if t.owner == o && t.cancel() {
			cancelled = append(cancelled, t)
		}
	}

	s.mu.RLock()
	for _, v := range s.running.Values() {
		visit(v)
	}
	for _, v := range s.pending.Values() {
		visit(v)
	}
	s.mu.RUnlock()

	s.metrics.Cancelled(len(cancelled))
	for _, t := range cancelled {
		s.emit(StatusEvent{Kind: StatusCancel, TaskID: t.id, TaskName: t.name})
	}
	if len(cancelled) > 0 {
		s.logger.Info("group cancelled", "owner", o.String(), "tasks", len(cancelled))
	}
	return len(cancelled)
}

// Shutdown releases every pending and running task and closes the trace.
// Submit fails with ErrClosed afterwards.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var released []*Task
	release := func(v interface{}) {
		if t := v.(*Task); t.cancel() {
			released = append(released, t)
		}
	}
	for _, v := range s.running.Values() {
		release(v)
	}
	for _, v := range s.pending.Values() {
		release(v)
	}
	s.running.Clear()
	s.pending.Clear()
	s.mu.Unlock()

	s.metrics.Cancelled(len(released))
	for _, t := range released {
		s.emit(StatusEvent{Kind: StatusCancel, TaskID: t.id, TaskName: t.name})
	}
	s.logger.Info("scheduler shut down", "released", len(released))

	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	if s.trace != nil {
		err := s.trace.close()
		s.trace = nil
		return err
	}
	return nil
}

// Tick runs one scheduling round. elapsed is the wall time since the previous
// tick. Task failures never surface here; a non-nil error is a usage or
// bookkeeping error for the host (see IsFatal) or ErrClosed.
func (s *Scheduler) Tick(elapsed time.Duration) error {
	if !s.ticking.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: Tick called while a tick is in progress", ErrReentrancy)
	}
	defer s.ticking.Store(false)

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	tick := s.clock.advance()
	stats := TickStats{Tick: tick}
	s.completed = s.completed[:0]

	// 1) merge tasks submitted since the last tick
	s.merge()

	// 2) adapt the time slice and the target tick duration
	s.adapt(elapsed)
	stats.TimeSlice = s.timeSlice

	// 3) readiness is decided once, so a dependency finishing this tick
	//    releases its dependents on the next one
	s.ready = s.ready[:0]
	for _, t := range s.order {
		ok := s.isReady(t, &stats)
		s.ready = append(s.ready, ok)
		if !ok && !t.Done() {
			stats.Skipped++
		}
	}

	timeRemaining := s.timeSlice
	tasksRemaining := len(s.order)

	// 4) fast pass: tasks that historically finish early get their own cost
	for i, t := range s.order {
		if !s.ready[i] || t.Done() {
			continue
		}
		fair := timeRemaining / time.Duration(tasksRemaining)
		if !t.underTime || t.lastElapsed >= fair {
			continue
		}
		used := s.advance(t, t.lastElapsed, tick, &stats)
		tasksRemaining--
		timeRemaining -= used
	}

	// 5) remaining pass: equal division of what is left, zero budget once spent
	for i, t := range s.order {
		if !s.ready[i] || t.Done() || t.lastTick == tick {
			continue
		}
		if tasksRemaining <= 0 {
			s.last = stats
			return fmt.Errorf("%w: no share left for task %d on tick %d", ErrInvariant, t.id, tick)
		}
		var budget time.Duration
		if timeRemaining > 0 {
			budget = timeRemaining / time.Duration(tasksRemaining)
		}
		used := s.advance(t, budget, tick, &stats)
		tasksRemaining--
		timeRemaining -= used
	}

	// 6) reap
	s.reap(&stats)

	stats.TargetTick = s.targetTick
	s.last = stats

	running, pending := s.RunningCount(), s.PendingCount()
	s.metrics.Tick(s.timeSlice, s.targetTick, running, pending, stats.Overrun())
	s.emit(StatusEvent{Kind: StatusTick, Elapsed: stats.Used, Allowed: stats.TimeSlice})
	s.logger.Debug("tick",
		"tick", tick,
		"advanced", stats.Advanced,
		"skipped", stats.Skipped,
		"reaped", stats.Reaped,
		"running", running,
		"slice", stats.TimeSlice,
		"used", stats.Used,
		"target", stats.TargetTick,
	)
	return nil
}

// merge moves pending tasks into the running set and snapshots the run order.
func (s *Scheduler) merge() {
	s.mu.Lock()
	for !s.pending.Empty() {
		v, _ := s.pending.Dequeue()
		t := v.(*Task)
		if t.Done() {
			// cancelled before it ever ran
			s.completed = append(s.completed, t)
			continue
		}
		s.running.Put(t.id, t)
	}
	s.order = s.order[:0]
	for _, v := range s.running.Values() {
		s.order = append(s.order, v.(*Task))
	}
	s.mu.Unlock()
}

// adapt folds the free part of the target tick into the time slice and
// relaxes or tightens the target when the slice leaves the water marks.
func (s *Scheduler) adapt(elapsed time.Duration) {
	free := s.targetTick - elapsed
	if free < 0 {
		free = 0
	}
	s.timeSlice = time.Duration(sliceKeep*float64(s.timeSlice) + sliceBlend*float64(free))

	base := s.cfg.TargetTick()
	low := time.Duration(s.cfg.LowWater * float64(base))
	high := time.Duration(s.cfg.HighWater * float64(base))
	switch {
	case s.timeSlice < low:
		s.targetTick = min(s.cfg.MaxTick(), time.Duration(float64(s.targetTick)*targetGrow))
	case s.timeSlice > high && s.targetTick > base:
		s.targetTick = max(base, time.Duration(float64(s.targetTick)*targetShrink))
	}
}

// isReady evaluates t's wait predicate. A panicking predicate fails the task.
func (s *Scheduler) isReady(t *Task, stats *TickStats) (ok bool) {
	if t.Done() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			stats.Failed++
			s.reportError(t, t.fail(fmt.Errorf("%w: wait predicate: %v", ErrTaskPanic, r)))
		}
	}()
	return t.wait.ShouldRun()
}

// advance runs one step of t and returns the wall time it used.
func (s *Scheduler) advance(t *Task, budget time.Duration, tick int64, stats *TickStats) time.Duration {
	t.lastTick = tick
	s.current = t
	alive, err := t.run(budget)
	s.current = nil

	stats.Advanced++
	stats.Used += t.lastElapsed
	s.metrics.Advanced(t.lastElapsed)
	s.emit(StatusEvent{
		Kind:      StatusAdvance,
		TaskID:    t.id,
		TaskName:  t.name,
		Allowed:   t.allowed,
		Elapsed:   t.lastElapsed,
		CheatTime: t.cheat,
	})

	switch {
	case err != nil:
		stats.Failed++
		s.reportError(t, err)
	case !alive && !t.Cancelled():
		s.metrics.Completed()
		s.emit(StatusEvent{Kind: StatusFinish, TaskID: t.id, TaskName: t.name})
	}
	return t.lastElapsed
}

// reap removes done tasks from the running set.
func (s *Scheduler) reap(stats *TickStats) {
	s.mu.Lock()
	for _, t := range s.order {
		if t.Done() {
			s.running.Remove(t.id)
			s.completed = append(s.completed, t)
		}
	}
	s.mu.Unlock()
	stats.Reaped = len(s.completed)
}

func (s *Scheduler) reportError(t *Task, err error) {
	s.metrics.Failed()
	s.emit(StatusEvent{Kind: StatusFail, TaskID: t.id, TaskName: t.name, Err: err})

	s.hooksMu.RLock()
	handlers := s.onError
	s.hooksMu.RUnlock()

	s.logger.Error("task failed", "task_id", t.id, "task", t.name, "subscribers", len(handlers), "error", err)
	for _, fn := range handlers {
		fn(t, err)
	}
}

func (s *Scheduler) emit(ev StatusEvent) {
	ev.Time = s.clock.Now()
	ev.Tick = s.clock.Count()

	s.hooksMu.RLock()
	trace := s.trace
	handlers := s.onEvent
	s.hooksMu.RUnlock()

	if trace != nil {
		if err := trace.record(ev); err != nil && s.traceErr.CompareAndSwap(false, true) {
			s.logger.Warn("csv trace write failed", "error", err)
		}
	}
	for _, fn := range handlers {
		fn(ev)
	}
}
