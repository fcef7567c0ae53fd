package sched

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// Owner groups tasks for bulk cancellation. It is an opaque token compared
// by identity; the zero Owner belongs to no group.
type Owner struct {
	id uuid.UUID
}

// NewOwner returns a fresh owner token distinct from every other.
func NewOwner() Owner {
	return Owner{id: uuid.New()}
}

// IsZero reports whether o is the "no group" owner.
func (o Owner) IsZero() bool { return o.id == uuid.Nil }

func (o Owner) String() string {
	if o.IsZero() {
		return "-"
	}
	return o.id.String()
}

// Task is one submitted computation plus its scheduling state.
// Everything except Done and cancellation is touched only by the tick loop.
type Task struct {
	id    TaskID
	name  string
	owner Owner
	comp  Computation
	clock *TickClock

	wait        WaitPredicate
	lastElapsed time.Duration // wall time of the last advance
	allowed     time.Duration // budget of the current (or last) advance
	cheat       time.Duration // smoothed overrun, never negative
	underTime   bool
	lastTick    int64 // tick of the last advance
	budget      *Budget

	done      atomic.Bool
	cancelled atomic.Bool
	mu        sync.Mutex
	err       error
}

func newTask(id TaskID, comp Computation, clock *TickClock, o submitOptions) *Task {
	t := &Task{
		id:       id,
		name:     o.name,
		owner:    o.owner,
		comp:     comp,
		clock:    clock,
		wait:     o.wait,
		lastTick: -1,
	}
	if t.wait == nil {
		t.wait = nextFrame(clock)
	}
	if t.name == "" {
		t.name = fmt.Sprintf("task-%d", id)
	}
	return t
}

// ID returns the task identifier.
func (t *Task) ID() TaskID { return t.id }

// Name returns the task label used in logs and traces.
func (t *Task) Name() string { return t.name }

// Owner returns the task's cancellation group.
func (t *Task) Owner() Owner { return t.owner }

// Done reports whether the task finished, failed or was cancelled. Once true it stays true.
func (t *Task) Done() bool { return t.done.Load() }

// Err returns the error that terminated the task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// CheatTime returns the smoothed estimate of how far the task overruns its budget.
func (t *Task) CheatTime() time.Duration { return t.cheat }

// LastElapsed returns the wall time consumed by the last advance.
func (t *Task) LastElapsed() time.Duration { return t.lastElapsed }

// AllowedTime returns the budget granted to the last advance.
func (t *Task) AllowedTime() time.Duration { return t.allowed }

// UnderTime reports whether the last advance finished inside its budget.
func (t *Task) UnderTime() bool { return t.underTime }

// Ready reports whether the task is alive and its wait predicate allows it to run.
func (t *Task) Ready() bool {
	return !t.Done() && t.wait.ShouldRun()
}

// Advance runs one step of the task with the given budget if its wait
// predicate allows it. It returns true while more work remains, and the
// error that terminated the task if this step failed. Tasks advanced this
// way bypass the scheduler, so failures reach only the caller.
func (t *Task) Advance(budget time.Duration) (bool, error) {
	if t.Done() {
		return false, nil
	}
	if !t.wait.ShouldRun() {
		return true, nil
	}
	return t.run(budget)
}

// run performs one step unconditionally and records timing. A non-nil error
// means the task was terminated by its own step.
func (t *Task) run(budget time.Duration) (bool, error) {
	if budget < 0 {
		budget = 0
	}
	t.allowed = budget
	b := &Budget{clock: t.clock, start: t.clock.Now(), allowed: budget, cheat: t.cheat}
	t.budget = b
	res, err := t.step(b)
	t.budget = nil

	t.lastElapsed = t.clock.Since(b.start)
	t.underTime = t.lastElapsed < t.allowed-t.cheat
	t.cheat = decayCheat(t.cheat, t.lastElapsed-t.allowed)

	if err != nil {
		t.fail(err)
		return false, err
	}
	// Cancelled mid-step: whatever it yielded no longer matters.
	if t.Done() {
		return false, nil
	}

	switch res.kind {
	case StepContinue:
		t.wait = nextFrame(t.clock)
	case StepWait:
		if res.wait == nil {
			return false, t.fail(fmt.Errorf("%w: wait without predicate", ErrUnrecognizedYield))
		}
		t.wait = res.wait
	case StepWaitTask:
		switch res.task {
		case nil:
			return false, t.fail(fmt.Errorf("%w: wait on nil task", ErrUnrecognizedYield))
		case t:
			return false, t.fail(fmt.Errorf("%w: task waits on itself", ErrUnrecognizedYield))
		}
		t.wait = taskCompletion{task: res.task}
	case StepDone:
		t.done.Store(true)
		return false, nil
	case StepFail:
		err := res.err
		if err == nil {
			err = errors.New("task failed")
		}
		return false, t.fail(err)
	default:
		return false, t.fail(fmt.Errorf("%w: %v", ErrUnrecognizedYield, res.kind))
	}
	return true, nil
}

func (t *Task) step(b *Budget) (res StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return t.comp.Step(b), nil
}

func (t *Task) fail(err error) error {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.done.Store(true)
	return err
}

// Cancelled reports whether the task was stopped by CancelGroup or Shutdown.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// cancel marks the task done and reports whether this call did so.
func (t *Task) cancel() bool {
	if !t.done.CompareAndSwap(false, true) {
		return false
	}
	t.cancelled.Store(true)
	return true
}

// decayCheat folds the latest overrun into the running estimate:
// 0.9*prev + 0.1*overrun, clamped at zero.
func decayCheat(prev, overrun time.Duration) time.Duration {
	c := time.Duration(0.9*float64(prev) + 0.1*float64(overrun))
	if c < 0 {
		return 0
	}
	return c
}
