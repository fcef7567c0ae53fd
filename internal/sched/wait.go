package sched

import "time"

// WaitPredicate decides whether a task may advance on the current tick.
// Implementations must not touch scheduler state.
type WaitPredicate interface {
	ShouldRun() bool
}

// frames is ready once the tick counter reaches its target.
type frames struct {
	clock  *TickClock
	target int64
}

func (f frames) ShouldRun() bool { return f.clock.Count() >= f.target }

// Frames is ready n ticks after the current tick count.
// Frames(c, 1) is the default wait of every task.
func Frames(c *TickClock, n int) (WaitPredicate, error) {
	if c == nil {
		return nil, invalidArg("Frames", "clock", nil, "cannot be nil")
	}
	if n < 0 {
		return nil, invalidArg("Frames", "n", n, "cannot be negative")
	}
	return frames{clock: c, target: c.Count() + int64(n)}, nil
}

// nextFrame is Frames(c, 1) without the argument checks.
func nextFrame(c *TickClock) WaitPredicate {
	return frames{clock: c, target: c.Count() + 1}
}

// seconds is ready once wall time passes its deadline.
type seconds struct {
	clock    *TickClock
	deadline time.Time
}

func (s seconds) ShouldRun() bool { return !s.clock.Now().Before(s.deadline) }

// Seconds is ready once d of wall time has passed since construction.
func Seconds(c *TickClock, d time.Duration) (WaitPredicate, error) {
	if c == nil {
		return nil, invalidArg("Seconds", "clock", nil, "cannot be nil")
	}
	if d < 0 {
		return nil, invalidArg("Seconds", "duration", d, "cannot be negative")
	}
	return seconds{clock: c, deadline: c.Now().Add(d)}, nil
}

type predicate func() bool

func (p predicate) ShouldRun() bool { return p() }

// Predicate is ready whenever fn returns true. fn is called on every tick
// the task is inspected, so it must be cheap.
func Predicate(fn func() bool) (WaitPredicate, error) {
	if fn == nil {
		return nil, invalidArg("Predicate", "fn", nil, "cannot be nil")
	}
	return predicate(fn), nil
}

type taskCompletion struct {
	task *Task
}

func (t taskCompletion) ShouldRun() bool { return t.task.Done() }

// TaskCompletion is ready once t is done, whether it finished, failed or was cancelled.
func TaskCompletion(t *Task) (WaitPredicate, error) {
	if t == nil {
		return nil, invalidArg("TaskCompletion", "task", nil, "cannot be nil")
	}
	return taskCompletion{task: t}, nil
}

type all []WaitPredicate

func (a all) ShouldRun() bool {
	for _, p := range a {
		if !p.ShouldRun() {
			return false
		}
	}
	return true
}

// All is ready when every member is ready. An empty All is always ready.
func All(ps ...WaitPredicate) (WaitPredicate, error) {
	members := make(all, 0, len(ps))
	for i, p := range ps {
		if p == nil {
			return nil, invalidArg("All", "predicates", i, "member cannot be nil")
		}
		members = append(members, p)
	}
	return members, nil
}
