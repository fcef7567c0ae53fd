package sched

import (
	"fmt"
	"time"
)

// StepKind tags what a single resumption step produced.
type StepKind int

const (
	// StepContinue asks to run again on the next tick. It is the zero value.
	StepContinue StepKind = iota
	// StepWait suspends until the carried predicate is ready.
	StepWait
	// StepWaitTask suspends until the carried task is done.
	StepWaitTask
	// StepDone reports there is no more work.
	StepDone
	// StepFail terminates the task with the carried error.
	StepFail
)

func (k StepKind) String() string {
	switch k {
	case StepContinue:
		return "Continue"
	case StepWait:
		return "Wait"
	case StepWaitTask:
		return "WaitTask"
	case StepDone:
		return "Done"
	case StepFail:
		return "Fail"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// StepResult is the outcome of one Computation.Step call.
// Build it with Continue, WaitFor, WaitForTask, Done or Fail.
type StepResult struct {
	kind StepKind
	wait WaitPredicate
	task *Task
	err  error
}

// Kind returns the result's tag.
func (r StepResult) Kind() StepKind { return r.kind }

// Continue runs the task again on the next tick.
func Continue() StepResult { return StepResult{kind: StepContinue} }

// WaitFor suspends the task until p is ready.
func WaitFor(p WaitPredicate) StepResult { return StepResult{kind: StepWait, wait: p} }

// WaitForTask suspends the task until t is done.
func WaitForTask(t *Task) StepResult { return StepResult{kind: StepWaitTask, task: t} }

// Done finishes the task.
func Done() StepResult { return StepResult{kind: StepDone} }

// Fail finishes the task with err, which is reported through OnTaskError.
func Fail(err error) StepResult { return StepResult{kind: StepFail, err: err} }

// Computation is a resumable unit of work. Each Step call resumes from the
// position the previous call recorded and returns before b is spent when it can.
type Computation interface {
	Step(b *Budget) StepResult
}

// ComputationFunc adapts a function to Computation.
type ComputationFunc func(b *Budget) StepResult

// Step calls f(b).
func (f ComputationFunc) Step(b *Budget) StepResult { return f(b) }

// Budget is the time granted to the step currently running.
type Budget struct {
	clock   *TickClock
	start   time.Time
	allowed time.Duration
	cheat   time.Duration
}

// Allowed returns the budget granted by the scheduler for this step.
func (b *Budget) Allowed() time.Duration { return b.allowed }

// Elapsed returns the wall time spent in this step so far.
func (b *Budget) Elapsed() time.Duration { return b.clock.Since(b.start) }

// Remaining returns how much of the budget is left after the task's
// historical overrun is deducted. It may be negative.
func (b *Budget) Remaining() time.Duration {
	return b.allowed - b.cheat - b.Elapsed()
}

// ShouldYield reports whether the step has used up its budget.
// A nil Budget always answers yes.
func (b *Budget) ShouldYield() bool {
	if b == nil {
		return true
	}
	return b.Remaining() <= 0
}
