package job

import (
	"fmt"

	"ticksched/internal/sched"
)

// Chunked returns a computation that calls unit(0) … unit(n-1), as many per
// step as the budget allows and always at least one. An error from unit
// fails the task.
func Chunked(n int, unit func(i int) error) sched.Computation {
	next := 0
	return sched.ComputationFunc(func(b *sched.Budget) sched.StepResult {
		for next < n {
			if err := unit(next); err != nil {
				return sched.Fail(fmt.Errorf("unit %d: %w", next, err))
			}
			next++
			if b.ShouldYield() {
				break
			}
		}
		if next >= n {
			return sched.Done()
		}
		return sched.Continue()
	})
}

// Steps returns a computation that runs one function per step. Whatever a
// function returns is passed to the scheduler, except that a Continue from
// the last function finishes the task.
func Steps(fns ...func() sched.StepResult) sched.Computation {
	next := 0
	return sched.ComputationFunc(func(*sched.Budget) sched.StepResult {
		if next >= len(fns) {
			return sched.Done()
		}
		res := fns[next]()
		next++
		if next == len(fns) && res.Kind() == sched.StepContinue {
			return sched.Done()
		}
		return res
	})
}
