package job

import (
	"time"

	"ticksched/internal/sched"
)

// minUnit is the sleep granted to a step whose budget is already spent.
const minUnit = 100 * time.Microsecond

// SleepWork returns a computation that sleeps for total, a slice at a time.
// Each step sleeps until its budget runs out, at least minUnit, and the
// computation is done once the whole duration has been slept.
func SleepWork(total time.Duration) sched.Computation {
	remaining := total
	return sched.ComputationFunc(func(b *sched.Budget) sched.StepResult {
		if remaining <= 0 {
			return sched.Done()
		}
		slice := b.Remaining()
		if slice < minUnit {
			slice = minUnit
		}
		if slice > remaining {
			slice = remaining
		}
		time.Sleep(slice)
		remaining -= slice
		if remaining <= 0 {
			return sched.Done()
		}
		return sched.Continue()
	})
}
