package job

import "ticksched/internal/sched"

// After returns a computation that waits for dep to be done, whether it
// finished, failed or was cancelled, and then runs c.
func After(dep *sched.Task, c sched.Computation) sched.Computation {
	waited := false
	return sched.ComputationFunc(func(b *sched.Budget) sched.StepResult {
		if !waited {
			waited = true
			return sched.WaitForTask(dep)
		}
		return c.Step(b)
	})
}
