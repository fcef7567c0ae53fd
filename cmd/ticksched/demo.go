package main

import (
	"time"

	"ticksched/internal/job"
	"ticksched/internal/sched"
)

// submitDemo submits a small mixed workload: a chunked CPU job, a sleeping
// job, a job that waits for the first one, a UI group torn down after a
// second, and a job that yields garbage.
func submitDemo(s *sched.Scheduler) ([]*sched.Task, error) {
	var tasks []*sched.Task
	add := func(t *sched.Task, err error) (*sched.Task, error) {
		if err == nil {
			tasks = append(tasks, t)
		}
		return t, err
	}

	voxelize, err := add(s.Submit(job.Chunked(400, spin(50*time.Microsecond)), sched.WithName("voxelize")))
	if err != nil {
		return nil, err
	}
	if _, err := add(s.Submit(job.SleepWork(80*time.Millisecond), sched.WithName("parse"))); err != nil {
		return nil, err
	}

	upload := job.After(voxelize, job.Chunked(20, spin(200*time.Microsecond)))
	if _, err := add(s.Submit(upload, sched.WithName("upload"))); err != nil {
		return nil, err
	}

	ui := sched.NewOwner()
	if _, err := add(s.Submit(panel(s), sched.WithName("panel"), sched.WithOwner(ui))); err != nil {
		return nil, err
	}
	oneSecond, err := s.Seconds(time.Second)
	if err != nil {
		return nil, err
	}
	teardown := sched.ComputationFunc(func(*sched.Budget) sched.StepResult {
		s.CancelGroup(ui)
		return sched.Done()
	})
	if _, err := add(s.Submit(teardown, sched.WithName("teardown"), sched.WithWait(oneSecond))); err != nil {
		return nil, err
	}

	bad := sched.ComputationFunc(func(*sched.Budget) sched.StepResult { return sched.WaitFor(nil) })
	if _, err := add(s.Submit(bad, sched.WithName("bad"))); err != nil {
		return nil, err
	}
	return tasks, nil
}

// spin returns a work unit that busy-waits for d.
func spin(d time.Duration) func(int) error {
	return func(int) error {
		for start := time.Now(); time.Since(start) < d; {
		}
		return nil
	}
}

// panel refreshes every five frames until its group is cancelled.
func panel(s *sched.Scheduler) sched.Computation {
	return sched.ComputationFunc(func(*sched.Budget) sched.StepResult {
		every, err := s.Frames(5)
		if err != nil {
			return sched.Fail(err)
		}
		return sched.WaitFor(every)
	})
}
