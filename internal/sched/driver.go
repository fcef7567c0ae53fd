package sched

import (
	"context"
	"errors"
	"time"
)

// Drive calls s.Tick every interval from the calling goroutine, passing the
// wall time since the previous tick started. It returns nil after maxTicks
// ticks (0 = unlimited), ctx's error once ctx is done, or the first error Tick
// reports. A non-positive interval uses the configured target tick.
func Drive(ctx context.Context, s *Scheduler, interval time.Duration, maxTicks int64) error {
	if interval <= 0 {
		interval = s.cfg.TargetTick()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("driver started", "interval", interval, "max_ticks", maxTicks)

	last := s.clock.Now()
	var n int64
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("driver stopping (context cancelled)", "ticks", n)
			return ctx.Err()
		case <-ticker.C:
			now := s.clock.Now()
			err := s.Tick(now.Sub(last))
			last = now
			if errors.Is(err, ErrClosed) {
				s.logger.Info("driver stopping (scheduler shut down)", "ticks", n)
				return nil
			}
			if err != nil {
				s.logger.Error("tick failed", "tick", s.clock.Count(), "error", err)
				return err
			}
			n++
			if maxTicks > 0 && n >= maxTicks {
				s.logger.Info("driver stopping (tick limit)", "ticks", n)
				return nil
			}
		}
	}
}
