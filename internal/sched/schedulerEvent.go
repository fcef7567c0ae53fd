// internal/sched/schedulerEvent.go

package sched

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusAdvance
	StatusFinish
	StatusCancel
	StatusFail
	StatusTick
)

// StatusEvent is emitted every tick or on key actions
type StatusEvent struct {
	Time      time.Time
	Tick      int64
	Kind      StatusKind
	TaskID    TaskID
	TaskName  string
	Allowed   time.Duration
	Elapsed   time.Duration
	CheatTime time.Duration
	Err       error
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusAdvance:
		return "Advance"
	case StatusFinish:
		return "Finish"
	case StatusCancel:
		return "Cancel"
	case StatusFail:
		return "Fail"
	case StatusTick:
		return "Tick"
	default:
		return "Unknown"
	}
}

// csvTrace writes status events as CSV rows.
type csvTrace struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{"timestamp", "tick", "event", "task_id", "task", "allowed_us", "elapsed_us", "cheat_us", "error"}

func openCSVTrace(path string) (*csvTrace, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &csvTrace{file: f, writer: w}, nil
}

func (c *csvTrace) record(ev StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	rec := []string{
		ev.Time.Format(time.RFC3339Nano),
		strconv.FormatInt(ev.Tick, 10),
		ev.Kind.String(),
		strconv.FormatUint(uint64(ev.TaskID), 10),
		ev.TaskName,
		strconv.FormatInt(ev.Allowed.Microseconds(), 10),
		strconv.FormatInt(ev.Elapsed.Microseconds(), 10),
		strconv.FormatInt(ev.CheatTime.Microseconds(), 10),
		errText,
	}
	if err := c.writer.Write(rec); err != nil {
		return err
	}
	// flush once per tick, not per row
	if ev.Kind == StatusTick {
		c.writer.Flush()
		return c.writer.Error()
	}
	return nil
}

func (c *csvTrace) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return fmt.Errorf("flush csv trace: %w", err)
	}
	return c.file.Close()
}
