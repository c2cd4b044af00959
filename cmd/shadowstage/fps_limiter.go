package main

import (
	"runtime"
	"time"

	"shadowstage/internal/config"
)

// spinWindow is how close to the deadline the limiter stops sleeping and
// polls the clock instead. Sleep granularity is too coarse for high caps.
const spinWindow = 200 * time.Microsecond

// FPSLimiter paces presents to config.GetFPSLimit frames per second. It
// keeps an absolute deadline so small oversleeps do not accumulate.
type FPSLimiter struct {
	deadline time.Time
}

func NewFPSLimiter() *FPSLimiter {
	return &FPSLimiter{}
}

// Wait returns once the next frame is due. A limit of 0 returns at once.
func (f *FPSLimiter) Wait() {
	limit := config.GetFPSLimit()
	if limit <= 0 {
		f.deadline = time.Time{}
		return
	}
	period := time.Second / time.Duration(limit)

	now := time.Now()
	switch {
	case f.deadline.IsZero():
		f.deadline = now.Add(period)
	case now.Sub(f.deadline) > period:
		// more than a frame behind: start a fresh schedule
		f.deadline = now.Add(period)
	default:
		f.deadline = f.deadline.Add(period)
	}
	sleepUntil(f.deadline)
}

func sleepUntil(deadline time.Time) {
	if d := time.Until(deadline) - spinWindow; d > 0 {
		time.Sleep(d)
	}
	for time.Now().Before(deadline) {
		runtime.Gosched()
	}
}
