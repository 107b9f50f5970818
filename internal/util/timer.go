package util

import (
	"math"
	"time"
)

// Timer measures the wall time spent serving one request.
type Timer struct {
	start time.Time
	now   func() time.Time
}

// StartTimer starts a timer on the system clock.
func StartTimer() Timer {
	return StartTimerWith(time.Now)
}

// StartTimerWith starts a timer that reads time from now.
func StartTimerWith(now func() time.Time) Timer {
	return Timer{start: now(), now: now}
}

// Elapsed returns the time since the timer started. A zero Timer reports 0.
func (t Timer) Elapsed() time.Duration {
	if t.start.IsZero() || t.now == nil {
		return 0
	}
	return t.now().Sub(t.start)
}

// Seconds reports Elapsed in seconds with millisecond precision.
func (t Timer) Seconds() float64 {
	return math.Round(t.Elapsed().Seconds()*1000) / 1000
}
