// Package clock abstracts wall time and single-shot timers so expiry scheduling is
// deterministic in tests.
package clock

import "time"

// Clock reports the current time and arms single-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable single-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call stopped the timer.
	Stop() bool
}

// Real is backed by the time package.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NowMillis returns the clock's current time as epoch milliseconds.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}
