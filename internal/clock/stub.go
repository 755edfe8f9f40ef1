package clock

import (
	"sort"
	"sync"
	"time"
)

// Stub is a manually advanced Clock. Timers fire synchronously inside Advance, in
// deadline order. Safe for concurrent use.
type Stub struct {
	mu     sync.Mutex
	now    time.Time
	timers []*stubTimer
}

// NewStub creates a Stub set to t.
func NewStub(t time.Time) *Stub {
	return &Stub{now: t}
}

// Fixed returns a Stub set to 2024-01-15 10:30:00 UTC.
func Fixed() *Stub {
	return NewStub(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *Stub) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Stub) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &stubTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves the clock forward by d and fires every timer whose deadline passed.
func (c *Stub) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*stubTimer
	remaining := c.timers[:0]
	for _, timer := range c.timers {
		if !timer.deadline.After(c.now) {
			due = append(due, timer)
			continue
		}
		remaining = append(remaining, timer)
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, timer := range due {
		timer.fn()
	}
}

// Pending returns the number of armed timers.
func (c *Stub) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type stubTimer struct {
	clock    *Stub
	deadline time.Time
	fn       func()
}

func (t *stubTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for index, timer := range t.clock.timers {
		if timer == t {
			t.clock.timers = append(t.clock.timers[:index], t.clock.timers[index+1:]...)
			return true
		}
	}
	return false
}
