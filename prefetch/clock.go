package prefetch

import (
	"sync"
	"time"
)

// Clock abstracts time and timers so the debounce windows and per-item
// delays run instantly in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

type realClock struct{}

func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// FakeClock drives timers manually. Advance fires due timers synchronously
// on the calling goroutine, in deadline order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f, active: true}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		timer := c.nextDue(target)
		if timer == nil {
			break
		}
		timer.fire()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

func (c *FakeClock) nextDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due *fakeTimer
	for _, timer := range c.timers {
		if !timer.active || timer.deadline.After(target) {
			continue
		}
		if due == nil || timer.deadline.Before(due.deadline) {
			due = timer
		}
	}

	if due != nil {
		due.active = false
		// Time jumps to the timer's deadline so callbacks observing Now see
		// a consistent ordering.
		if due.deadline.After(c.now) {
			c.now = due.deadline
		}
	}
	return due
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	f        func()
	active   bool
}

func (t *fakeTimer) fire() { t.f() }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	was := t.active
	t.active = false
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	was := t.active
	t.deadline = t.clock.now.Add(d)
	t.active = true
	return was
}
