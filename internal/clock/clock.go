// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clock abstracts timers so animation and stall detection can be
// driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// SCHEDULER
// =============================================================================

// CancelFunc stops a scheduled callback. Calling it after the callback has
// fired, or more than once, is a no-op.
type CancelFunc func()

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	// After schedules fn to run once after d elapses.
	After(d time.Duration, fn func()) CancelFunc

	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}

// Real is a Scheduler backed by time.AfterFunc.
type Real struct{}

// After implements Scheduler.
func (Real) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Now implements Scheduler.
func (Real) Now() time.Time { return time.Now() }

// Wrap returns a Scheduler that passes every fired callback through dispatch
// instead of invoking it on the timer goroutine. The controller uses this to
// move timer work onto its event loop.
func Wrap(base Scheduler, dispatch func(func())) Scheduler {
	return &wrapped{base: base, dispatch: dispatch}
}

type wrapped struct {
	base     Scheduler
	dispatch func(func())
}

func (w *wrapped) After(d time.Duration, fn func()) CancelFunc {
	return w.base.After(d, func() { w.dispatch(fn) })
}

func (w *wrapped) Now() time.Time { return w.base.Now() }

// =============================================================================
// FAKE SCHEDULER
// =============================================================================

// Fake is a manually advanced Scheduler for tests. Callbacks run
// synchronously inside Advance, in deadline order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*fakeTimer
}

type fakeTimer struct {
	at       time.Time
	seq      int
	fn       func()
	canceled bool
}

// NewFake creates a fake scheduler starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// After implements Scheduler.
func (f *Fake) After(d time.Duration, fn func()) CancelFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{at: f.now.Add(d), seq: f.seq, fn: fn}
	f.pending = append(f.pending, t)
	return func() {
		f.mu.Lock()
		t.canceled = true
		f.mu.Unlock()
	}
}

// Now implements Scheduler.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Pending returns the number of timers that have not fired or been canceled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.pending {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer that comes due.
// Timers scheduled by fired callbacks are honored if they also fall inside
// the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.popDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.at
		f.mu.Unlock()
		next.fn()
	}
}

// popDueLocked removes and returns the earliest live timer due at or before
// target. Caller must hold f.mu.
func (f *Fake) popDueLocked(target time.Time) *fakeTimer {
	live := f.pending[:0]
	for _, t := range f.pending {
		if !t.canceled {
			live = append(live, t)
		}
	}
	f.pending = live
	if len(f.pending) == 0 {
		return nil
	}
	sort.Slice(f.pending, func(i, j int) bool {
		if f.pending[i].at.Equal(f.pending[j].at) {
			return f.pending[i].seq < f.pending[j].seq
		}
		return f.pending[i].at.Before(f.pending[j].at)
	})
	first := f.pending[0]
	if first.at.After(target) {
		return nil
	}
	f.pending = f.pending[1:]
	return first
}
