// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var got []int

	f.After(30*time.Millisecond, func() { got = append(got, 3) })
	f.After(10*time.Millisecond, func() { got = append(got, 1) })
	f.After(20*time.Millisecond, func() { got = append(got, 2) })

	f.Advance(15 * time.Millisecond)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("after 15ms got %v, want [1]", got)
	}

	f.Advance(time.Second)
	if len(got) != 3 || got[1] != 2 || got[2] != 3 {
		t.Errorf("got %v, want [1 2 3]", got)
	}
	if f.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", f.Pending())
	}
}

func TestFake_Cancel(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	cancel := f.After(time.Millisecond, func() { fired = true })
	cancel()
	cancel()

	f.Advance(time.Second)
	if fired {
		t.Error("canceled timer fired")
	}
}

func TestFake_ChainedTimersInsideWindow(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 5 {
			f.After(10*time.Millisecond, tick)
		}
	}
	f.After(10*time.Millisecond, tick)

	f.Advance(35 * time.Millisecond)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	f.Advance(100 * time.Millisecond)
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestWrap_Dispatches(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var queue []func()
	s := Wrap(f, func(fn func()) { queue = append(queue, fn) })

	ran := false
	s.After(time.Millisecond, func() { ran = true })
	f.Advance(time.Millisecond)

	if ran {
		t.Fatal("callback ran before dispatch")
	}
	if len(queue) != 1 {
		t.Fatalf("dispatched %d callbacks, want 1", len(queue))
	}
	queue[0]()
	if !ran {
		t.Error("callback did not run after dispatch")
	}
}
