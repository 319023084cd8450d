// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typing

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jeranaias/delve/internal/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	frames    []string
	completed []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnFrame:    func(h *Handle) { r.frames = append(r.frames, h.Revealed()) },
		OnComplete: func(h *Handle) { r.completed = append(r.completed, h.Key()) },
	}
}

func newFakePlayer() (*Player, *clock.Fake, *recorder) {
	fake := clock.NewFake(time.Unix(0, 0))
	rec := &recorder{}
	return NewPlayer(fake, rec.hooks()), fake, rec
}

func TestPlayer_RevealsAfterInitialDelay(t *testing.T) {
	p, fake, rec := newFakePlayer()
	h := p.Start("m1", "abc", Options{Speed: 10 * time.Millisecond, InitialDelay: 100 * time.Millisecond})

	fake.Advance(99 * time.Millisecond)
	if got := h.Revealed(); got != "" {
		t.Fatalf("Revealed() before initial delay = %q, want empty", got)
	}

	fake.Advance(time.Millisecond)
	if got := h.Revealed(); got != "a" {
		t.Errorf("Revealed() after first frame = %q, want %q", got, "a")
	}

	fake.Advance(20 * time.Millisecond)
	if !h.Done() {
		t.Fatal("animation should be done")
	}
	want := []string{"a", "ab", "abc"}
	if len(rec.frames) != len(want) {
		t.Fatalf("frames = %q, want %q", rec.frames, want)
	}
	for i := range want {
		if rec.frames[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, rec.frames[i], want[i])
		}
	}
	if len(rec.completed) != 1 || rec.completed[0] != "m1" {
		t.Errorf("completed = %v, want [m1]", rec.completed)
	}
	if p.Active() != nil {
		t.Error("Active() should be nil after completion")
	}
}

func TestPlayer_GraphemeSafe(t *testing.T) {
	p, fake, rec := newFakePlayer()
	text := "é👍🏽x"
	h := p.Start("m", text, Options{Speed: time.Millisecond, InitialDelay: time.Millisecond})

	fake.Advance(time.Second)
	want := []string{"é", "é👍🏽", text}
	if len(rec.frames) != len(want) {
		t.Fatalf("frames = %q, want %q", rec.frames, want)
	}
	for i := range want {
		if rec.frames[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, rec.frames[i], want[i])
		}
	}
	if h.Revealed() != text {
		t.Errorf("Revealed() = %q, want %q", h.Revealed(), text)
	}
}

func TestPlayer_Step(t *testing.T) {
	p, fake, _ := newFakePlayer()
	h := p.Start("m", "abcdef", Options{Speed: 10 * time.Millisecond, InitialDelay: 0, Step: 4})

	fake.Advance(0)
	if got := h.Revealed(); got != "abcd" {
		t.Errorf("Revealed() = %q, want %q", got, "abcd")
	}
	fake.Advance(10 * time.Millisecond)
	if !h.Done() || h.Revealed() != "abcdef" {
		t.Errorf("Done() = %v, Revealed() = %q", h.Done(), h.Revealed())
	}
}

func TestPlayer_StopRevealsAndCompletesOnce(t *testing.T) {
	p, fake, rec := newFakePlayer()
	h := p.Start("m", "hello world", Options{Speed: 10 * time.Millisecond, InitialDelay: 50 * time.Millisecond})

	fake.Advance(60 * time.Millisecond)
	if h.Done() {
		t.Fatal("animation finished too early")
	}
	p.Stop(h)
	p.Stop(h)

	if h.Revealed() != "hello world" {
		t.Errorf("Revealed() after Stop = %q", h.Revealed())
	}
	if len(rec.completed) != 1 {
		t.Errorf("completion fired %d times, want 1", len(rec.completed))
	}

	frames := len(rec.frames)
	fake.Advance(time.Minute)
	if len(rec.frames) != frames {
		t.Error("frames fired after Stop")
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", fake.Pending())
	}
}

func TestPlayer_StartStopsPrevious(t *testing.T) {
	p, fake, rec := newFakePlayer()
	opts := Options{Speed: 10 * time.Millisecond, InitialDelay: 50 * time.Millisecond}
	first := p.Start("first", "one two three", opts)
	fake.Advance(60 * time.Millisecond)
	if first.Done() {
		t.Fatal("first animation finished too early")
	}

	second := p.Start("second", "four", opts)
	if !first.Done() {
		t.Error("first handle should be stopped")
	}
	if first.Revealed() != "one two three" {
		t.Errorf("first Revealed() = %q", first.Revealed())
	}
	if p.Active() != second {
		t.Error("Active() should be the second handle")
	}
	if len(rec.completed) != 1 || rec.completed[0] != "first" {
		t.Errorf("completed = %v, want [first]", rec.completed)
	}

	fake.Advance(time.Second)
	if len(rec.completed) != 2 || rec.completed[1] != "second" {
		t.Errorf("completed = %v, want [first second]", rec.completed)
	}
}

func TestPlayer_EmptyTextCompletesAsync(t *testing.T) {
	p, fake, rec := newFakePlayer()
	h := p.Start("empty", "", Options{InitialDelay: 5 * time.Millisecond})
	if len(rec.completed) != 0 {
		t.Fatal("completion ran inside Start")
	}
	fake.Advance(5 * time.Millisecond)
	if !h.Done() || len(rec.completed) != 1 {
		t.Errorf("Done() = %v, completions = %d", h.Done(), len(rec.completed))
	}
}

func TestPlayer_StopNil(t *testing.T) {
	p, _, rec := newFakePlayer()
	p.Stop(nil)
	if len(rec.completed) != 0 {
		t.Error("Stop(nil) fired completion")
	}
}

func TestPlayer_RealClock(t *testing.T) {
	done := make(chan string, 1)
	p := NewPlayer(clock.Real{}, Hooks{OnComplete: func(h *Handle) { done <- h.Revealed() }})
	p.Start("m", "hi", Options{Speed: time.Millisecond, InitialDelay: time.Millisecond})

	select {
	case got := <-done:
		if got != "hi" {
			t.Errorf("Revealed() = %q, want %q", got, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("animation did not complete")
	}
}

func TestSuppressionToken(t *testing.T) {
	var tok SuppressionToken
	if tok.Consume() {
		t.Error("Consume() on unarmed token = true")
	}

	tok.Arm()
	tok.Arm()
	if !tok.Armed() {
		t.Error("Armed() = false after Arm")
	}
	if !tok.Consume() {
		t.Error("first Consume() = false, want true")
	}
	if tok.Consume() {
		t.Error("second Consume() = true, want false")
	}
	if tok.Armed() {
		t.Error("Armed() = true after Consume")
	}
}
