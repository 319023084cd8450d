// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package typing reveals finalized answer text incrementally.
//
// A Player runs at most one animation at a time. Each frame reveals Step
// grapheme clusters, so combining marks and emoji sequences never split.
// Timers come from a clock.Scheduler; the controller passes one that routes
// callbacks onto its event loop, which makes every Player call happen on a
// single goroutine.
package typing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rivo/uniseg"

	"github.com/jeranaias/delve/internal/clock"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Defaults for a reveal animation.
const (
	DefaultSpeed        = 12 * time.Millisecond
	DefaultInitialDelay = 250 * time.Millisecond
	DefaultStep         = 1
)

// Options controls the pace of one animation.
type Options struct {
	// Speed is the delay between frames.
	Speed time.Duration

	// InitialDelay is the pause before the first frame.
	InitialDelay time.Duration

	// Step is the number of grapheme clusters revealed per frame.
	Step int
}

func (o Options) withDefaults() Options {
	if o.Speed <= 0 {
		o.Speed = DefaultSpeed
	}
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	}
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	return o
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle is one running or finished animation.
type Handle struct {
	key    string
	text   string
	bounds []int // byte offset after each grapheme cluster
	opts   Options

	mu     sync.Mutex
	shown  int
	done   bool
	cancel clock.CancelFunc
}

// Key returns the caller-supplied identity of the animated message.
func (h *Handle) Key() string { return h.key }

// Text returns the full text being revealed.
func (h *Handle) Text() string { return h.text }

// Revealed returns the prefix of the text shown so far.
func (h *Handle) Revealed() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return h.text
	}
	if h.shown == 0 {
		return ""
	}
	return h.text[:h.bounds[h.shown-1]]
}

// Done reports whether the animation finished or was stopped.
func (h *Handle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

func graphemeBounds(text string) []int {
	bounds := make([]int, 0, len(text))
	offset := 0
	state := -1
	rest := text
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		offset += len(cluster)
		bounds = append(bounds, offset)
	}
	return bounds
}

// =============================================================================
// PLAYER
// =============================================================================

// Hooks are invoked from timer callbacks and from Stop.
type Hooks struct {
	// OnFrame runs after each frame reveals more text.
	OnFrame func(h *Handle)

	// OnComplete runs exactly once per handle, when the text is fully
	// revealed or the handle is stopped.
	OnComplete func(h *Handle)
}

// Player runs reveal animations, at most one at a time.
type Player struct {
	sched clock.Scheduler
	hooks Hooks

	mu     sync.Mutex
	active *Handle
}

// NewPlayer creates a Player driven by sched.
func NewPlayer(sched clock.Scheduler, hooks Hooks) *Player {
	if sched == nil {
		sched = clock.Real{}
	}
	return &Player{sched: sched, hooks: hooks}
}

// Start begins revealing text. An animation already running is stopped
// first, firing its completion. Completion for the new handle never runs
// before Start returns.
func (p *Player) Start(key, text string, opts Options) *Handle {
	p.Stop(p.Active())

	opts = opts.withDefaults()
	h := &Handle{
		key:    key,
		text:   text,
		bounds: graphemeBounds(text),
		opts:   opts,
	}

	p.mu.Lock()
	p.active = h
	p.mu.Unlock()

	h.mu.Lock()
	h.cancel = p.sched.After(opts.InitialDelay, func() { p.tick(h) })
	h.mu.Unlock()
	return h
}

// Stop reveals the rest of h's text at once and fires its completion. It is
// a no-op for a nil or finished handle.
func (p *Player) Stop(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	if h.cancel != nil {
		h.cancel()
	}
	h.shown = len(h.bounds)
	h.done = true
	h.mu.Unlock()

	p.finish(h)
}

// Active returns the running handle, or nil.
func (p *Player) Active() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Player) tick(h *Handle) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.shown += h.opts.Step
	if h.shown >= len(h.bounds) {
		h.shown = len(h.bounds)
		h.done = true
		h.mu.Unlock()
		p.frame(h)
		p.finish(h)
		return
	}
	h.cancel = p.sched.After(h.opts.Speed, func() { p.tick(h) })
	h.mu.Unlock()
	p.frame(h)
}

func (p *Player) frame(h *Handle) {
	if p.hooks.OnFrame != nil {
		p.hooks.OnFrame(h)
	}
}

func (p *Player) finish(h *Handle) {
	p.mu.Lock()
	if p.active == h {
		p.active = nil
	}
	p.mu.Unlock()
	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(h)
	}
}

// =============================================================================
// SUPPRESSION TOKEN
// =============================================================================

// SuppressionToken is a one-shot "skip the next animation" flag. Arm sets
// it; Consume reports true exactly once per Arm.
type SuppressionToken struct {
	armed atomic.Bool
}

// Arm sets the token. Arming an armed token is a no-op.
func (t *SuppressionToken) Arm() {
	t.armed.Store(true)
}

// Consume clears the token and reports whether it was armed.
func (t *SuppressionToken) Consume() bool {
	return t.armed.Swap(false)
}

// Armed reports whether the token is set, without consuming it.
func (t *SuppressionToken) Armed() bool {
	return t.armed.Load()
}
