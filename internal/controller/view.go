// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"sync"

	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/payload"
	"github.com/jeranaias/delve/internal/session"
	"github.com/jeranaias/delve/internal/stream"
)

// =============================================================================
// VIEW MODEL
// =============================================================================

// TurnView is one turn as the presentation layer should draw it.
type TurnView struct {
	User string

	// Assistant is the revealed part of the reply; the full text unless the
	// turn is animating.
	Assistant string
	Payload   payload.Payload
	Tag       payload.Tag

	Pending   bool
	Failed    bool
	Animating bool
}

// CanvasView is the visible canvas. Content is nil while it loads.
type CanvasView struct {
	Owner   string
	Content *model.Canvas
}

// ViewModel is an immutable snapshot of controller state. Slices and maps
// are never shared with the controller.
type ViewModel struct {
	Version uint64

	SessionID string
	Title     string
	Turns     []TurnView

	Mode     Mode
	InFlight bool
	State    stream.State
	Stage    string
	StageLog []stream.StageEntry
	Metrics  map[string]float64

	// AnimatingIndex is the turn being revealed, or -1.
	AnimatingIndex int

	// Canvas is nil unless the canvas is visible for the active session.
	Canvas *CanvasView

	// LoadingSession is the id of a session being loaded, if any.
	LoadingSession string

	Notices     []session.Notice
	ListVersion int
}

// =============================================================================
// SUBSCRIBERS
// =============================================================================

// hub fans view models out to latest-wins subscriber channels.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ViewModel
	latest ViewModel
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan ViewModel), latest: ViewModel{AnimatingIndex: -1}}
}

func (h *hub) subscribe() (<-chan ViewModel, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan ViewModel, 1)
	ch <- h.latest
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// publish replaces any unread snapshot in each subscriber channel.
func (h *hub) publish(vm ViewModel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = vm
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- vm
	}
}

func (h *hub) current() ViewModel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// closeAll closes every subscriber channel.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
