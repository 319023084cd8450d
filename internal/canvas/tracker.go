// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package canvas

import (
	"github.com/jeranaias/delve/internal/model"
)

// State is the tracker's visibility state.
type State int

const (
	Hidden State = iota
	Visible
)

// String returns the string representation of the state.
func (s State) String() string {
	if s == Visible {
		return "visible"
	}
	return "hidden"
}

// SwitchResult tells the caller what to do after SwitchTo.
type SwitchResult int

const (
	// SwitchHidden means the new session has no canvas.
	SwitchHidden SwitchResult = iota
	// SwitchCached means the canvas is visible with cached content.
	SwitchCached
	// SwitchNeedFetch means the canvas is visible but its content must be
	// loaded and passed to Fill.
	SwitchNeedFetch
)

// Tracker is not safe for concurrent use; the controller owns it on its
// event loop.
type Tracker struct {
	state State
	owner string

	// cache holds filled content by owning session.
	cache map[string]*model.Canvas

	// bound holds artifact ids declared before content arrived.
	bound map[string]string
}

// NewTracker returns a hidden tracker with an empty cache.
func NewTracker() *Tracker {
	return &Tracker{
		cache: make(map[string]*model.Canvas),
		bound: make(map[string]string),
	}
}

// Bind records that the in-flight request for activeID declared artifactID,
// and shows the canvas for activeID.
func (t *Tracker) Bind(activeID, artifactID string) {
	t.bound[activeID] = artifactID
	t.state = Visible
	t.owner = activeID
}

// Unbind drops an artifact declared for id whose content never arrived.
// The canvas is hidden unless id still has earlier content.
func (t *Tracker) Unbind(id string) {
	if _, ok := t.bound[id]; !ok {
		return
	}
	delete(t.bound, id)
	if _, cached := t.cache[id]; !cached && t.owner == id {
		t.state, t.owner = Hidden, ""
	}
}

// Fill stores canvas content for its owning session.
func (t *Tracker) Fill(c *model.Canvas) {
	if c == nil || c.OwnerSessionID == "" {
		return
	}
	t.cache[c.OwnerSessionID] = c.Clone()
	delete(t.bound, c.OwnerSessionID)
}

// SwitchTo updates the tracker for a newly active session. hasCanvas reports
// whether the session's record carries a canvas.
func (t *Tracker) SwitchTo(id string, hasCanvas bool) SwitchResult {
	if _, ok := t.cache[id]; ok && id != "" {
		t.state, t.owner = Visible, id
		return SwitchCached
	}
	if !hasCanvas || id == "" {
		t.state, t.owner = Hidden, ""
		return SwitchHidden
	}
	t.state, t.owner = Visible, id
	return SwitchNeedFetch
}

// Close hides the canvas and keeps its content for Reopen.
func (t *Tracker) Close() {
	t.state = Hidden
}

// Reopen shows the canvas of activeID again if one is known. It reports
// whether the canvas is now visible.
func (t *Tracker) Reopen(activeID string) bool {
	if !t.Known(activeID) {
		return false
	}
	t.state, t.owner = Visible, activeID
	return true
}

// Known reports whether session id has a bound or filled canvas.
func (t *Tracker) Known(id string) bool {
	if id == "" {
		return false
	}
	_, cached := t.cache[id]
	_, bound := t.bound[id]
	return cached || bound
}

// Visible reports whether the canvas is shown for activeID. A canvas is
// visible only while its owner is the active session.
func (t *Tracker) Visible(activeID string) bool {
	return t.state == Visible && activeID != "" && t.owner == activeID
}

// State returns the visibility state and owner.
func (t *Tracker) State() (State, string) {
	return t.state, t.owner
}

// Content returns a copy of the cached canvas for id, or nil.
func (t *Tracker) Content(id string) *model.Canvas {
	return t.cache[id].Clone()
}

// ArtifactID returns the artifact id bound or filled for id.
func (t *Tracker) ArtifactID(id string) string {
	if c, ok := t.cache[id]; ok {
		return c.ID
	}
	return t.bound[id]
}
