// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package canvas

import (
	"testing"

	"github.com/jeranaias/delve/internal/model"
)

func canvasFor(owner string) *model.Canvas {
	return &model.Canvas{ID: "art-" + owner, FullAnswer: "full " + owner, Summary: "sum", OwnerSessionID: owner}
}

func TestTracker_BindThenFill(t *testing.T) {
	tr := NewTracker()
	if tr.Visible("a") {
		t.Fatal("new tracker should be hidden")
	}

	tr.Bind("a", "art-a")
	if !tr.Visible("a") || tr.Visible("b") {
		t.Error("Bind should show the canvas for the active session only")
	}
	if tr.ArtifactID("a") != "art-a" || tr.Content("a") != nil {
		t.Errorf("after Bind: id = %q, content = %v", tr.ArtifactID("a"), tr.Content("a"))
	}

	tr.Fill(canvasFor("a"))
	if c := tr.Content("a"); c == nil || c.FullAnswer != "full a" {
		t.Errorf("Content() = %+v", c)
	}
}

func TestTracker_SwitchAwayAndBack(t *testing.T) {
	tr := NewTracker()
	tr.Bind("a", "art-a")
	tr.Fill(canvasFor("a"))

	if got := tr.SwitchTo("b", false); got != SwitchHidden {
		t.Errorf("SwitchTo(b) = %v, want SwitchHidden", got)
	}
	if state, _ := tr.State(); state != Hidden {
		t.Errorf("state = %v, want hidden", state)
	}
	if tr.Visible("a") || tr.Visible("b") {
		t.Error("canvas visible after switching to a session without one")
	}

	if got := tr.SwitchTo("a", true); got != SwitchCached {
		t.Errorf("SwitchTo(a) = %v, want SwitchCached", got)
	}
	if !tr.Visible("a") {
		t.Error("canvas should be visible again for a")
	}
}

func TestTracker_SwitchNeedsFetch(t *testing.T) {
	tr := NewTracker()
	if got := tr.SwitchTo("c", true); got != SwitchNeedFetch {
		t.Fatalf("SwitchTo(c) = %v, want SwitchNeedFetch", got)
	}
	if !tr.Visible("c") {
		t.Error("canvas should be visible while content loads")
	}
	tr.Fill(canvasFor("c"))
	if got := tr.SwitchTo("c", true); got != SwitchCached {
		t.Errorf("second SwitchTo(c) = %v, want SwitchCached", got)
	}
}

func TestTracker_CloseKeepsContent(t *testing.T) {
	tr := NewTracker()
	tr.Bind("a", "art-a")
	tr.Fill(canvasFor("a"))

	tr.Close()
	if tr.Visible("a") {
		t.Error("Close should hide the canvas")
	}
	if tr.Content("a") == nil {
		t.Error("Close should keep cached content")
	}
	if !tr.Reopen("a") || !tr.Visible("a") {
		t.Error("Reopen should show the cached canvas")
	}
	if tr.Reopen("b") {
		t.Error("Reopen for a session without a canvas should fail")
	}
}

func TestTracker_UnbindWithoutContentHides(t *testing.T) {
	tr := NewTracker()
	tr.Bind("a", "art")
	tr.Unbind("a")
	if tr.Visible("a") || tr.Known("a") {
		t.Error("Unbind should drop the binding and hide")
	}
	if tr.Reopen("a") {
		t.Error("Reopen after Unbind should fail")
	}
}

func TestTracker_UnbindKeepsEarlierContent(t *testing.T) {
	tr := NewTracker()
	tr.Bind("a", "art-a")
	tr.Fill(canvasFor("a"))
	tr.Bind("a", "art-next")
	tr.Unbind("a")
	if !tr.Visible("a") {
		t.Fatal("earlier canvas should stay visible")
	}
	if c := tr.Content("a"); c == nil || c.FullAnswer != "full a" {
		t.Errorf("Content() = %+v", c)
	}
}

func TestTracker_FillCopies(t *testing.T) {
	tr := NewTracker()
	c := canvasFor("a")
	c.Metrics = map[string]float64{"n": 1}
	tr.Fill(c)
	c.Metrics["n"] = 2
	if got := tr.Content("a").Metrics["n"]; got != 1 {
		t.Errorf("cached metric = %v, want 1", got)
	}
}

// The visibility invariant holds across an arbitrary sequence of operations.
func TestTracker_VisibleOnlyForOwner(t *testing.T) {
	tr := NewTracker()
	active := "a"
	steps := []func(){
		func() { tr.Bind(active, "x") },
		func() { active = "b"; tr.SwitchTo(active, false) },
		func() { tr.Reopen(active) },
		func() { active = "a"; tr.SwitchTo(active, true) },
		func() { tr.Close() },
		func() { tr.Reopen(active) },
		func() { active = "c"; tr.SwitchTo(active, true) },
	}
	for i, step := range steps {
		step()
		_, owner := tr.State()
		if tr.Visible(active) && owner != active {
			t.Fatalf("step %d: visible for %q but owner is %q", i, active, owner)
		}
		for _, other := range []string{"a", "b", "c"} {
			if other != active && tr.Visible(other) {
				t.Fatalf("step %d: visible for inactive session %q", i, other)
			}
		}
	}
}
