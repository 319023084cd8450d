// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/delve/internal/payload"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sessionWithTurns(n int) *Session {
	s := NewSession(t0)
	for i := 0; i < n; i++ {
		idx := s.AppendTurn("question "+string(rune('A'+i)), t0)
		s.SetAssistant(idx, NewAssistantMessage("answer "+string(rune('A'+i)), true, t0))
	}
	return s
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewAssistantMessage_Animate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		animate bool
		want    bool
		tag     payload.Tag
	}{
		{"plain text animates", "Hello there", true, true, payload.TagPlainText},
		{"plain text restored", "Hello there", false, false, payload.TagPlainText},
		{"chart never animates", `{"chartType":"bar","labels":["A","B"],"values":[1,2]}`, true, false, payload.TagChartSpec},
		{"video never animates", `{"type":"video","url":"u"}`, true, false, payload.TagVideoRef},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewAssistantMessage(tt.content, tt.animate, t0)
			if msg.Animate != tt.want {
				t.Errorf("Animate = %v, want %v", msg.Animate, tt.want)
			}
			if msg.Tag() != tt.tag {
				t.Errorf("Tag() = %v, want %v", msg.Tag(), tt.tag)
			}
		})
	}
}

func TestNewFailureMessage(t *testing.T) {
	msg := NewFailureMessage("connection lost", t0)
	if !msg.Failed || msg.Animate || msg.Role != RoleAssistant {
		t.Errorf("failure message = %+v", msg)
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("line one\nline two", t0)
	if got := msg.Preview(100); got != "line one line two" {
		t.Errorf("Preview() = %q", got)
	}
	if got := msg.Preview(8); got != "line ..." {
		t.Errorf("Preview(8) = %q", got)
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_AppendAndSetAssistant(t *testing.T) {
	s := NewSession(t0)
	if s.ID == "" {
		t.Fatal("NewSession() produced empty ID")
	}

	idx := s.AppendTurn("Hello", t0)
	if idx != 0 || !s.Turns[0].Pending() || !s.HasPending() {
		t.Fatalf("AppendTurn() index = %d, pending = %v", idx, s.Turns[0].Pending())
	}
	if s.Title != "Hello" {
		t.Errorf("Title = %q, want %q", s.Title, "Hello")
	}

	later := t0.Add(time.Minute)
	if err := s.SetAssistant(idx, NewAssistantMessage("Hi", true, later)); err != nil {
		t.Fatalf("SetAssistant() error = %v", err)
	}
	if !s.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", s.UpdatedAt, later)
	}

	err := s.SetAssistant(idx, NewAssistantMessage("again", true, later))
	if !errors.Is(err, ErrTurnNotPending) {
		t.Errorf("second SetAssistant() error = %v, want ErrTurnNotPending", err)
	}
	if err := s.SetAssistant(5, Message{}); !errors.Is(err, ErrTurnIndex) {
		t.Errorf("SetAssistant(5) error = %v, want ErrTurnIndex", err)
	}
}

func TestSession_TruncateForEdit(t *testing.T) {
	s := sessionWithTurns(4)
	before := s.Clone()

	if err := s.TruncateForEdit(1, "rewritten", t0); err != nil {
		t.Fatalf("TruncateForEdit() error = %v", err)
	}
	if len(s.Turns) != 2 {
		t.Fatalf("len(Turns) = %d, want 2", len(s.Turns))
	}
	if s.Turns[1].User.Content != "rewritten" || !s.Turns[1].Pending() {
		t.Errorf("replacement turn = %+v", s.Turns[1])
	}
	if s.Turns[0].User.Content != "question A" {
		t.Errorf("earlier turn changed: %q", s.Turns[0].User.Content)
	}
	if len(before.Turns) != 4 || before.Turns[1].User.Content != "question B" {
		t.Error("clone shares turn storage with the original")
	}

	if err := s.TruncateForEdit(7, "x", t0); !errors.Is(err, ErrTurnIndex) {
		t.Errorf("TruncateForEdit(7) error = %v, want ErrTurnIndex", err)
	}
}

func TestSession_TruncateFirstRetitles(t *testing.T) {
	s := sessionWithTurns(2)
	s.TruncateForEdit(0, "A brand new question", t0)
	if len(s.Turns) != 1 || s.Title != "A brand new question" {
		t.Errorf("Turns = %d, Title = %q", len(s.Turns), s.Title)
	}
}

func TestSession_HistorySkipsPendingAndFailed(t *testing.T) {
	s := sessionWithTurns(2)
	idx := s.AppendTurn("will fail", t0)
	s.SetAssistant(idx, NewFailureMessage("lost", t0))
	s.AppendTurn("pending", t0)

	hist := s.History(len(s.Turns))
	if len(hist) != 4 {
		t.Fatalf("len(History) = %d, want 4", len(hist))
	}
	if hist[0].Role != RoleUser || hist[1].Role != RoleAssistant {
		t.Errorf("roles = %v, %v", hist[0].Role, hist[1].Role)
	}
	if got := s.History(1); len(got) != 2 {
		t.Errorf("len(History(1)) = %d, want 2", len(got))
	}
}

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("word ", 30)
	got := DeriveTitle(long)
	if n := len([]rune(got)); n != MaxTitleLength {
		t.Errorf("title length = %d, want %d", n, MaxTitleLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("title %q should end in ...", got)
	}

	// e + combining acute composes to a single rune.
	if got := DeriveTitle("café\n  au lait"); got != "café au lait" {
		t.Errorf("DeriveTitle() = %q", got)
	}
}

// =============================================================================
// RECORD TESTS
// =============================================================================

func TestSession_RecordRoundTrip(t *testing.T) {
	s := sessionWithTurns(2)
	s.Canvas = &Canvas{
		ID:             "art-1",
		FullAnswer:     "long answer",
		Summary:        "long",
		Metrics:        map[string]float64{"sources": 3},
		OwnerSessionID: s.ID,
		CreatedAt:      t0,
	}

	rec := s.ToRecord()
	if len(rec.Turns) != 4 {
		t.Fatalf("len(rec.Turns) = %d, want 4", len(rec.Turns))
	}
	if rec.Turns[0].Role != "user" || rec.Turns[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", rec.Turns[0].Role, rec.Turns[1].Role)
	}
	if rec.Canvas == nil || rec.Canvas.FullAnswer != "long answer" {
		t.Errorf("canvas record = %+v", rec.Canvas)
	}

	back := SessionFromRecord(rec)
	if back.ID != s.ID || len(back.Turns) != 2 {
		t.Fatalf("restored ID = %q, turns = %d", back.ID, len(back.Turns))
	}
	for i, turn := range back.Turns {
		if turn.Pending() {
			t.Errorf("turn %d pending after restore", i)
			continue
		}
		if turn.Assistant.Animate {
			t.Errorf("turn %d restored with Animate set", i)
		}
		if turn.Assistant.Content != s.Turns[i].Assistant.Content {
			t.Errorf("turn %d content = %q", i, turn.Assistant.Content)
		}
	}
	if back.Canvas == nil || back.Canvas.OwnerSessionID != s.ID || back.Canvas.Metrics["sources"] != 3 {
		t.Errorf("restored canvas = %+v", back.Canvas)
	}
}

func TestSession_ToRecordSkipsIncomplete(t *testing.T) {
	s := sessionWithTurns(1)
	idx := s.AppendTurn("fails", t0)
	s.SetAssistant(idx, NewFailureMessage("lost", t0))
	s.AppendTurn("pending", t0)

	rec := s.ToRecord()
	if len(rec.Turns) != 2 {
		t.Errorf("len(rec.Turns) = %d, want 2", len(rec.Turns))
	}
	if meta := rec.Meta(); meta.TurnCount != 1 {
		t.Errorf("Meta().TurnCount = %d, want 1", meta.TurnCount)
	}
}

func TestSessionFromRecord_Irregular(t *testing.T) {
	rec := Record{
		ID: "s",
		Turns: []RecordEntry{
			{Role: "assistant", Content: "orphan"},
			{Role: "user", Content: "q1"},
			{Role: "user", Content: "q2"},
			{Role: "assistant", Content: "a2"},
			{Role: "system", Content: "ignored"},
			{Role: "user", Content: "trailing"},
		},
	}
	s := SessionFromRecord(rec)
	if len(s.Turns) != 4 {
		t.Fatalf("len(Turns) = %d, want 4", len(s.Turns))
	}
	if s.Turns[0].User.Content != "" || s.Turns[0].Assistant.Content != "orphan" {
		t.Errorf("turn 0 = %+v", s.Turns[0])
	}
	if !s.Turns[1].Pending() {
		t.Error("q1 should be pending")
	}
	if s.Turns[2].Assistant == nil || s.Turns[2].Assistant.Content != "a2" {
		t.Errorf("turn 2 = %+v", s.Turns[2])
	}
	if !s.Turns[3].Pending() {
		t.Error("trailing user entry should be pending")
	}
	if s.GetTitle() != DefaultTitle {
		t.Errorf("GetTitle() = %q", s.GetTitle())
	}
}
