// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/delve/internal/util"
)

// MaxTitleLength is the rune limit of a derived session title.
const MaxTitleLength = 60

// DefaultTitle is shown for a session that has no title yet.
const DefaultTitle = "New Session"

// Errors returned by Session mutations.
var (
	ErrTurnIndex      = errors.New("turn index out of range")
	ErrTurnNotPending = errors.New("turn already has a reply")
)

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one user message plus its reply. Assistant is nil while the
// request is outstanding.
type Turn struct {
	User      Message
	Assistant *Message
}

// Pending reports whether the turn still waits for its reply.
func (t Turn) Pending() bool {
	return t.Assistant == nil
}

// Failed reports whether the reply is a failure message.
func (t Turn) Failed() bool {
	return t.Assistant != nil && t.Assistant.Failed
}

func (t Turn) clone() Turn {
	if t.Assistant != nil {
		a := *t.Assistant
		t.Assistant = &a
	}
	return t
}

// =============================================================================
// CANVAS TYPE
// =============================================================================

// Canvas is the long-form artifact of a deep-research request.
type Canvas struct {
	ID             string
	FullAnswer     string
	Summary        string
	Metrics        map[string]float64
	OwnerSessionID string
	CreatedAt      time.Time
}

// Clone returns a deep copy of c.
func (c *Canvas) Clone() *Canvas {
	if c == nil {
		return nil
	}
	out := *c
	out.Metrics = maps.Clone(c.Metrics)
	return &out
}

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is one conversation.
type Session struct {
	ID        string
	Title     string
	Turns     []Turn
	Canvas    *Canvas
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates an empty session with a generated ID.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:        NewSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// AppendTurn adds a pending turn for content and returns its index. The
// title is derived from the first user message.
func (s *Session) AppendTurn(content string, now time.Time) int {
	s.Turns = append(s.Turns, Turn{User: NewUserMessage(content, now)})
	s.UpdatedAt = now
	if s.Title == "" {
		s.Title = DeriveTitle(content)
	}
	return len(s.Turns) - 1
}

// SetAssistant fills the reply slot of the pending turn at index.
func (s *Session) SetAssistant(index int, msg Message) error {
	if index < 0 || index >= len(s.Turns) {
		return fmt.Errorf("%w: %d of %d", ErrTurnIndex, index, len(s.Turns))
	}
	if !s.Turns[index].Pending() {
		return fmt.Errorf("%w: turn %d", ErrTurnNotPending, index)
	}
	s.Turns[index].Assistant = &msg
	if msg.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = msg.Timestamp
	}
	return nil
}

// TruncateForEdit discards every turn after index and replaces the turn at
// index with a pending turn carrying the new user content. On success the
// session holds exactly index+1 turns.
func (s *Session) TruncateForEdit(index int, content string, now time.Time) error {
	if index < 0 || index >= len(s.Turns) {
		return fmt.Errorf("%w: %d of %d", ErrTurnIndex, index, len(s.Turns))
	}
	s.Turns = append(s.Turns[:index:index], Turn{User: NewUserMessage(content, now)})
	s.UpdatedAt = now
	if index == 0 {
		s.Title = DeriveTitle(content)
	}
	return nil
}

// LastTurn returns the most recent turn, or nil.
func (s *Session) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}

// HasPending reports whether any turn waits for a reply.
func (s *Session) HasPending() bool {
	for _, t := range s.Turns {
		if t.Pending() {
			return true
		}
	}
	return false
}

// History returns the completed messages before turn index, in order, for
// use as request context. Pending and failed replies are skipped.
func (s *Session) History(index int) []Message {
	if index > len(s.Turns) {
		index = len(s.Turns)
	}
	out := make([]Message, 0, 2*index)
	for _, t := range s.Turns[:index] {
		if t.Pending() || t.Failed() {
			continue
		}
		out = append(out, t.User, *t.Assistant)
	}
	return out
}

// GetTitle returns the session title or a default.
func (s *Session) GetTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return DefaultTitle
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		out.Turns[i] = t.clone()
	}
	out.Canvas = s.Canvas.Clone()
	return &out
}

// GetMeta returns metadata about the session.
func (s *Session) GetMeta() SessionMeta {
	meta := SessionMeta{
		ID:        s.ID,
		Title:     s.GetTitle(),
		TurnCount: len(s.Turns),
		HasCanvas: s.Canvas != nil,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if last := s.LastTurn(); last != nil {
		meta.Preview = last.User.Preview(100)
	}
	return meta
}

// SessionMeta holds lightweight metadata for listing.
type SessionMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	TurnCount int       `json:"turn_count"`
	HasCanvas bool      `json:"has_canvas"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Preview   string    `json:"preview"`
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// DeriveTitle builds a session title from a user message: NFC-normalized,
// collapsed to one line and cut to MaxTitleLength runes.
func DeriveTitle(content string) string {
	title := util.SingleLine(norm.NFC.String(content))
	return util.TruncateRunes(title, MaxTitleLength)
}
