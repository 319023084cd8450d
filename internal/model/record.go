// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"maps"
	"time"
)

// =============================================================================
// PERSISTED RECORD
// =============================================================================

// Record is the persisted document shape of a session. Turns are stored
// flattened as alternating role/content entries.
type Record struct {
	ID        string        `json:"id" firestore:"-"`
	Title     string        `json:"title" firestore:"title"`
	Turns     []RecordEntry `json:"turns" firestore:"turns"`
	Canvas    *CanvasRecord `json:"canvas,omitempty" firestore:"canvas,omitempty"`
	CreatedAt time.Time     `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt" firestore:"updatedAt"`
}

// RecordEntry is one flattened message.
type RecordEntry struct {
	Role      string    `json:"role" firestore:"role"`
	Content   string    `json:"content" firestore:"content"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// CanvasRecord is the persisted canvas field.
type CanvasRecord struct {
	ID         string             `json:"id" firestore:"id"`
	FullAnswer string             `json:"fullAnswer" firestore:"fullAnswer"`
	Summary    string             `json:"summary" firestore:"summary"`
	Metrics    map[string]float64 `json:"metrics,omitempty" firestore:"metrics,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" firestore:"createdAt"`
}

// Meta returns listing metadata for the record.
func (r Record) Meta() SessionMeta {
	meta := SessionMeta{
		ID:        r.ID,
		Title:     r.Title,
		HasCanvas: r.Canvas != nil,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if meta.Title == "" {
		meta.Title = DefaultTitle
	}
	for _, e := range r.Turns {
		if e.Role == string(RoleUser) {
			meta.TurnCount++
		}
	}
	return meta
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Turns = append([]RecordEntry(nil), r.Turns...)
	if r.Canvas != nil {
		c := *r.Canvas
		c.Metrics = maps.Clone(r.Canvas.Metrics)
		r.Canvas = &c
	}
	return r
}

// ToRecord flattens the session into its persisted shape. Only completed
// turns are written: pending turns and failed replies stay in memory.
func (s *Session) ToRecord() Record {
	rec := Record{
		ID:        s.ID,
		Title:     s.Title,
		Turns:     make([]RecordEntry, 0, 2*len(s.Turns)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	for _, t := range s.Turns {
		if t.Pending() || t.Failed() {
			continue
		}
		rec.Turns = append(rec.Turns, toEntry(t.User), toEntry(*t.Assistant))
	}
	if s.Canvas != nil {
		rec.Canvas = CanvasToRecord(s.Canvas)
	}
	return rec
}

// CanvasToRecord converts a canvas to its persisted field.
func CanvasToRecord(c *Canvas) *CanvasRecord {
	return &CanvasRecord{
		ID:         c.ID,
		FullAnswer: c.FullAnswer,
		Summary:    c.Summary,
		Metrics:    maps.Clone(c.Metrics),
		CreatedAt:  c.CreatedAt,
	}
}

// ToCanvas converts the persisted field back to a canvas owned by sessionID.
func (c *CanvasRecord) ToCanvas(sessionID string) *Canvas {
	if c == nil {
		return nil
	}
	return &Canvas{
		ID:             c.ID,
		FullAnswer:     c.FullAnswer,
		Summary:        c.Summary,
		Metrics:        maps.Clone(c.Metrics),
		OwnerSessionID: sessionID,
		CreatedAt:      c.CreatedAt,
	}
}

// SessionFromRecord rebuilds a session from its persisted shape. Assistant
// replies are classified again and never marked for animation. An assistant
// entry with no preceding user entry starts a turn with an empty user
// message; a trailing user entry becomes a pending turn.
func SessionFromRecord(r Record) *Session {
	s := &Session{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Turns:     make([]Turn, 0, len(r.Turns)/2),
	}
	for _, e := range r.Turns {
		switch Role(e.Role) {
		case RoleUser:
			s.Turns = append(s.Turns, Turn{User: NewUserMessage(e.Content, e.Timestamp)})
		case RoleAssistant:
			msg := NewAssistantMessage(e.Content, false, e.Timestamp)
			if last := s.LastTurn(); last != nil && last.Pending() {
				last.Assistant = &msg
				continue
			}
			s.Turns = append(s.Turns, Turn{
				User:      NewUserMessage("", e.Timestamp),
				Assistant: &msg,
			})
		}
	}
	s.Canvas = r.Canvas.ToCanvas(r.ID)
	return s
}

func toEntry(m Message) RecordEntry {
	return RecordEntry{
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}
