// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/delve/internal/payload"
	"github.com/jeranaias/delve/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string
	Role      Role
	Timestamp time.Time

	// Content is the raw text as received or typed.
	Content string

	// Payload is the classified form of an assistant reply. Nil for user
	// messages.
	Payload payload.Payload

	// Animate marks a reply eligible for the reveal animation.
	Animate bool

	// Failed marks the fallback message shown when a request fails.
	Failed bool
}

// NewUserMessage creates a user message.
func NewUserMessage(content string, now time.Time) Message {
	return Message{
		ID:        generateID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: now,
	}
}

// NewAssistantMessage classifies content and creates an assistant message.
// Only plain-text replies are eligible for animation, and only when animate
// is set.
func NewAssistantMessage(content string, animate bool, now time.Time) Message {
	p := payload.Classify(content)
	return Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Content:   content,
		Payload:   p,
		Animate:   animate && payload.Animatable(p),
		Timestamp: now,
	}
}

// NewFailureMessage creates the assistant message shown after a failed
// request.
func NewFailureMessage(text string, now time.Time) Message {
	return Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Content:   text,
		Payload:   payload.PlainText{Text: text},
		Failed:    true,
		Timestamp: now,
	}
}

// Tag returns the payload tag, PlainText for messages without a payload.
func (m Message) Tag() payload.Tag {
	if m.Payload == nil {
		return payload.TagPlainText
	}
	return m.Payload.Tag()
}

// Preview returns a single-line preview of the content.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.SingleLine(m.Content), maxLen)
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
