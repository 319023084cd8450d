// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"fmt"
	"strings"
)

// Mode selects the request path for a query.
type Mode int

const (
	// ModeChat sends a single-shot request.
	ModeChat Mode = iota
	// ModeResearch opens an event stream.
	ModeResearch
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeChat:
		return "chat"
	case ModeResearch:
		return "research"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeResearch {
		return ModeChat
	}
	return ModeResearch
}

// ParseMode parses "chat" or "research" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat", "":
		return ModeChat, nil
	case "research", "deep", "deep-research":
		return ModeResearch, nil
	default:
		return ModeChat, fmt.Errorf("unknown mode %q", s)
	}
}
