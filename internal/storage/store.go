// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/util"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists session records.
type Store interface {
	// Save writes the full record, replacing any previous version.
	Save(ctx context.Context, rec model.Record) error

	// AttachCanvas sets the canvas field of an existing record.
	AttachCanvas(ctx context.Context, id string, canvas *model.CanvasRecord) error

	// Load returns the record for id, or ErrNotFound.
	Load(ctx context.Context, id string) (model.Record, error)

	// List returns metadata for every record, most recently updated first.
	List(ctx context.Context) ([]model.SessionMeta, error)

	// Delete removes the record for id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

// Watcher is implemented by stores that can report changes made by other
// processes. Watch blocks until ctx is cancelled, calling onChange after each
// settled burst of changes. It returns nil on cancellation.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a session record doesn't exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StoreError{Message: "session not found"}

// ErrInvalidID is returned for empty or path-like session IDs.
var ErrInvalidID = &StoreError{Message: "invalid session id"}

// StoreError represents a storage error that can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// validateID rejects IDs that cannot be used as a file name or document key.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return ErrInvalidID
	}
	return nil
}

// sortMetas orders metadata by update time, most recent first.
func sortMetas(metas []model.SessionMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
}

// metaFromRecord builds listing metadata including the first user message as
// a preview.
func metaFromRecord(rec model.Record) model.SessionMeta {
	meta := rec.Meta()
	for _, e := range rec.Turns {
		if e.Role == string(model.RoleUser) {
			meta.Preview = util.TruncateRunes(util.SingleLine(e.Content), 80)
			break
		}
	}
	return meta
}

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList formats a list of sessions for display in a table format.
func FormatSessionList(sessions []model.SessionMeta) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	sb.WriteString("Sessions:\n")
	sb.WriteString("------------------------------------------------------------------\n")
	sb.WriteString(formatPadded("ID", 36) + " " + formatPadded("Updated", 16) + " " + formatPadded("Turns", 5) + " Title\n")
	sb.WriteString("------------------------------------------------------------------\n")

	for _, s := range sessions {
		title := util.TruncateRunes(s.Title, 40)
		if s.HasCanvas {
			title += " [canvas]"
		}
		sb.WriteString(formatPadded(s.ID, 36) + " " +
			formatPadded(s.UpdatedAt.Format("2006-01-02 15:04"), 16) + " " +
			formatPadded(strconv.Itoa(s.TurnCount), 5) + " " +
			title + "\n")
	}
	return sb.String()
}

// formatPadded pads a string to the specified width with spaces.
func formatPadded(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
