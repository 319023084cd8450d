// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"time"

	"github.com/jeranaias/delve/internal/storage"
)

// Level is the severity of a Notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is a short message for the user about background work.
type Notice struct {
	Level Level
	Text  string
	At    time.Time
}

var opText = map[string]string{
	"create":        "save the new session",
	"append":        "save the latest turn",
	"attach canvas": "save the canvas",
	"load":          "load the session",
	"load canvas":   "load the canvas",
	"list":          "list sessions",
	"delete":        "delete the session",
}

// NoticeFor describes a persistence failure for the user.
func NoticeFor(err error, at time.Time) Notice {
	n := Notice{Level: LevelError, At: at}

	var pe *PersistenceError
	what := "save the session"
	if errors.As(err, &pe) {
		if v, ok := opText[pe.Op]; ok {
			what = v
		}
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		n.Level = LevelWarn
		n.Text = "Could not " + what + ": it is no longer in storage."
	case errors.Is(err, ErrNoCanvas):
		n.Level = LevelWarn
		n.Text = "This session has no saved canvas."
	case errors.Is(err, context.DeadlineExceeded):
		n.Text = "Timed out trying to " + what + "."
	default:
		n.Text = "Could not " + what + ": " + rootMessage(err) + "."
	}
	return n
}

// rootMessage returns the innermost error text.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
