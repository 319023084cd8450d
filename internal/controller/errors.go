// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import "errors"

// ErrStopped is returned by commands once the event loop has exited.
var ErrStopped = errors.New("controller stopped")

// ErrAlreadyRunning is returned by a second concurrent call to Run.
var ErrAlreadyRunning = errors.New("controller already running")

// ErrEmptyQuery is returned for blank query text.
// Use errors.Is(err, ErrEmptyQuery) to check for this error.
var ErrEmptyQuery = &ValidationError{Field: "query", Message: "query must not be empty"}

// ErrNoActiveSession is returned by commands that need an active session.
var ErrNoActiveSession = &ValidationError{Field: "session", Message: "no active session"}

// ValidationError rejects a command before any state changes.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Is implements errors.Is support for comparing validation errors.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Field == t.Field && e.Message == t.Message
}
