// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package canvas tracks which session owns the visible research canvas.
//
// The tracker is either Hidden or Visible(owner). It is visible for the
// active session only; content is cached per session so switching back to a
// session, or reopening a closed canvas, never refetches.
package canvas
