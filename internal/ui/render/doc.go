// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns answer payloads into terminal text.
//
// Plain text goes through glamour. Block lists, charts and video references
// are laid out with lipgloss, measuring cell widths with go-runewidth so
// wide characters line up.
package render
