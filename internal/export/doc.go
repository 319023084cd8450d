// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved research sessions to shareable files.
//
// # Supported Formats
//
//   - Markdown: the conversation and its canvas as a document
//   - JSON: the stored record, unchanged
//   - HTML: a standalone page with highlighted code blocks
//
// # Usage
//
//	exp, err := export.New(export.FormatHTML, export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(rec, exp, opts)
package export
