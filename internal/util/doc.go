// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the storage and model packages.
//
//   - AtomicWriteFile: crash-safe record writes (temp file, fsync, rename)
//   - FirstRunes / TruncateRunes: UTF-8 safe prefixes for summaries and titles
//   - SingleLine: collapses whitespace for one-line previews
package util
