// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable session records for delve.
//
// A Store persists model.Record documents keyed by session ID. Four
// implementations are provided:
//
//   - MemoryStore: process-local, used by tests and the --store=memory flag
//   - FileStore: one JSON file per session, written atomically
//   - SQLiteStore: a single sqlite database (modernc.org/sqlite)
//   - FirestoreStore: a Cloud Firestore collection
//
// Stores that can observe external edits also implement Watcher.
//
// # Usage
//
//	store, err := storage.Open(ctx, cfg.Storage, logger)
//	err = store.Save(ctx, session.ToRecord())
//	metas, err := store.List(ctx)
//	rec, err := store.Load(ctx, metas[0].ID)
//
// # Storage Location
//
// The file store keeps sessions in ~/.delve/sessions/ as JSON files; the
// sqlite store defaults to ~/.delve/sessions.db.
package storage
