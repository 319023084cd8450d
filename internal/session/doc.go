// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session reconciles in-memory sessions with the durable store.
//
// # Key Types
//
//   - Reconciler: writes and reads session records through a storage.Store
//   - Queue: single-worker FIFO that serializes persistence jobs
//   - Notice: user-facing report of a persistence failure
//   - PersistenceError: wraps store errors with the operation and session
//
// Persistence failures never roll back in-memory state and are not
// retried. The controller turns each failure into a Notice.
//
// # Usage
//
//	rec := session.NewReconciler(store, clock.Real{}, logger)
//	rec.Start()
//	defer rec.Close()
//
//	snap := sess.Clone()
//	rec.Enqueue("create", func(ctx context.Context) error {
//	    _, err := rec.CreateSession(ctx, snap)
//	    return err
//	}, onDone)
package session
