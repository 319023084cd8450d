// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/delve/internal/clock"
	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/storage"
)

// ErrNoCanvas is returned by LoadCanvas for a session without a canvas.
var ErrNoCanvas = errors.New("session has no canvas")

// =============================================================================
// ERRORS
// =============================================================================

// PersistenceError reports a failed store operation.
type PersistenceError struct {
	Op        string
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s session %s: %v", e.Op, e.SessionID, e.Err)
}

// Unwrap returns the underlying store error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler maps sessions to store records. Write methods take a session
// snapshot so they may run off the controller's goroutine.
type Reconciler struct {
	store  storage.Store
	sched  clock.Scheduler
	queue  *Queue
	logger *zap.Logger
}

// NewReconciler creates a reconciler with its own persistence queue.
func NewReconciler(store storage.Store, sched clock.Scheduler, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")
	return &Reconciler{
		store:  store,
		sched:  sched,
		queue:  NewQueue(0, DefaultJobTimeout, logger),
		logger: logger,
	}
}

// Start launches the persistence worker.
func (r *Reconciler) Start() { r.queue.Start() }

// Close drains queued writes and stops the worker. The store is not closed.
func (r *Reconciler) Close() { r.queue.Close() }

// Flush waits for every queued write to finish.
func (r *Reconciler) Flush(ctx context.Context) error { return r.queue.Flush(ctx) }

// Store returns the underlying store.
func (r *Reconciler) Store() storage.Store { return r.store }

// Enqueue schedules fn on the persistence queue. done receives the result on
// the worker goroutine.
func (r *Reconciler) Enqueue(desc string, fn func(ctx context.Context) error, done func(error)) {
	err := r.queue.Add(Job{Description: desc, Run: fn, Done: done})
	if err != nil {
		r.logger.Warn("persistence job rejected", zap.String("job", desc), zap.Error(err))
		if done != nil {
			done(&PersistenceError{Op: desc, Err: err})
		}
	}
}

// CreateSession writes a new record for s and returns its ID. A session
// without a title is titled from its first user message.
func (r *Reconciler) CreateSession(ctx context.Context, s *model.Session) (string, error) {
	rec := s.ToRecord()
	if rec.Title == "" {
		for _, t := range s.Turns {
			if t.User.Content != "" {
				rec.Title = model.DeriveTitle(t.User.Content)
				break
			}
		}
	}
	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Error("create session failed", zap.String("session", s.ID), zap.Error(err))
		return "", &PersistenceError{Op: "create", SessionID: s.ID, Err: err}
	}
	r.logger.Debug("session created", zap.String("session", s.ID), zap.Int("entries", len(rec.Turns)))
	return rec.ID, nil
}

// AppendTurn writes the complete turn list of s and refreshes its update
// time. The same call persists an edit, since s already holds the
// truncated list.
func (r *Reconciler) AppendTurn(ctx context.Context, s *model.Session) error {
	rec := s.ToRecord()
	rec.UpdatedAt = r.sched.Now()
	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Error("append turn failed", zap.String("session", s.ID), zap.Error(err))
		return &PersistenceError{Op: "append", SessionID: s.ID, Err: err}
	}
	return nil
}

// AttachCanvas writes the canvas field of session id.
func (r *Reconciler) AttachCanvas(ctx context.Context, id string, c *model.Canvas) error {
	if err := r.store.AttachCanvas(ctx, id, model.CanvasToRecord(c)); err != nil {
		r.logger.Error("attach canvas failed", zap.String("session", id), zap.Error(err))
		return &PersistenceError{Op: "attach canvas", SessionID: id, Err: err}
	}
	return nil
}

// Load reads session id. Restored replies are never marked for animation.
func (r *Reconciler) Load(ctx context.Context, id string) (*model.Session, error) {
	rec, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load", SessionID: id, Err: err}
	}
	return model.SessionFromRecord(rec), nil
}

// LoadCanvas reads the canvas of session id.
func (r *Reconciler) LoadCanvas(ctx context.Context, id string) (*model.Canvas, error) {
	rec, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load canvas", SessionID: id, Err: err}
	}
	if rec.Canvas == nil {
		return nil, &PersistenceError{Op: "load canvas", SessionID: id, Err: ErrNoCanvas}
	}
	return rec.Canvas.ToCanvas(id), nil
}

// List returns session metadata, most recent first. Writes queued before
// the call land first.
func (r *Reconciler) List(ctx context.Context) ([]model.SessionMeta, error) {
	if err := r.queue.Flush(ctx); err != nil && !errors.Is(err, ErrQueueClosed) {
		return nil, err
	}
	metas, err := r.store.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return metas, nil
}

// Delete removes session id from the store.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return &PersistenceError{Op: "delete", SessionID: id, Err: err}
	}
	return nil
}
