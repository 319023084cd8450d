// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"

	"github.com/jeranaias/delve/internal/model"
)

// MemoryStore keeps records in process memory. Records are copied on the
// way in and out so callers never share turn slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.Record)}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, rec model.Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

// AttachCanvas implements Store.
func (s *MemoryStore) AttachCanvas(ctx context.Context, id string, canvas *model.CanvasRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Canvas = canvas
	s.records[id] = rec.Clone()
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, id string) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]model.SessionMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	metas := make([]model.SessionMeta, 0, len(s.records))
	for _, rec := range s.records {
		metas = append(metas, metaFromRecord(rec))
	}
	s.mu.RUnlock()
	sortMetas(metas)
	return metas, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
