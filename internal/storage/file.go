// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/util"
)

// DefaultMaxSessions is the default cap on stored sessions for FileStore.
const DefaultMaxSessions = 200

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one JSON file per session under BaseDir.
type FileStore struct {
	// BaseDir is the directory for session files.
	// Default: ~/.delve/sessions/
	BaseDir string

	// MaxSessions limits stored sessions (0 = unlimited). The least
	// recently updated sessions are removed first.
	MaxSessions int

	// mu serializes writers within this process; other processes are
	// observed through Watch.
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates a file store rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		BaseDir:     baseDir,
		MaxSessions: DefaultMaxSessions,
		logger:      logger.Named("filestore"),
	}, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, rec model.Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(rec); err != nil {
		return err
	}
	if s.MaxSessions > 0 {
		s.enforceLimit()
	}
	return nil
}

// AttachCanvas implements Store.
func (s *FileStore) AttachCanvas(ctx context.Context, id string, canvas *model.CanvasRecord) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(id)
	if err != nil {
		return err
	}
	rec.Canvas = canvas
	return s.write(rec)
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, id string) (model.Record, error) {
	if err := validateID(id); err != nil {
		return model.Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	return s.read(id)
}

// List implements Store. Corrupted files are skipped.
func (s *FileStore) List(ctx context.Context) ([]model.SessionMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.SessionMeta{}, nil
		}
		return nil, err
	}

	metas := make([]model.SessionMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		rec, err := s.read(id)
		if err != nil {
			s.logger.Debug("skipping unreadable session file",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		metas = append(metas, metaFromRecord(rec))
	}

	sortMetas(metas)
	return metas, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// Watch implements Watcher by observing BaseDir with fsnotify.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	return watchDir(ctx, s.BaseDir, DefaultDebounce, s.logger, onChange)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (s *FileStore) read(id string) (model.Record, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Record{}, ErrNotFound
		}
		return model.Record{}, err
	}

	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

func (s *FileStore) write(rec model.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	// Atomic write with fsync so a crash never leaves a torn record.
	return util.AtomicWriteFile(s.filePath(rec.ID), data, 0644)
}

// enforceLimit removes the oldest sessions if over the limit.
func (s *FileStore) enforceLimit() {
	metas, err := s.List(context.Background())
	if err != nil || len(metas) <= s.MaxSessions {
		return
	}
	for _, m := range metas[s.MaxSessions:] {
		if err := os.Remove(s.filePath(m.ID)); err != nil {
			s.logger.Warn("failed to prune session", zap.String("id", m.ID), zap.Error(err))
		}
	}
}

// filePath returns the file path for a session ID.
func (s *FileStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
