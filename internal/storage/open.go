// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Options selects and configures a store.
type Options struct {
	Backend             string
	Dir                 string
	MaxSessions         int
	SQLitePath          string
	FirestoreProject    string
	FirestoreCollection string
}

// Open creates the store named by opts.Backend.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch opts.Backend {
	case BackendMemory:
		logger.Info("using in-memory session store")
		return NewMemoryStore(), nil

	case BackendFile, "":
		fs, err := NewFileStore(opts.Dir, logger)
		if err != nil {
			return nil, err
		}
		if opts.MaxSessions > 0 {
			fs.MaxSessions = opts.MaxSessions
		}
		logger.Info("using file session store", zap.String("dir", opts.Dir))
		return fs, nil

	case BackendSQLite:
		st, err := NewSQLiteStore(opts.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite session store", zap.String("path", opts.SQLitePath))
		return st, nil

	case BackendFirestore:
		st, err := NewFirestoreStore(ctx, opts.FirestoreProject, opts.FirestoreCollection, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using firestore session store",
			zap.String("project", opts.FirestoreProject),
			zap.String("collection", st.collection))
		return st, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
