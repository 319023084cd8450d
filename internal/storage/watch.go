// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a directory must be quiet before a change
// notification is delivered.
const DefaultDebounce = 250 * time.Millisecond

// debounceTick is the polling interval of the debounce loop.
const debounceTick = 50 * time.Millisecond

// watchDir observes *.json files in dir and calls onChange once per settled
// burst of events. It blocks until ctx is cancelled.
func watchDir(ctx context.Context, dir string, debounce time.Duration, logger *zap.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

	var last time.Time // zero when nothing is pending
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(filepath.Base(event.Name), ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				last = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Debug("watcher error", zap.Error(err))

		case now := <-ticker.C:
			if !last.IsZero() && now.Sub(last) >= debounce {
				last = time.Time{}
				onChange()
			}
		}
	}
}
