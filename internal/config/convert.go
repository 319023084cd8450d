// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"time"

	"github.com/jeranaias/delve/internal/backend"
	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/storage"
	"github.com/jeranaias/delve/internal/typing"
)

// BackendClientConfig returns the research client settings.
func (c *Config) BackendClientConfig() backend.Config {
	return backend.Config{
		BaseURL:           c.Backend.BaseURL,
		APIKey:            c.Backend.APIKey,
		Timeout:           time.Duration(c.Backend.RequestTimeoutSecs) * time.Second,
		RequestsPerSecond: c.Backend.RequestsPerSecond,
		Burst:             c.Backend.Burst,
	}
}

// StorageOptions returns the session store settings.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:             c.Storage.Backend,
		Dir:                 c.Storage.Dir,
		MaxSessions:         c.Storage.MaxSessions,
		SQLitePath:          c.Storage.SQLitePath,
		FirestoreProject:    c.Storage.FirestoreProject,
		FirestoreCollection: c.Storage.FirestoreCollection,
	}
}

// ControllerOptions returns the session controller settings. An unknown
// default mode falls back to chat; Validate reports it.
func (c *Config) ControllerOptions() controller.Options {
	mode, _ := controller.ParseMode(c.UI.DefaultMode)
	return controller.Options{
		SummaryLength: c.Stream.SummaryLength,
		StallTimeout:  time.Duration(c.Stream.StallTimeoutSecs) * time.Second,
		Typing: typing.Options{
			Speed:        time.Duration(c.Typing.SpeedMs) * time.Millisecond,
			InitialDelay: time.Duration(c.Typing.InitialDelayMs) * time.Millisecond,
			Step:         c.Typing.Step,
		},
		DefaultMode: mode,
		RawReplies:  c.Backend.RawReplies,
		WatchStore:  c.Storage.Watch,
	}
}
