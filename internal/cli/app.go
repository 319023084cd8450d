// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/delve/internal/backend"
	"github.com/jeranaias/delve/internal/clock"
	"github.com/jeranaias/delve/internal/config"
	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/logging"
	"github.com/jeranaias/delve/internal/session"
	"github.com/jeranaias/delve/internal/storage"
)

// defaultLogFile is used when the config names no log file, so log lines
// never land on a screen a front end is drawing.
const defaultLogFile = "delve.log"

type globalFlags struct {
	configPath string
	verbose    bool
	store      string
}

// app carries what every command shares: flags, configuration and logger.
type app struct {
	flags  globalFlags
	cfg    *config.Config
	logger *zap.Logger
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if a.flags.store != "" {
		cfg.Storage.Backend = a.flags.store
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --store: %w", err)
		}
	}
	a.cfg = cfg

	logCfg := cfg.Log
	if logCfg.File == "" && !a.flags.verbose {
		if dir, err := config.ConfigDir(); err == nil {
			logCfg.File = filepath.Join(dir, defaultLogFile)
		}
	}
	logger, err := logging.New(logCfg, a.flags.verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logger.Debug("configuration loaded",
		zap.String("store", cfg.Storage.Backend),
		zap.String("base_url", cfg.Backend.BaseURL))
	return nil
}

func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if a.flags.configPath != "" {
		return config.LoadFromPath(a.flags.configPath)
	}
	cfg, err := config.Load()
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v (using defaults)\n", err)
	}
	return cfg, nil
}

func (a *app) sync() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// openStore opens the configured session store.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, a.cfg.StorageOptions(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s session store: %w", a.cfg.Storage.Backend, err)
	}
	return store, nil
}

// withController runs fn next to a live session controller. The controller
// stops, and queued saves drain, once fn returns.
func (a *app) withController(ctx context.Context, fn func(ctx context.Context, ctrl *controller.Controller) error) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close session store", zap.Error(err))
		}
	}()

	rec := session.NewReconciler(store, clock.Real{}, a.logger)
	client := backend.New(a.cfg.BackendClientConfig(), a.logger)
	ctrl := controller.New(client, rec, clock.Real{}, a.cfg.ControllerOptions(), a.logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx, ctrl)
	})
	return g.Wait()
}
