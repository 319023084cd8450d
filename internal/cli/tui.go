// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/ui/chat"
	"github.com/jeranaias/delve/internal/ui/styles"
)

func newTUICommand(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the terminal UI",
		Long: `Start the full-screen terminal UI.

Keys:
  Enter      send          Tab     chat/research
  Ctrl+E     edit last     Ctrl+N  new session
  Ctrl+O     sessions      Ctrl+K  close/reopen canvas
  Esc        skip animation or cancel the request
  Ctrl+C     quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), a, sessionID)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "open a saved session")
	return cmd
}

func runTUI(ctx context.Context, a *app, sessionID string) error {
	if !IsTTY() {
		return ErrTTYRequired
	}

	return a.withController(ctx, func(ctx context.Context, ctrl *controller.Controller) error {
		if sessionID != "" {
			if err := openSession(ctx, ctrl, sessionID); err != nil {
				return err
			}
		}

		m := chat.New(ctrl, styles.NewTheme(), chat.Options{
			MarkdownStyle: a.cfg.UI.GlamourStyle,
			ShowStageLog:  a.cfg.UI.ShowStageLog,
		})
		defer m.Close()

		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return err
		}
		return nil
	})
}
