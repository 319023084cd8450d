// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/ui/render"
	"github.com/jeranaias/delve/internal/ui/styles"
)

type askOptions struct {
	research  bool
	sessionID string
	quiet     bool
}

func newAskCommand(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask QUERY...",
		Short: "Ask one question and print the answer",
		Long: `Ask one question and print the answer.

In research mode the stages are reported on stderr as they arrive and the
full report from the canvas is printed after the summary. The exchange is
saved like any other session.

Examples:
  delve ask "what is a monad"
  delve ask --research "state of solid-state batteries"
  delve ask --session 3f2a... "and in 2024?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, a, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.research, "research", "r", false, "use research mode")
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "continue a saved session")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not report progress")
	return cmd
}

func runAsk(cmd *cobra.Command, a *app, query string, opts askOptions) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	mode := controller.ModeChat
	if opts.research {
		mode = controller.ModeResearch
	}

	return a.withController(cmd.Context(), func(ctx context.Context, ctrl *controller.Controller) error {
		if opts.sessionID != "" {
			if err := openSession(ctx, ctrl, opts.sessionID); err != nil {
				return err
			}
		}

		onStage := stagePrinter(errOut)
		if opts.quiet {
			onStage = nil
		}
		vm, err := exchange(ctx, ctrl, func() error { return ctrl.SubmitQuery(query, mode) }, onStage)
		if err != nil {
			return err
		}

		r := render.New(styles.NewTheme(), markdownStyle(out, a.cfg.UI.GlamourStyle))
		if err := printReply(out, r, vm, terminalWidth(out), mode == controller.ModeResearch); err != nil {
			return err
		}
		if !opts.quiet && vm.SessionID != "" {
			fmt.Fprintln(errOut, infoStyle.Render("session "+vm.SessionID))
		}
		return nil
	})
}
