// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/delve/internal/config"
	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/ui/render"
	"github.com/jeranaias/delve/internal/ui/styles"
)

const historyFileName = "chat_history"

// lineReader reads prompted lines. *liner.State implements it.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func newChatCommand(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Line-mode conversation",
		Long: `Start a line-mode conversation with input history.

Commands:
  /research        send later questions in research mode
  /chat            send later questions in chat mode
  /new             start a new session
  /edit N TEXT     replace question N and ask again
  /switch ID       open a saved session
  /sessions        list saved sessions
  /cancel          cancel the request in flight
  /help            show this list
  /quit            exit

Ctrl+C cancels a request in flight; at the prompt it exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, a, sessionID)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "open a saved session")
	return cmd
}

func runChat(cmd *cobra.Command, a *app, sessionID string) error {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := ""
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, historyFileName)
		if f, err := os.Open(historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if historyFile != "" && config.EnsureConfigDir() == nil {
			if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				_, _ = line.WriteHistory(f)
				f.Close()
			}
		}
		line.Close()
	}()

	out := cmd.OutOrStdout()
	// Interrupts cancel single requests here, not the whole command.
	ctx := context.WithoutCancel(cmd.Context())

	return a.withController(ctx, func(ctx context.Context, ctrl *controller.Controller) error {
		if sessionID != "" {
			if err := openSession(ctx, ctrl, sessionID); err != nil {
				return err
			}
		}
		r := &repl{
			ctrl:   ctrl,
			in:     line,
			out:    out,
			render: render.New(styles.NewTheme(), markdownStyle(out, a.cfg.UI.GlamourStyle)),
			width:  terminalWidth(out),
			mode:   ctrl.View().Mode,
			interrupt: func(parent context.Context) (context.Context, context.CancelFunc) {
				return signal.NotifyContext(parent, os.Interrupt)
			},
		}
		return r.run(ctx)
	})
}

// repl is the line-mode front end.
type repl struct {
	ctrl   *controller.Controller
	in     lineReader
	out    io.Writer
	render *render.Renderer
	width  int
	mode   controller.Mode

	// interrupt derives the context of one request; it is cancelled when
	// the user interrupts.
	interrupt func(context.Context) (context.Context, context.CancelFunc)
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, headerStyle.Render("delve")+" "+infoStyle.Render("(/help for commands, /quit to exit)"))

	for {
		input, err := r.in.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				fmt.Fprintln(r.out, errorStyle.Render("Error:")+" "+err.Error())
			}
			if quit {
				return nil
			}
			continue
		}

		mode := r.mode
		r.send(ctx, func() error { return r.ctrl.SubmitQuery(input, mode) })
	}
}

func (r *repl) prompt() string {
	return promptStyle.Render(r.mode.String() + "> ")
}

// send runs one exchange and prints its reply.
func (r *repl) send(ctx context.Context, fn func() error) {
	reqCtx, cancel := r.interrupt(ctx)
	defer cancel()

	vm, err := exchange(reqCtx, r.ctrl, fn, stagePrinter(r.out))
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render("Error:")+" "+err.Error())
		return
	}
	// A failed turn is already printed.
	_ = printReply(r.out, r.render, vm, r.width, r.mode == controller.ModeResearch)
	r.printNotices(vm)
}

func (r *repl) printNotices(vm controller.ViewModel) {
	if len(vm.Notices) == 0 {
		return
	}
	for _, n := range vm.Notices {
		fmt.Fprintln(r.out, warningStyle.Render("["+n.Level.String()+"] "+n.Text))
	}
	_ = r.ctrl.DismissNotices()
}

// command runs a slash command. quit reports that the REPL should exit.
func (r *repl) command(ctx context.Context, input string) (quit bool, err error) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h":
		fmt.Fprintln(r.out, infoStyle.Render(
			"/research  /chat  /new  /edit N TEXT  /switch ID  /sessions  /cancel  /quit"))
		return false, nil

	case "/research", "/chat":
		mode, _ := controller.ParseMode(strings.TrimPrefix(name, "/"))
		if err := r.ctrl.SetMode(mode); err != nil {
			return false, err
		}
		r.mode = mode
		fmt.Fprintln(r.out, infoStyle.Render("Mode: "+mode.String()))
		return false, nil

	case "/new":
		if err := r.ctrl.StartNewSession(); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, infoStyle.Render("New session."))
		return false, nil

	case "/edit":
		numStr, text, _ := strings.Cut(rest, " ")
		n, convErr := strconv.Atoi(numStr)
		text = strings.TrimSpace(text)
		if convErr != nil || n < 1 || text == "" {
			return false, errors.New("usage: /edit N TEXT (N counts questions from 1)")
		}
		r.send(ctx, func() error { return r.ctrl.EditTurn(n-1, text) })
		return false, nil

	case "/switch":
		if rest == "" {
			return false, errors.New("usage: /switch ID")
		}
		if err := openSession(ctx, r.ctrl, rest); err != nil {
			return false, err
		}
		r.printTranscript(r.ctrl.View())
		return false, nil

	case "/sessions":
		metas, err := r.ctrl.Sessions(ctx)
		if err != nil {
			return false, err
		}
		printSessionList(r.out, metas, r.ctrl.ActiveSessionID())
		return false, nil

	case "/cancel":
		return false, r.ctrl.CancelInFlight()
	}
	return false, fmt.Errorf("unknown command %s (try /help)", name)
}

// printTranscript prints every turn of a just-opened session.
func (r *repl) printTranscript(vm controller.ViewModel) {
	fmt.Fprintln(r.out, headerStyle.Render(vm.Title))
	for i, t := range vm.Turns {
		fmt.Fprintf(r.out, "%s %s\n", promptStyle.Render(strconv.Itoa(i+1)+"."), t.User)
		if t.Failed {
			fmt.Fprintln(r.out, errorStyle.Render(t.Assistant))
			continue
		}
		fmt.Fprintln(r.out, render.Wrap(t.Assistant, r.width))
	}
	if vm.Canvas != nil {
		fmt.Fprintln(r.out, infoStyle.Render("(this session has a canvas; see \"delve sessions show\")"))
	}
}
