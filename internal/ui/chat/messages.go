// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/model"
)

// listTimeout bounds the session list fetch for the picker.
const listTimeout = 10 * time.Second

// ViewMsg carries a new controller snapshot.
type ViewMsg struct {
	View controller.ViewModel
}

// ViewClosedMsg is sent when the controller stops publishing.
type ViewClosedMsg struct{}

// CommandDoneMsg reports the result of a controller command.
type CommandDoneMsg struct {
	Op  string
	Err error
}

// SessionsMsg carries the session list for the picker.
type SessionsMsg struct {
	Sessions []model.SessionMeta
	Err      error
}

// waitForView blocks until the next snapshot arrives on ch.
func waitForView(ch <-chan controller.ViewModel) tea.Cmd {
	return func() tea.Msg {
		vm, ok := <-ch
		if !ok {
			return ViewClosedMsg{}
		}
		return ViewMsg{View: vm}
	}
}

// runCommand runs a controller command off the Update goroutine.
func runCommand(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return CommandDoneMsg{Op: op, Err: fn()}
	}
}

func listSessions(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()
		metas, err := ctrl.Sessions(ctx)
		return SessionsMsg{Sessions: metas, Err: err}
	}
}
