// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keyboard bindings for the chat view.
type KeyMap struct {
	Submit       key.Binding
	ToggleMode   key.Binding
	EditLast     key.Binding
	NewSession   key.Binding
	Sessions     key.Binding
	ToggleCanvas key.Binding
	Dismiss      key.Binding
	Cancel       key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
	CanvasUp     key.Binding
	CanvasDown   key.Binding
	Help         key.Binding
	Quit         key.Binding

	// Session picker
	PickerUp   key.Binding
	PickerDown key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		ToggleMode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "chat/research"),
		),
		EditLast: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("C-e", "edit last"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new session"),
		),
		Sessions: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "sessions"),
		),
		ToggleCanvas: key.NewBinding(
			key.WithKeys("ctrl+k"),
			key.WithHelp("C-k", "canvas"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "dismiss notices"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "skip/cancel"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		CanvasUp: key.NewBinding(
			key.WithKeys("shift+up"),
			key.WithHelp("S-up", "scroll canvas"),
		),
		CanvasDown: key.NewBinding(
			key.WithKeys("shift+down"),
			key.WithHelp("S-down", "scroll canvas"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
		PickerUp: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("up", "previous"),
		),
		PickerDown: key.NewBinding(
			key.WithKeys("down", "ctrl+j"),
			key.WithHelp("down", "next"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.ToggleMode, k.Cancel, k.Help, k.Quit}
}

// FullHelp returns the bindings shown in the help view, grouped by task.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.ToggleMode, k.EditLast, k.Cancel},
		{k.NewSession, k.Sessions, k.ToggleCanvas, k.Dismiss},
		{k.PageUp, k.PageDown, k.CanvasUp, k.CanvasDown},
		{k.Help, k.Quit},
	}
}
