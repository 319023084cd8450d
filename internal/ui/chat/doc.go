// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive terminal view for delve.

The Model is a Bubble Tea model that draws controller view models and turns
key presses into controller commands. It never mutates session state itself:
every change goes through the controller and comes back as a new
controller.ViewModel on the subscription channel.

# Layout

	header      title, mode and session id
	body        conversation viewport, canvas pane beside it (wide
	            terminals) or below it (narrow terminals)
	progress    research stages and metrics while a request runs
	notices     persistence and background warnings
	input       query text box
	status bar  key help and the last command error

# Key Bindings

	Enter      send the query (or the edit, in edit mode)
	Tab        toggle chat / research mode
	Ctrl+E     edit the last question
	Ctrl+N     start a new session
	Ctrl+O     open the session picker
	Ctrl+K     close or reopen the canvas
	Ctrl+L     dismiss notices
	Esc        skip the typing animation, cancel the request, or leave
	           edit mode / the picker
	PgUp/PgDn  scroll the conversation
	Ctrl+C     quit
*/
package chat
