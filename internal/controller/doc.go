// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller is the composition root of a delve conversation.
//
// A Controller owns all mutable conversation state and mutates it from a
// single event loop goroutine started by Run. Commands (SubmitQuery,
// EditTurn, SwitchSession, ...) may be called from any goroutine; they post
// work to the loop and return once it has been applied. Network results,
// typing frames, timers and persistence completions re-enter the loop the
// same way and are checked against a liveness token (request generation plus
// session id) before they touch state, so results from abandoned requests
// are discarded.
//
// Presentation layers are read-only subscribers:
//
//	views, cancel := ctrl.Subscribe()
//	defer cancel()
//	for vm := range views {
//	    render(vm)
//	}
package controller
