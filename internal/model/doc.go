// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, turns and
// messages.
//
// # Key Types
//
//   - Session: an identified conversation of ordered Turns plus an optional Canvas
//   - Turn: one user Message and its (possibly pending) assistant Message
//   - Message: role, raw content, classified payload and animation flag
//   - Canvas: long-form research artifact owned by one session
//   - Record: the persisted document shape of a Session
//
// # Usage
//
//	s := model.NewSession(time.Now())
//	i := s.AppendTurn("Hello", time.Now())
//	s.SetAssistant(i, model.NewAssistantMessage(reply, true, time.Now()))
//	rec := s.ToRecord()
package model
