// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the delve command tree.
//
// Commands:
//
//	delve                      Start the terminal UI (same as "delve tui")
//	delve tui [--session ID]   Start the terminal UI
//	delve ask [--research] Q   Ask one question and print the answer
//	delve chat [--session ID]  Line-mode conversation with history
//	delve sessions list        List saved sessions
//	delve sessions show ID     Print a saved session
//	delve sessions delete ID   Delete a saved session
//	delve sessions export ID   Write a session to Markdown, JSON or HTML
//	delve config show          Print the effective configuration
//	delve config get KEY       Print one configuration value
//	delve config path          Print the config file location
//
// Global flags:
//
//	-c, --config PATH   Config file (default ~/.delve/config.toml)
//	-v, --verbose       Debug logging
//	    --store NAME    Session store: file, sqlite, firestore or memory
//
// Every command that talks to the research service runs a session
// controller next to its front end in one errgroup; the controller stops
// and drains queued saves when the front end returns.
package cli
