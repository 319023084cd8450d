// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream ingests the incremental event feed of a single in-flight
// research request.
//
// The Machine is a pure transition function: Apply takes one Event and
// returns the Effects its owner must carry out (publish a stage, bind an
// artifact, show the answer, release the transport). It performs no I/O, so
// it is tested without a live connection.
//
// A Feed adapts an HTTP response body to the Machine: it parses
// Server-Sent Events with SSEReader, decodes them with ParseEvent and
// delivers them on a channel.
//
// State flow:
//
//	Idle -> Connecting -> Preparing -> Streaming -> Finalizing -> Done
//	                 \__________________\______________\_______-> Errored
package stream
