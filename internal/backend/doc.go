// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the research service.
//
// Two request shapes are supported:
//
//   - Chat: POST /chat, a single-shot request answered with {"reply": "..."}
//   - OpenStream: POST /research/stream, answered with a Server-Sent Events
//     body that package stream decodes
//
// Both share a pooled transport. Streams use a client without a timeout and
// are bounded by the request context instead. Non-2xx responses become
// *APIError; connection and read failures become *TransportError.
package backend
