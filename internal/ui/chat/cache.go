// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "strconv"

// maxCachedRenders bounds the render cache; it is cleared when full.
const maxCachedRenders = 256

// renderCache keeps rendered replies so snapshots during an animation do
// not re-run markdown rendering for every settled turn. Bubble Tea calls
// Update and View from one goroutine, so no locking.
type renderCache struct {
	entries map[string]string
}

func newRenderCache() *renderCache {
	return &renderCache{entries: make(map[string]string)}
}

func (c *renderCache) get(width int, content string, build func() string) string {
	key := strconv.Itoa(width) + "\x00" + content
	if s, ok := c.entries[key]; ok {
		return s
	}
	if len(c.entries) >= maxCachedRenders {
		clear(c.entries)
	}
	s := build()
	c.entries[key] = s
	return s
}
