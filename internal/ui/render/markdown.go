// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Glamour style names accepted by NewMarkdown besides the standard ones.
const (
	StyleAuto  = "auto"
	StylePlain = "plain"
)

// Markdown renders markdown with glamour. The underlying renderer is built
// lazily and rebuilt when the wrap width changes.
type Markdown struct {
	style string

	mu    sync.Mutex
	width int
	tr    *glamour.TermRenderer
	err   error
}

// NewMarkdown creates a markdown renderer. style is "auto", "plain" (no
// markdown processing) or a glamour standard style such as "dark", "light"
// or "notty".
func NewMarkdown(style string) *Markdown {
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		style = StyleAuto
	}
	return &Markdown{style: style}
}

// Render renders content wrapped to width. It returns the content wrapped
// but otherwise unchanged if glamour cannot render it.
func (m *Markdown) Render(content string, width int) string {
	if width <= 0 {
		width = 80
	}
	if m.style == StylePlain {
		return Wrap(content, width)
	}

	tr, err := m.renderer(width)
	if err != nil {
		return Wrap(content, width)
	}
	out, err := tr.Render(content)
	if err != nil {
		return Wrap(content, width)
	}
	return strings.Trim(out, "\n")
}

func (m *Markdown) renderer(width int) (*glamour.TermRenderer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tr != nil && m.width == width {
		return m.tr, nil
	}

	opt := glamour.WithStandardStyle(m.style)
	if m.style == StyleAuto {
		opt = glamour.WithAutoStyle()
	}
	m.tr, m.err = glamour.NewTermRenderer(opt, glamour.WithWordWrap(width))
	m.width = width
	if m.err != nil {
		m.tr = nil
	}
	return m.tr, m.err
}
