// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/delve/internal/payload"
	"github.com/jeranaias/delve/internal/ui/styles"
)

// maxLabelWidth caps the label column of a bar chart.
const maxLabelWidth = 24

// Renderer draws answer payloads.
type Renderer struct {
	theme *styles.Theme
	md    *Markdown
}

// New creates a renderer using theme and the given glamour style.
func New(theme *styles.Theme, markdownStyle string) *Renderer {
	return &Renderer{theme: theme, md: NewMarkdown(markdownStyle)}
}

// Markdown renders free text.
func (r *Renderer) Markdown(text string, width int) string {
	return r.md.Render(text, width)
}

// Payload renders p at width. A nil payload renders as empty.
func (r *Renderer) Payload(p payload.Payload, width int) string {
	switch v := p.(type) {
	case payload.PlainText:
		return r.Markdown(v.Text, width)
	case payload.BlockList:
		return r.Blocks(v.Blocks, width)
	case payload.ChartSpec:
		return r.Chart(v, width)
	case payload.VideoRef:
		return r.Video(v)
	default:
		return ""
	}
}

// Blocks renders a block list top to bottom with a blank line between
// blocks.
func (r *Renderer) Blocks(blocks []payload.Block, width int) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if s := r.block(b, width); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (r *Renderer) block(b payload.Block, width int) string {
	switch b.Type {
	case payload.BlockHeading:
		level := b.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return r.Markdown(strings.Repeat("#", level)+" "+b.Text, width)
	case payload.BlockParagraph:
		return r.Markdown(b.Text, width)
	case payload.BlockImage:
		return r.image(b)
	case payload.BlockChart:
		if b.Chart == nil {
			return ""
		}
		return r.Chart(*b.Chart, width)
	case payload.BlockTable:
		return r.Table(b.Headers, b.Rows, width)
	default:
		return ""
	}
}

func (r *Renderer) image(b payload.Block) string {
	alt := b.Alt
	if alt == "" {
		alt = "image"
	}
	lines := []string{"[" + alt + "] " + r.theme.Link.Render(b.URL)}
	if b.Caption != "" {
		lines = append(lines, r.theme.Caption.Render(b.Caption))
	}
	return strings.Join(lines, "\n")
}

// Table renders a bordered table fitted to width.
func (r *Renderer) Table(headers []string, rows [][]string, width int) string {
	if len(headers) == 0 && len(rows) == 0 {
		return ""
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.theme.Muted).
		Headers(headers...).
		Rows(rows...)
	if width > 0 {
		t = t.Width(width)
	}
	return t.String()
}

// Video renders a video reference as a link, noting when the backend
// substituted fallback media.
func (r *Renderer) Video(v payload.VideoRef) string {
	line := "Video: " + r.theme.Link.Render(v.URL)
	if v.IsFallback {
		line += "\n" + r.theme.Caption.Render("The requested video was unavailable; showing a related one.")
	}
	return line
}

// Chart renders a chart spec as horizontal bars. Specs with non-numeric
// values fall back to a label/value list.
func (r *Renderer) Chart(c payload.ChartSpec, width int) string {
	labels := c.LabelStrings()
	nums, ok := c.Numbers()

	var b strings.Builder
	title := "Chart"
	if c.ChartType != "" {
		title += ": " + c.ChartType
	}
	b.WriteString(r.theme.CanvasTitle.Render(title))

	n := max(len(labels), len(c.Values))
	if n == 0 {
		b.WriteString("\n" + r.theme.Muted.Render("(no data)"))
		return b.String()
	}

	labelW := 0
	for _, l := range labels {
		labelW = max(labelW, runewidth.StringWidth(l))
	}
	labelW = min(labelW, maxLabelWidth)

	if !ok {
		for i := 0; i < n; i++ {
			b.WriteString("\n" + r.theme.ChartLabel.Render(PadRight(labelAt(labels, i, labelW), labelW)) +
				"  " + valueAt(c.Values, i))
		}
		return b.String()
	}

	peak := 0.0
	for _, v := range nums {
		peak = math.Max(peak, math.Abs(v))
	}
	valueW := 0
	for _, v := range nums {
		valueW = max(valueW, len(formatNumber(v)))
	}
	barMax := width - labelW - valueW - 4
	if barMax < 1 {
		barMax = 1
	}

	for i := 0; i < n; i++ {
		label := PadRight(labelAt(labels, i, labelW), labelW)
		if i >= len(nums) {
			b.WriteString("\n" + r.theme.ChartLabel.Render(label))
			continue
		}
		bar := 0
		if peak > 0 {
			bar = int(math.Round(math.Abs(nums[i]) / peak * float64(barMax)))
		}
		fill := PadRight(strings.Repeat("█", bar), barMax)
		fmt.Fprintf(&b, "\n%s %s %s",
			r.theme.ChartLabel.Render(label),
			r.theme.ChartBar.Render(fill),
			formatNumber(nums[i]))
	}
	return b.String()
}

func labelAt(labels []string, i, width int) string {
	if i >= len(labels) {
		return ""
	}
	return runewidth.Truncate(labels[i], width, "…")
}

func valueAt(values []any, i int) string {
	if i >= len(values) || values[i] == nil {
		return "-"
	}
	return fmt.Sprint(values[i])
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
