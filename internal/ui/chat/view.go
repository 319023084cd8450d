// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/payload"
	"github.com/jeranaias/delve/internal/session"
	"github.com/jeranaias/delve/internal/ui/render"
	"github.com/jeranaias/delve/internal/ui/styles"
	"github.com/jeranaias/delve/internal/util"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

func (m Model) renderChat() string {
	if !m.ready {
		return "Starting delve..."
	}

	var body string
	switch {
	case m.picker.open:
		body = lipgloss.NewStyle().
			Width(m.width).
			Height(m.layout.convHeight + m.layout.canvasHeightBelow()).
			Render(m.renderPicker())
	case m.vm.Canvas == nil:
		body = m.viewport.View()
	case m.layout.sideBySide:
		conv := lipgloss.NewStyle().Width(m.layout.convWidth).Render(m.viewport.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, conv, m.renderCanvasPane())
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), m.renderCanvasPane())
	}

	parts := []string{m.renderHeader(), body}
	if n := m.renderNotices(); n != "" {
		parts = append(parts, n)
	}
	parts = append(parts, m.renderInput(), m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (l layout) canvasHeightBelow() int {
	if l.sideBySide {
		return 0
	}
	return l.canvasHeight
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.vm.Title
	if title == "" {
		title = "New Session"
	}

	left := m.theme.HeaderTitle.Render("delve") + "  " + util.TruncateRunes(title, max(m.width/2, 10))

	badge := m.theme.ModeChat.Render("[chat]")
	if m.mode == controller.ModeResearch {
		badge = m.theme.ModeResearch.Render("[research]")
	}
	right := badge
	if id := m.vm.SessionID; id != "" {
		right = m.theme.Muted.Render(util.FirstRunes(id, 8)) + " " + badge
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m Model) renderConversation(width int) string {
	if width < 10 {
		width = 10
	}
	var b strings.Builder

	if m.vm.LoadingSession != "" {
		b.WriteString(m.theme.PendingText.Render("Loading session " + util.FirstRunes(m.vm.LoadingSession, 8) + "..."))
		b.WriteString("\n\n")
	}

	if len(m.vm.Turns) == 0 {
		b.WriteString(m.theme.Muted.Render(render.Wrap(
			"Ask a question to start. Tab switches between chat and research mode.", width)))
		return b.String()
	}

	inner := width - 2
	for i, t := range m.vm.Turns {
		label := m.theme.UserLabel.Render("You")
		if i == m.editing {
			label += " " + m.theme.StageActive.Render("(editing)")
		}
		b.WriteString(label + "\n")
		b.WriteString(m.theme.UserBubble.Render(render.Wrap(t.User, inner-1)))
		b.WriteString("\n\n")

		b.WriteString(m.theme.AssistantLabel.Render("Delve") + "\n")
		b.WriteString(m.theme.AssistantBubble.Render(m.renderReply(t, inner-1)))
		b.WriteString("\n")

		if t.Pending && i == len(m.vm.Turns)-1 {
			if p := m.renderProgress(inner); p != "" {
				b.WriteString("\n" + p + "\n")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderReply(t controller.TurnView, width int) string {
	switch {
	case t.Pending:
		stage := m.vm.Stage
		if stage == "" {
			stage = "Waiting for the research service"
		}
		return m.spinner.View() + " " + m.theme.PendingText.Render(stage+"...")
	case t.Failed:
		return m.theme.FailedText.Render(render.Wrap(styles.StatusIndicators.Error+" "+t.Assistant, width))
	case t.Animating:
		return render.Wrap(t.Assistant, width)
	}

	p := t.Payload
	if p == nil {
		p = payload.PlainText{Text: t.Assistant}
	}
	return m.cache.get(width, t.Assistant, func() string {
		return m.rend.Payload(p, width)
	})
}

// renderProgress shows the research stage log and live metrics.
func (m Model) renderProgress(width int) string {
	if len(m.vm.StageLog) == 0 && len(m.vm.Metrics) == 0 {
		return ""
	}
	log := m.vm.StageLog
	if !m.showStageLog && len(log) > 1 {
		log = log[len(log)-1:]
	}
	var lines []string
	for i, e := range log {
		line := e.Label
		if extra := formatExtra(e.Extra); extra != "" {
			line += " " + m.theme.StageExtra.Render(extra)
		}
		if i == len(log)-1 && m.vm.InFlight {
			lines = append(lines, m.theme.StageActive.Render(">")+" "+line)
		} else {
			lines = append(lines, m.theme.StageDone.Render(styles.StatusIndicators.Success)+" "+line)
		}
	}
	if metrics := m.renderMetrics(m.vm.Metrics); metrics != "" {
		lines = append(lines, metrics)
	}
	return render.Wrap(strings.Join(lines, "\n"), width)
}

func (m Model) renderMetrics(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, m.theme.MetricKey.Render(k+":")+" "+
			m.theme.MetricValue.Render(strconv.FormatFloat(metrics[k], 'f', -1, 64)))
	}
	return strings.Join(parts, "  ")
}

func formatExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, extra[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// =============================================================================
// CANVAS
// =============================================================================

func (m Model) renderCanvasPane() string {
	title := m.theme.CanvasTitle.Render("Canvas")
	return m.theme.Canvas.
		Width(max(m.layout.canvasWidth-2, 1)).
		Render(title + "\n" + m.canvas.View())
}

func (m Model) renderCanvasBody(width int) string {
	cv := m.vm.Canvas
	if cv == nil {
		return ""
	}
	if cv.Content == nil {
		return m.theme.PendingText.Render("Loading canvas...")
	}

	var parts []string
	if s := strings.TrimSpace(cv.Content.Summary); s != "" {
		parts = append(parts, m.theme.Caption.Render(render.Wrap(s, width)))
	}
	if metrics := m.renderMetrics(cv.Content.Metrics); metrics != "" {
		parts = append(parts, render.Wrap(metrics, width))
	}
	full := cv.Content.FullAnswer
	parts = append(parts, m.cache.get(width, "canvas\x00"+full, func() string {
		return m.rend.Payload(payload.Classify(full), width)
	}))
	return strings.Join(parts, "\n\n")
}

// =============================================================================
// SESSION PICKER
// =============================================================================

func (m Model) renderPicker() string {
	var b strings.Builder
	b.WriteString(m.theme.CanvasTitle.Render("Sessions") + "\n\n")

	switch {
	case m.picker.loading:
		b.WriteString(m.theme.PendingText.Render("Loading sessions..."))
	case m.picker.err != nil:
		b.WriteString(m.theme.NoticeError.Render(styles.StatusIndicators.Error + " " + m.picker.err.Error()))
	case len(m.picker.items) == 0:
		b.WriteString(m.theme.Muted.Render("No saved sessions."))
	default:
		for i, s := range m.picker.items {
			line := fmt.Sprintf("%s  %s  (%d turns, %s)",
				util.FirstRunes(s.ID, 8), s.Title, s.TurnCount, s.UpdatedAt.Format("2006-01-02 15:04"))
			if s.HasCanvas {
				line += " [canvas]"
			}
			if s.ID == m.vm.SessionID {
				line += " *"
			}
			if i == m.picker.index {
				b.WriteString(m.theme.PickerSelected.Render("> "+line) + "\n")
			} else {
				b.WriteString(m.theme.PickerItem.Render("  "+line) + "\n")
			}
		}
	}
	b.WriteString("\n" + m.theme.HelpText.Render("Enter open  Esc close"))
	return b.String()
}

// =============================================================================
// NOTICES, INPUT, STATUS
// =============================================================================

func (m Model) renderNotices() string {
	notices := m.vm.Notices
	if len(notices) == 0 {
		return ""
	}
	if len(notices) > maxNotices {
		notices = notices[len(notices)-maxNotices:]
	}
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		text := util.TruncateRunes(n.Text, max(m.width-6, 10))
		switch n.Level {
		case session.LevelError:
			lines = append(lines, m.theme.NoticeError.Render(styles.StatusIndicators.Error+" "+text))
		case session.LevelWarn:
			lines = append(lines, m.theme.NoticeWarn.Render(styles.StatusIndicators.Warning+" "+text))
		default:
			lines = append(lines, m.theme.NoticeInfo.Render(styles.StatusIndicators.Info+" "+text))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	if m.status != "" {
		return m.theme.NoticeError.Render(util.TruncateRunes(m.status, max(m.width-2, 10)))
	}
	return m.theme.StatusBar.Width(m.width).Render(m.help.View(m.keys))
}
