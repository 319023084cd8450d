// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// Header
	Header       lipgloss.Style
	HeaderTitle  lipgloss.Style
	ModeChat     lipgloss.Style
	ModeResearch lipgloss.Style

	// Conversation
	UserLabel       lipgloss.Style
	AssistantLabel  lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	PendingText     lipgloss.Style
	FailedText      lipgloss.Style

	// Research progress
	StageActive lipgloss.Style
	StageDone   lipgloss.Style
	StageExtra  lipgloss.Style
	MetricKey   lipgloss.Style
	MetricValue lipgloss.Style

	// Canvas pane
	Canvas      lipgloss.Style
	CanvasTitle lipgloss.Style

	// Input and status
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	StatusBar      lipgloss.Style
	HelpText       lipgloss.Style

	// Notices
	NoticeInfo  lipgloss.Style
	NoticeWarn  lipgloss.Style
	NoticeError lipgloss.Style

	// Session picker
	PickerItem     lipgloss.Style
	PickerSelected lipgloss.Style

	// Content
	ChartBar   lipgloss.Style
	ChartLabel lipgloss.Style
	Link       lipgloss.Style
	Caption    lipgloss.Style
	Muted      lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	output := termenv.NewOutput(nil)
	return newTheme(output.ColorProfile(), termenv.HasDarkBackground())
}

// NewThemeWithProfile creates a theme for a fixed color profile. Tests use
// termenv.Ascii to get stable output.
func NewThemeWithProfile(profile termenv.Profile, dark bool) *Theme {
	return newTheme(profile, dark)
}

func newTheme(profile termenv.Profile, dark bool) *Theme {
	t := &Theme{
		IsDark:       dark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.ModeChat = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ModeResearch = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.UserLabel = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.AssistantLabel = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.UserBubble = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)

	t.AssistantBubble = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBubbleBorder).
		PaddingLeft(1)

	t.PendingText = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.FailedText = lipgloss.NewStyle().
		Foreground(Rose)

	t.StageActive = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.StageDone = lipgloss.NewStyle().
		Foreground(Emerald)

	t.StageExtra = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.MetricKey = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.MetricValue = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Bold(true)

	t.Canvas = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)

	t.CanvasTitle = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.HelpText = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.NoticeInfo = lipgloss.NewStyle().Foreground(Emerald)
	t.NoticeWarn = lipgloss.NewStyle().Foreground(Amber)
	t.NoticeError = lipgloss.NewStyle().Foreground(Rose).Bold(true)

	t.PickerItem = lipgloss.NewStyle().
		Foreground(TextSecondary).
		PaddingLeft(2)

	t.PickerSelected = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true).
		PaddingLeft(2)

	t.ChartBar = lipgloss.NewStyle().Foreground(Amber)
	t.ChartLabel = lipgloss.NewStyle().Foreground(TextSecondary)

	t.Link = lipgloss.NewStyle().
		Foreground(LinkColor).
		Underline(true)

	t.Caption = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 100 columns: canvas below the chat
	LayoutWide                     // canvas beside the chat
)

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 100 {
		return LayoutNarrow
	}
	return LayoutWide
}
