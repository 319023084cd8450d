// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the color palette and lipgloss styles for the delve
terminal UI.

Colors use lipgloss AdaptiveColor so one palette serves light and dark
terminals. Theme detects the terminal's color profile with termenv:

	theme := styles.NewTheme()
	theme.SetSize(width, height)
	if theme.GetLayoutMode() == styles.LayoutWide {
		// canvas pane beside the conversation
	}

Status text pairs color with an ASCII marker from StatusIndicators.
*/
package styles
