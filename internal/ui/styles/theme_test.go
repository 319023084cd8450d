// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
)

func TestNewThemeWithProfile(t *testing.T) {
	theme := NewThemeWithProfile(termenv.TrueColor, true)
	if !theme.IsDark {
		t.Error("expected dark theme")
	}
	if !theme.HasTrueColor {
		t.Error("expected true color")
	}

	ascii := NewThemeWithProfile(termenv.Ascii, false)
	if ascii.HasTrueColor {
		t.Error("ascii profile should not report true color")
	}
}

func TestLayoutMode(t *testing.T) {
	theme := NewThemeWithProfile(termenv.Ascii, true)

	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{99, LayoutNarrow},
		{100, LayoutWide},
		{200, LayoutWide},
	}
	for _, tt := range tests {
		theme.SetSize(tt.width, 40)
		if got := theme.GetLayoutMode(); got != tt.want {
			t.Errorf("width %d: got %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestStatusIndicatorsAreASCII(t *testing.T) {
	for _, s := range []string{
		StatusIndicators.Success,
		StatusIndicators.Error,
		StatusIndicators.Warning,
		StatusIndicators.Info,
		StatusIndicators.Pending,
	} {
		for _, r := range s {
			if r > 127 {
				t.Errorf("indicator %q is not ASCII", s)
			}
		}
	}
}
