// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/delve/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes a session as a Markdown document: YAML front
// matter, the conversation, then the canvas.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(rec model.Record) ([]byte, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}

	var sb strings.Builder
	name := title(rec)

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(name))
		fmt.Fprintf(&sb, "id: %s\n", rec.ID)
		fmt.Fprintf(&sb, "date: %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(rec.Turns))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: delve\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(name))
	sb.WriteString("## Conversation\n\n")

	for i, entry := range rec.Turns {
		if e.options.IncludeTimestamps && !entry.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(entry.Role), formatShortTimestamp(entry.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(entry.Role))
		}
		sb.WriteString(strings.TrimSpace(entry.Content))
		sb.WriteString("\n\n")
		if i < len(rec.Turns)-1 {
			sb.WriteString("---\n\n")
		}
	}

	if c := rec.Canvas; c != nil {
		sb.WriteString("## Full Report\n\n")
		if c.Summary != "" {
			for _, line := range strings.Split(strings.TrimSpace(c.Summary), "\n") {
				sb.WriteString("> " + line + "\n")
			}
			sb.WriteString("\n")
		}
		if e.options.IncludeMetadata && len(c.Metrics) > 0 {
			for _, m := range sortedMetrics(c.Metrics) {
				sb.WriteString("- " + m + "\n")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(strings.TrimSpace(c.FullAnswer))
		sb.WriteString("\n")
	}

	return []byte(strings.TrimRight(sb.String(), "\n") + "\n"), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType implements Exporter.
func (e *MarkdownExporter) MimeType() string { return "text/markdown" }

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	)
	return r.Replace(s)
}

// escapeYAML quotes s when it holds YAML-significant characters.
func escapeYAML(s string) string {
	if !strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") && !strings.HasPrefix(s, " ") && !strings.HasSuffix(s, " ") {
		return s
	}
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return `"` + r.Replace(s) + `"`
}
