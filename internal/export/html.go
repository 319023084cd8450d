// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/delve/internal/model"
)

// codeFence matches a fenced code block and captures its language and body.
var codeFence = regexp.MustCompile("(?s)```([\\w+#.-]*)[ \\t]*\\n(.*?)```")

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone HTML page with embedded CSS. Prose is
// converted from Markdown with raw HTML disabled; code fences are
// highlighted with inline styles.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Export implements Exporter.
func (e *HTMLExporter) Export(rec model.Record) ([]byte, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}

	theme := e.theme()
	name := html.EscapeString(title(rec))

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", name)
	sb.WriteString("<meta name=\"generator\" content=\"delve\">\n")
	fmt.Fprintf(&sb, "<meta name=\"date\" content=\"%s\">\n", rec.CreatedAt.Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", theme)

	sb.WriteString("<header class=\"header\">\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", name)
	if e.options.IncludeMetadata {
		sb.WriteString("<div class=\"metadata\">\n")
		fmt.Fprintf(&sb, "<span><strong>Created:</strong> %s</span>\n", formatTimestamp(rec.CreatedAt))
		fmt.Fprintf(&sb, "<span><strong>Messages:</strong> %d</span>\n", len(rec.Turns))
		fmt.Fprintf(&sb, "<span><strong>Session:</strong> %s</span>\n", html.EscapeString(rec.ID))
		sb.WriteString("</div>\n")
	}
	sb.WriteString("</header>\n")

	sb.WriteString("<main class=\"conversation\">\n")
	for _, entry := range rec.Turns {
		fmt.Fprintf(&sb, "<div class=\"message %s-message\">\n", html.EscapeString(strings.ToLower(entry.Role)))
		sb.WriteString("<div class=\"message-header\">")
		fmt.Fprintf(&sb, "<span class=\"role-label\">%s</span>", html.EscapeString(roleLabel(entry.Role)))
		if e.options.IncludeTimestamps && !entry.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "<span class=\"timestamp\">%s</span>", formatShortTimestamp(entry.Timestamp))
		}
		sb.WriteString("</div>\n<div class=\"message-content\">\n")
		sb.WriteString(e.formatContent(entry.Content))
		sb.WriteString("</div>\n</div>\n")
	}
	sb.WriteString("</main>\n")

	if c := rec.Canvas; c != nil {
		sb.WriteString("<section class=\"canvas\">\n<h2>Full Report</h2>\n")
		if c.Summary != "" {
			fmt.Fprintf(&sb, "<blockquote>%s</blockquote>\n", html.EscapeString(c.Summary))
		}
		if e.options.IncludeMetadata && len(c.Metrics) > 0 {
			sb.WriteString("<ul class=\"metrics\">\n")
			for _, m := range sortedMetrics(c.Metrics) {
				fmt.Fprintf(&sb, "<li>%s</li>\n", html.EscapeString(m))
			}
			sb.WriteString("</ul>\n")
		}
		sb.WriteString(e.formatContent(c.FullAnswer))
		sb.WriteString("</section>\n")
	}

	fmt.Fprintf(&sb, "<footer class=\"footer\">Exported from <strong>delve</strong> on %s</footer>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType implements Exporter.
func (e *HTMLExporter) MimeType() string { return "text/html" }

func (e *HTMLExporter) theme() string {
	if e.options.Theme == "light" {
		return "light"
	}
	return "dark"
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

// formatContent converts Markdown content to HTML. Code fences go through
// the highlighter, everything between them through the Markdown converter.
func (e *HTMLExporter) formatContent(content string) string {
	var sb strings.Builder
	last := 0
	for _, m := range codeFence.FindAllStringSubmatchIndex(content, -1) {
		sb.WriteString(e.markdown(content[last:m[0]]))
		lang := content[m[2]:m[3]]
		code := content[m[4]:m[5]]
		sb.WriteString(e.highlight(code, lang))
		last = m[1]
	}
	sb.WriteString(e.markdown(content[last:]))
	return sb.String()
}

func (e *HTMLExporter) markdown(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>\n"
	}
	return buf.String()
}

// highlight renders code as a highlighted <pre> block. Unknown languages
// are guessed from the code.
func (e *HTMLExporter) highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if e.theme() == "light" {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	plain := "<pre><code>" + html.EscapeString(code) + "</code></pre>\n"
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return plain
	}
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.TabWidth(4)).Format(&buf, style, iterator); err != nil {
		return plain
	}

	label := ""
	if lang != "" {
		label = fmt.Sprintf("<div class=\"code-lang\">%s</div>", html.EscapeString(lang))
	}
	return "<div class=\"code-block\">" + label + buf.String() + "</div>\n"
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const css = `<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
:root {
  --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
  --font-mono: "SF Mono", Monaco, "Fira Code", "Source Code Pro", monospace;
}
.dark-theme {
  --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
  --text-primary: #c0caf5; --text-muted: #565f89; --border: #414868;
  --user-bg: #1f2335; --accent: #bb9af7;
}
.light-theme {
  --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
  --text-primary: #24292e; --text-muted: #6a737d; --border: #e1e4e8;
  --user-bg: #f6f8fa; --accent: #6f42c1;
}
body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px; }
.container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
.header { padding: 32px; background: var(--bg-tertiary); }
.header h1 { font-size: 26px; margin-bottom: 12px; }
.metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }
.conversation, .canvas { padding: 24px 32px; }
.canvas { border-top: 2px solid var(--border); }
.canvas h2 { color: var(--accent); margin-bottom: 12px; }
.canvas blockquote { border-left: 3px solid var(--accent); padding-left: 12px; margin-bottom: 12px; color: var(--text-muted); }
.metrics { margin: 0 0 12px 20px; font-size: 14px; }
.message { margin-bottom: 20px; padding: 16px; border-radius: 8px; border: 1px solid var(--border); }
.user-message { background: var(--user-bg); }
.message-header { display: flex; justify-content: space-between; margin-bottom: 8px; font-size: 14px; }
.role-label { font-weight: 600; color: var(--accent); }
.timestamp { color: var(--text-muted); }
.message-content p, .canvas p { margin-bottom: 10px; }
.code-block { margin: 12px 0; border-radius: 6px; overflow: hidden; }
.code-block pre { padding: 12px; overflow-x: auto; font-family: var(--font-mono); font-size: 14px; }
.code-lang { font-size: 12px; padding: 4px 12px; background: var(--bg-tertiary); color: var(--text-muted); }
code { font-family: var(--font-mono); }
table { border-collapse: collapse; margin: 12px 0; }
th, td { border: 1px solid var(--border); padding: 4px 8px; }
.footer { padding: 16px 32px; font-size: 13px; color: var(--text-muted); border-top: 1px solid var(--border); }
</style>
`
