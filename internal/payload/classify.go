// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package payload

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// =============================================================================
// CLASSIFY
// =============================================================================

// Classify decides which of the four payload shapes raw represents. It is
// total and pure: any string yields exactly one payload, and parse failures
// fall through to the next attempt, ending in PlainText.
//
// Attempt order:
//  1. JSON array of typed blocks (code fences stripped) -> BlockList
//  2. object with chartType, labels and non-empty values -> ChartSpec
//  3. object with type "video" and a string url          -> VideoRef
//  4. anything else                                      -> PlainText
func Classify(raw string) Payload {
	candidate := StripFences(raw)
	if candidate == "" || !gjson.Valid(candidate) {
		return PlainText{Text: raw}
	}

	doc := gjson.Parse(candidate)
	switch {
	case doc.IsArray():
		if blocks, ok := parseBlocks(doc); ok {
			return BlockList{Blocks: blocks}
		}
	case doc.IsObject():
		if chart, ok := parseChart(doc); ok {
			return chart
		}
		if video, ok := parseVideo(doc); ok {
			return video
		}
	}
	return PlainText{Text: raw}
}

// Encode returns the text form of p: the markdown itself for PlainText, the
// JSON wire form for the structured shapes. Classify(Encode(p)) has the same
// tag as p.
func Encode(p Payload) (string, error) {
	if pt, ok := p.(PlainText); ok {
		return pt.Text, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StripFences removes a leading ``` line (with optional language tag) and a
// trailing ``` marker, then trims surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// =============================================================================
// SHAPE PARSERS
// =============================================================================

func parseBlocks(doc gjson.Result) ([]Block, bool) {
	items := doc.Array()
	if len(items) == 0 {
		return nil, false
	}
	blocks := make([]Block, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			return nil, false
		}
		typ := item.Get("type")
		if typ.Type != gjson.String || !BlockType(typ.Str).Valid() {
			return nil, false
		}
		blocks = append(blocks, parseBlock(BlockType(typ.Str), item))
	}
	return blocks, true
}

func parseBlock(typ BlockType, item gjson.Result) Block {
	b := Block{Type: typ, raw: json.RawMessage(item.Raw)}
	b.Text = firstString(item, "text", "content", "title")
	b.Level = int(item.Get("level").Int())
	b.URL = firstString(item, "url", "src")
	b.Alt = item.Get("alt").String()
	b.Caption = item.Get("caption").String()

	switch typ {
	case BlockTable:
		for _, h := range item.Get("headers").Array() {
			b.Headers = append(b.Headers, h.String())
		}
		for _, row := range item.Get("rows").Array() {
			cells := make([]string, 0, len(row.Array()))
			for _, cell := range row.Array() {
				cells = append(cells, cell.String())
			}
			b.Rows = append(b.Rows, cells)
		}
	case BlockChart:
		// Either nested under "chart"/"data" or inline on the block.
		for _, key := range []string{"chart", "data"} {
			if nested := item.Get(key); nested.IsObject() {
				if c, ok := parseChart(nested); ok {
					b.Chart = &c
					return b
				}
			}
		}
		if c, ok := parseChart(item); ok {
			b.Chart = &c
		}
	}
	return b
}

func parseChart(doc gjson.Result) (ChartSpec, bool) {
	chartType := doc.Get("chartType")
	labels := doc.Get("labels")
	values := doc.Get("values")
	if chartType.Type != gjson.String || !labels.IsArray() || !values.IsArray() {
		return ChartSpec{}, false
	}
	if len(values.Array()) == 0 {
		return ChartSpec{}, false
	}

	var fields map[string]json.RawMessage
	if err := decodeNumbers(doc.Raw, &fields); err != nil {
		return ChartSpec{}, false
	}
	spec := ChartSpec{ChartType: chartType.Str}
	if err := decodeNumbers(labels.Raw, &spec.Labels); err != nil {
		return ChartSpec{}, false
	}
	if err := decodeNumbers(values.Raw, &spec.Values); err != nil {
		return ChartSpec{}, false
	}
	for k, v := range fields {
		if k == "chartType" || k == "labels" || k == "values" {
			continue
		}
		if spec.Extra == nil {
			spec.Extra = make(map[string]json.RawMessage)
		}
		spec.Extra[k] = v
	}
	return spec, true
}

func parseVideo(doc gjson.Result) (VideoRef, bool) {
	if doc.Get("type").Str != "video" {
		return VideoRef{}, false
	}
	url := doc.Get("url")
	if url.Type != gjson.String {
		return VideoRef{}, false
	}
	return VideoRef{
		URL:        url.Str,
		IsFallback: doc.Get("isFallback").Bool(),
	}, true
}

// =============================================================================
// HELPERS
// =============================================================================

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() && v.Type == gjson.String {
			return v.Str
		}
	}
	return ""
}

// decodeNumbers unmarshals with json.Number so numeric values keep their
// original text.
func decodeNumbers(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	return dec.Decode(v)
}
