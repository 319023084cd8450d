// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package payload

import (
	"encoding/json"
	"strconv"
)

// =============================================================================
// PAYLOAD TAG
// =============================================================================

// Tag identifies which renderer an answer requires.
type Tag int

const (
	TagPlainText Tag = iota
	TagBlockList
	TagChartSpec
	TagVideoRef
)

// String returns the tag's wire name.
func (t Tag) String() string {
	switch t {
	case TagPlainText:
		return "plain_text"
	case TagBlockList:
		return "block_list"
	case TagChartSpec:
		return "chart_spec"
	case TagVideoRef:
		return "video_ref"
	default:
		return "unknown"
	}
}

// Payload is the closed set of answer shapes: PlainText, BlockList,
// ChartSpec and VideoRef.
type Payload interface {
	Tag() Tag
	isPayload()
}

// Animatable reports whether a payload is revealed through the typing
// animation. Structured payloads render at once.
func Animatable(p Payload) bool {
	return p != nil && p.Tag() == TagPlainText
}

// =============================================================================
// PLAIN TEXT
// =============================================================================

// PlainText is markdown-capable free text.
type PlainText struct {
	Text string
}

func (PlainText) Tag() Tag   { return TagPlainText }
func (PlainText) isPayload() {}

// =============================================================================
// BLOCK LIST
// =============================================================================

// BlockType is the vocabulary allowed in a block list.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockImage     BlockType = "image"
	BlockChart     BlockType = "chart"
	BlockTable     BlockType = "table"
)

// Valid reports whether t is in the block vocabulary.
func (t BlockType) Valid() bool {
	switch t {
	case BlockHeading, BlockParagraph, BlockImage, BlockChart, BlockTable:
		return true
	}
	return false
}

// Block is one structured content block. Only the fields relevant to Type
// are populated.
type Block struct {
	Type    BlockType
	Text    string
	Level   int
	URL     string
	Alt     string
	Caption string
	Headers []string
	Rows    [][]string
	Chart   *ChartSpec

	// raw is the block exactly as received, re-emitted by MarshalJSON.
	raw json.RawMessage
}

// MarshalJSON emits the block as received, or its fields when the block was
// built in code.
func (b Block) MarshalJSON() ([]byte, error) {
	if len(b.raw) > 0 {
		return b.raw, nil
	}
	type wire struct {
		Type    BlockType  `json:"type"`
		Text    string     `json:"text,omitempty"`
		Level   int        `json:"level,omitempty"`
		URL     string     `json:"url,omitempty"`
		Alt     string     `json:"alt,omitempty"`
		Caption string     `json:"caption,omitempty"`
		Headers []string   `json:"headers,omitempty"`
		Rows    [][]string `json:"rows,omitempty"`
		Chart   *ChartSpec `json:"chart,omitempty"`
	}
	return json.Marshal(wire{
		Type: b.Type, Text: b.Text, Level: b.Level, URL: b.URL, Alt: b.Alt,
		Caption: b.Caption, Headers: b.Headers, Rows: b.Rows, Chart: b.Chart,
	})
}

// BlockList is an ordered list of content blocks.
type BlockList struct {
	Blocks []Block
}

func (BlockList) Tag() Tag   { return TagBlockList }
func (BlockList) isPayload() {}

// MarshalJSON emits the list as a JSON array of blocks.
func (l BlockList) MarshalJSON() ([]byte, error) {
	if l.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Blocks)
}

// =============================================================================
// CHART SPEC
// =============================================================================

// ChartSpec describes a chart. Labels and Values keep the decoded JSON values
// (numbers as json.Number) so a renderer sees them unchanged.
type ChartSpec struct {
	ChartType string
	Labels    []any
	Values    []any

	// Extra holds every other field of the source object.
	Extra map[string]json.RawMessage
}

func (ChartSpec) Tag() Tag   { return TagChartSpec }
func (ChartSpec) isPayload() {}

// MarshalJSON emits chartType, labels, values and the extra fields.
func (c ChartSpec) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["chartType"] = c.ChartType
	out["labels"] = nonNil(c.Labels)
	out["values"] = nonNil(c.Values)
	return json.Marshal(out)
}

// Numbers returns Values as float64s. ok is false if any value is not
// numeric.
func (c ChartSpec) Numbers() (nums []float64, ok bool) {
	nums = make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		f, isNum := toFloat(v)
		if !isNum {
			return nil, false
		}
		nums = append(nums, f)
	}
	return nums, true
}

// LabelStrings returns the labels formatted for display.
func (c ChartSpec) LabelStrings() []string {
	out := make([]string, len(c.Labels))
	for i, l := range c.Labels {
		switch v := l.(type) {
		case string:
			out[i] = v
		case json.Number:
			out[i] = v.String()
		case nil:
			out[i] = ""
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out[i] = "?"
				continue
			}
			out[i] = string(b)
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func nonNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

// =============================================================================
// VIDEO REF
// =============================================================================

// VideoRef points at an inline video. IsFallback marks a substitute chosen
// by the backend when the requested media was unavailable.
type VideoRef struct {
	URL        string
	IsFallback bool
}

func (VideoRef) Tag() Tag   { return TagVideoRef }
func (VideoRef) isPayload() {}

// MarshalJSON emits the wire object {"type":"video",...}.
func (v VideoRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string `json:"type"`
		URL        string `json:"url"`
		IsFallback bool   `json:"isFallback,omitempty"`
	}{"video", v.URL, v.IsFallback})
}
