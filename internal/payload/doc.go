// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package payload classifies raw answer text into one of four shapes so the
// presentation layer can pick a renderer.
//
// # Key Types
//
//   - Payload: closed sum type (PlainText, BlockList, ChartSpec, VideoRef)
//   - Tag: discriminant naming the renderer a payload needs
//
// # Usage
//
//	p := payload.Classify(reply)
//	switch v := p.(type) {
//	case payload.ChartSpec:
//	    drawChart(v.ChartType, v.LabelStrings(), v.Values)
//	case payload.PlainText:
//	    renderMarkdown(v.Text)
//	}
//
// Classification never fails and never mutates anything, so it is safe to
// run speculatively on partial or stale text.
package payload
