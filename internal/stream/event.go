// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// EVENT NAMES
// =============================================================================

// Wire names of the research event stream.
const (
	EventStart    = "start"
	EventStage    = "stage"
	EventMetrics  = "metrics"
	EventArtifact = "artifact"
	EventAnswer   = "answer"
	EventDone     = "done"
	EventError    = "error"
)

// =============================================================================
// EVENTS
// =============================================================================

// Event is one input to a Machine. The set is closed: wire events decoded by
// ParseEvent plus the locally generated TransportFailure and StallEvent.
type Event interface {
	isEvent()
}

// StartEvent marks the backend beginning work.
type StartEvent struct{}

// StageEvent is a labeled progress checkpoint. Extra carries every other
// field of the payload.
type StageEvent struct {
	Label string
	Extra map[string]any
}

// MetricsEvent carries the numeric fields of a metrics payload.
type MetricsEvent struct {
	Values map[string]float64
}

// ArtifactEvent declares the id of a long-form artifact that the answer will
// refer to.
type ArtifactEvent struct {
	ID string
}

// AnswerEvent carries the finalized answer text.
type AnswerEvent struct {
	Text string
}

// DoneEvent is the completion signal.
type DoneEvent struct{}

// ErrorEvent is an error reported by the backend. Message may be empty.
type ErrorEvent struct {
	Message string
}

// TransportFailure reports that the connection failed or dropped.
type TransportFailure struct {
	Err error
}

// StallEvent reports that no progress arrived within the grace window.
type StallEvent struct {
	After time.Duration
}

func (StartEvent) isEvent()       {}
func (StageEvent) isEvent()       {}
func (MetricsEvent) isEvent()     {}
func (ArtifactEvent) isEvent()    {}
func (AnswerEvent) isEvent()      {}
func (DoneEvent) isEvent()        {}
func (ErrorEvent) isEvent()       {}
func (TransportFailure) isEvent() {}
func (StallEvent) isEvent()       {}

// IsProgress reports whether e counts as forward progress for stall
// detection.
func IsProgress(e Event) bool {
	switch e.(type) {
	case StartEvent, StageEvent, MetricsEvent, ArtifactEvent, AnswerEvent:
		return true
	}
	return false
}

// =============================================================================
// PARSE ERRORS
// =============================================================================

// ErrUnknownEvent is returned by ParseEvent for an unrecognized event name.
var ErrUnknownEvent = errors.New("unknown event")

// ParseError describes a single malformed event. Feeds log and skip it.
type ParseError struct {
	Event string
	Err   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %q event: %v", e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// =============================================================================
// PARSING
// =============================================================================

// ParseEvent decodes one named event and its data payload.
func ParseEvent(name string, data []byte) (Event, error) {
	data = bytes.TrimSpace(data)

	switch name {
	case EventStart:
		return StartEvent{}, nil

	case EventDone:
		return DoneEvent{}, nil

	case EventStage:
		fields, err := decodeObject(data)
		if err != nil {
			return nil, &ParseError{Event: name, Err: err}
		}
		label, ok := fields["stage"].(string)
		if !ok || label == "" {
			return nil, &ParseError{Event: name, Err: errors.New("missing stage label")}
		}
		delete(fields, "stage")
		if len(fields) == 0 {
			fields = nil
		}
		return StageEvent{Label: label, Extra: fields}, nil

	case EventMetrics:
		fields, err := decodeObject(data)
		if err != nil {
			return nil, &ParseError{Event: name, Err: err}
		}
		values := make(map[string]float64, len(fields))
		for k, v := range fields {
			n, ok := v.(json.Number)
			if !ok {
				continue
			}
			f, err := n.Float64()
			if err != nil {
				continue
			}
			values[k] = f
		}
		return MetricsEvent{Values: values}, nil

	case EventArtifact:
		fields, err := decodeObject(data)
		if err != nil {
			return nil, &ParseError{Event: name, Err: err}
		}
		id, ok := fields["id"].(string)
		if !ok || id == "" {
			return nil, &ParseError{Event: name, Err: errors.New("missing artifact id")}
		}
		return ArtifactEvent{ID: id}, nil

	case EventAnswer:
		fields, err := decodeObject(data)
		if err != nil {
			return nil, &ParseError{Event: name, Err: err}
		}
		for _, key := range []string{"answer", "formatted_answer"} {
			if text, ok := fields[key].(string); ok {
				return AnswerEvent{Text: text}, nil
			}
		}
		return nil, &ParseError{Event: name, Err: errors.New("missing answer text")}

	case EventError:
		// Error events are never dropped: a payload that is not a JSON object
		// is taken as the message itself.
		if len(data) == 0 {
			return ErrorEvent{}, nil
		}
		fields, err := decodeObject(data)
		if err != nil {
			return ErrorEvent{Message: string(data)}, nil
		}
		msg, _ := fields["error"].(string)
		return ErrorEvent{Message: msg}, nil
	}

	return nil, &ParseError{Event: name, Err: ErrUnknownEvent}
}

func decodeObject(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("payload is not an object")
	}
	return fields, nil
}
