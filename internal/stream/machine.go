// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"maps"
	"time"

	"github.com/jeranaias/delve/internal/util"
)

// =============================================================================
// STATES
// =============================================================================

// State is a stage of a single request's lifecycle.
type State int

const (
	Idle State = iota
	Connecting
	Preparing
	Streaming
	Finalizing
	Done
	Errored
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Preparing:
		return "preparing"
	case Streaming:
		return "streaming"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is Done or Errored.
func (s State) Terminal() bool {
	return s == Done || s == Errored
}

// Well-known stage labels.
const (
	StagePreparing = "preparing"
	StageThinking  = "thinking"
)

// DefaultSummaryLength is the number of runes kept in an answer summary.
const DefaultSummaryLength = 400

// StageEntry is one labeled line of the stage log.
type StageEntry struct {
	Label string
	Extra map[string]any
	At    time.Time
}

// =============================================================================
// EFFECTS
// =============================================================================

// Effect is an instruction from the Machine to its owner. The machine itself
// performs no I/O.
type Effect interface {
	isEffect()
}

// StageEffect announces a new stage-log entry.
type StageEffect struct {
	Entry StageEntry
}

// MetricsEffect carries the updated metrics snapshot.
type MetricsEffect struct {
	Metrics map[string]float64
}

// ArtifactEffect announces that an artifact id was bound.
type ArtifactEffect struct {
	ID string
}

// AnswerEffect carries the finalized answer. Message is the short form that
// goes into the conversation: the summary when an artifact is bound,
// otherwise the full text.
type AnswerEffect struct {
	Full       string
	Summary    string
	Message    string
	ArtifactID string
}

// FailureEffect carries the user-visible failure message.
type FailureEffect struct {
	Message string
	Err     error
}

// ReleaseEffect instructs the owner to close the transport.
type ReleaseEffect struct{}

func (StageEffect) isEffect()    {}
func (MetricsEffect) isEffect()  {}
func (ArtifactEffect) isEffect() {}
func (AnswerEffect) isEffect()   {}
func (FailureEffect) isEffect()  {}
func (ReleaseEffect) isEffect()  {}

// =============================================================================
// MACHINE
// =============================================================================

// Options configures a Machine.
type Options struct {
	// SummaryLength is the rune length of the derived summary.
	SummaryLength int

	// Now stamps stage-log entries. Defaults to time.Now.
	Now func() time.Time
}

// Machine is the ingestion state machine for one request. It is not safe for
// concurrent use and not reusable: every request gets a new Machine.
type Machine struct {
	opts Options

	state      State
	stage      string
	log        []StageEntry
	metrics    map[string]float64
	artifactID string
	full       string
	summary    string
	answered   bool
	failure    string
}

// NewMachine creates a Machine in the Idle state.
func NewMachine(opts Options) *Machine {
	if opts.SummaryLength <= 0 {
		opts.SummaryLength = DefaultSummaryLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{opts: opts}
}

// Connect moves an Idle machine to Connecting. It is a no-op in any other
// state.
func (m *Machine) Connect() {
	if m.state == Idle {
		m.state = Connecting
	}
}

// Apply feeds one event through the machine and returns the resulting
// effects. Events before Connect and after a terminal state are dropped.
func (m *Machine) Apply(e Event) []Effect {
	if m.state == Idle || m.state.Terminal() {
		return nil
	}

	switch ev := e.(type) {
	case StartEvent:
		if m.state != Connecting {
			return nil
		}
		m.state = Preparing
		return []Effect{m.pushStage(StagePreparing, nil)}

	case StageEvent:
		if m.state == Finalizing {
			return nil
		}
		m.state = Streaming
		return []Effect{m.pushStage(ev.Label, ev.Extra)}

	case MetricsEvent:
		if len(ev.Values) == 0 {
			return nil
		}
		if m.metrics == nil {
			m.metrics = make(map[string]float64, len(ev.Values))
		}
		maps.Copy(m.metrics, ev.Values)
		return []Effect{MetricsEffect{Metrics: m.Metrics()}}

	case ArtifactEvent:
		m.artifactID = ev.ID
		return []Effect{ArtifactEffect{ID: ev.ID}}

	case AnswerEvent:
		if m.answered {
			return nil
		}
		m.answered = true
		m.state = Finalizing
		m.full = ev.Text
		m.summary = util.FirstRunes(ev.Text, m.opts.SummaryLength)
		msg := m.full
		if m.artifactID != "" {
			msg = m.summary
		}
		return []Effect{AnswerEffect{
			Full:       m.full,
			Summary:    m.summary,
			Message:    msg,
			ArtifactID: m.artifactID,
		}}

	case DoneEvent:
		m.state = Done
		return []Effect{ReleaseEffect{}}

	case ErrorEvent:
		msg := ev.Message
		if msg == "" {
			msg = "The research service reported an error. Please try again."
		}
		return m.fail(msg, nil)

	case TransportFailure:
		return m.fail("The connection to the research service was lost. Please resubmit your question.", ev.Err)

	case StallEvent:
		return m.fail(fmt.Sprintf("No progress for %s; the request was stopped. Please resubmit your question.", ev.After), nil)
	}
	return nil
}

// Abort forces the machine into Errored without a user-visible message, as
// when the request is superseded or canceled. It returns a release effect
// unless the machine was already terminal.
func (m *Machine) Abort(reason string) []Effect {
	if m.state.Terminal() {
		return nil
	}
	m.state = Errored
	m.failure = reason
	return []Effect{ReleaseEffect{}}
}

// fail moves to Errored. A failure after the answer arrived completes the
// request instead, since the answer is already in the conversation.
func (m *Machine) fail(msg string, err error) []Effect {
	if m.answered {
		m.state = Done
		return []Effect{ReleaseEffect{}}
	}
	m.state = Errored
	m.failure = msg
	return []Effect{FailureEffect{Message: msg, Err: err}, ReleaseEffect{}}
}

func (m *Machine) pushStage(label string, extra map[string]any) StageEffect {
	entry := StageEntry{Label: label, Extra: extra, At: m.opts.Now()}
	m.stage = label
	m.log = append(m.log, entry)
	return StageEffect{Entry: entry}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Stage returns the label of the latest stage.
func (m *Machine) Stage() string { return m.stage }

// StageLog returns a copy of the stage log.
func (m *Machine) StageLog() []StageEntry {
	out := make([]StageEntry, len(m.log))
	copy(out, m.log)
	return out
}

// Metrics returns a copy of the metrics snapshot.
func (m *Machine) Metrics() map[string]float64 {
	if m.metrics == nil {
		return nil
	}
	return maps.Clone(m.metrics)
}

// ArtifactID returns the bound artifact id, if any.
func (m *Machine) ArtifactID() string { return m.artifactID }

// FullAnswer returns the complete answer text.
func (m *Machine) FullAnswer() string { return m.full }

// Summary returns the derived short summary.
func (m *Machine) Summary() string { return m.summary }

// Answered reports whether an answer event was absorbed.
func (m *Machine) Answered() bool { return m.answered }

// Failure returns the failure message or abort reason once Errored.
func (m *Machine) Failure() string { return m.failure }
