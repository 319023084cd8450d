// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// FEED
// =============================================================================

// Feed reads SSE events from a response body and delivers them, decoded, on
// a channel. Malformed events are logged and skipped. The channel is closed
// after a terminal event (done, error, transport failure) or after Close.
type Feed struct {
	body   io.ReadCloser
	events chan Event
	stop   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewFeed starts reading body in a goroutine. The caller must call Close.
func NewFeed(body io.ReadCloser, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		body:   body,
		events: make(chan Event, 16),
		stop:   make(chan struct{}),
		logger: logger,
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// Events returns the decoded event channel.
func (f *Feed) Events() <-chan Event {
	return f.events
}

// Close stops delivery and closes the body. It is safe to call more than
// once and waits for the reader goroutine to exit.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		close(f.stop)
		f.closeErr = f.body.Close()
	})
	f.wg.Wait()
	return f.closeErr
}

func (f *Feed) run() {
	defer f.wg.Done()
	defer close(f.events)

	reader := NewSSEReader(f.body)
	for {
		name, data, err := reader.ReadEvent()
		if err != nil {
			if f.stopped() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			f.send(TransportFailure{Err: err})
			return
		}

		ev, err := ParseEvent(name, data)
		if err != nil {
			f.logger.Debug("skipping malformed stream event",
				zap.String("event", name),
				zap.Error(err))
			continue
		}
		if !f.send(ev) {
			return
		}

		switch ev.(type) {
		case DoneEvent, ErrorEvent:
			return
		}
	}
}

// send delivers ev unless the feed was closed. It reports whether delivery
// happened.
func (f *Feed) send(ev Event) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.stop:
		return false
	}
}

func (f *Feed) stopped() bool {
	select {
	case <-f.stop:
		return true
	default:
		return false
	}
}
