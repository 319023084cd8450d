// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jeranaias/delve/internal/backend"
	"github.com/jeranaias/delve/internal/clock"
	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/stream"
)

// Failure texts not produced by the stream machine.
const (
	msgCanceled   = "Request canceled."
	msgNoAnswer   = "The research service finished without an answer. Please try again."
	msgBackendErr = "The research service rejected the request: "
	msgMalformed  = "The research service sent a response that could not be read. Please try again."
)

// request is one in-flight exchange. Its gen and sessionID form the liveness
// token every async result is checked against.
type request struct {
	gen       uint64
	sessionID string
	session   *model.Session
	turn      int
	mode      Mode
	machine   *stream.Machine

	ctx      context.Context
	cancel   context.CancelFunc
	feed     *stream.Feed
	stall    clock.CancelFunc
	stallSeq uint64
	released bool
}

// release cancels the transport. Closing the feed waits for its reader, so
// the stream is fully closed when release returns.
func (r *request) release() {
	if r.released {
		return
	}
	r.released = true
	if r.stall != nil {
		r.stall()
		r.stall = nil
	}
	r.cancel()
	if r.feed != nil {
		r.feed.Close()
	}
}

// live reports whether results for req may still touch state.
func (c *Controller) live(req *request) bool {
	if c.req != req || req.released {
		return false
	}
	active := c.active.Load()
	return active != nil && active.ID == req.sessionID
}

// startRequest opens a request for the pending turn at idx.
func (c *Controller) startRequest(sess *model.Session, idx int, text string, mode Mode) {
	if c.req != nil {
		c.logger.DPanic("request started while another is open",
			zap.Uint64("open", c.req.gen))
		c.cancelRequest("superseded")
	}

	c.gen++
	ctx, cancel := context.WithCancel(c.runCtx)
	req := &request{
		gen:       c.gen,
		sessionID: sess.ID,
		session:   sess,
		turn:      idx,
		mode:      mode,
		machine: stream.NewMachine(stream.Options{
			SummaryLength: c.opts.SummaryLength,
			Now:           c.base.Now,
		}),
		ctx:    ctx,
		cancel: cancel,
	}
	c.req = req
	c.last = req.machine
	req.machine.Connect()

	body := backend.ChatRequest{
		Query:   text,
		Raw:     c.opts.RawReplies,
		History: toHistory(sess.History(idx)),
	}
	if c.persisted[sess.ID] {
		body.SessionID = sess.ID
	}

	c.logger.Debug("request started",
		zap.Uint64("generation", req.gen),
		zap.String("session", req.sessionID),
		zap.Int("turn", idx),
		zap.Stringer("mode", mode))

	c.armStall(req)

	switch mode {
	case ModeResearch:
		c.spawn(func() { c.runStream(req, body) })
	default:
		c.apply(req, stream.StartEvent{})
		c.apply(req, stream.StageEvent{Label: stream.StageThinking})
		c.spawn(func() {
			reply, err := c.backend.Chat(req.ctx, body)
			c.post(func() { c.onChatReply(req, reply, err) })
		})
	}
}

// runStream opens the event stream and forwards its events to the loop.
// It runs on its own goroutine.
func (c *Controller) runStream(req *request, body backend.ChatRequest) {
	rc, err := c.backend.OpenStream(req.ctx, body)
	if err != nil {
		c.post(func() { c.onEvent(req, c.failureEvent(err)) })
		return
	}

	feed := stream.NewFeed(rc, c.logger)
	defer feed.Close()

	c.post(func() {
		if req.released {
			feed.Close()
			return
		}
		req.feed = feed
	})

	for ev := range feed.Events() {
		c.post(func() { c.onEvent(req, ev) })
	}
}

func (c *Controller) onChatReply(req *request, reply string, err error) {
	if !c.live(req) {
		return
	}
	if err != nil {
		c.apply(req, c.failureEvent(err))
	} else {
		c.apply(req, stream.AnswerEvent{Text: reply})
		c.apply(req, stream.DoneEvent{})
	}
	c.publish()
}

func (c *Controller) onEvent(req *request, ev stream.Event) {
	if !c.live(req) {
		return
	}
	if stream.IsProgress(ev) {
		c.armStall(req)
	}
	c.apply(req, ev)
	c.publish()
}

// failureEvent maps a transport error to the event the machine expects.
// Errors the backend reported itself keep their message.
func (c *Controller) failureEvent(err error) stream.Event {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return stream.ErrorEvent{Message: msgBackendErr + apiErr.Message}
	}
	if errors.Is(err, backend.ErrMalformedResponse) {
		return stream.ErrorEvent{Message: msgMalformed}
	}
	return stream.TransportFailure{Err: err}
}

// armStall (re)starts the no-progress watchdog for req. A callback that
// already fired before the re-arm sees a newer sequence and does nothing.
func (c *Controller) armStall(req *request) {
	if req.stall != nil {
		req.stall()
	}
	req.stallSeq++
	seq := req.stallSeq
	timeout := c.opts.StallTimeout
	req.stall = c.sched.After(timeout, func() {
		if !c.live(req) || req.stallSeq != seq {
			return
		}
		c.logger.Warn("request stalled",
			zap.Uint64("generation", req.gen),
			zap.Duration("after", timeout))
		c.apply(req, stream.StallEvent{After: timeout})
		c.publish()
	})
}

// apply feeds ev to req's machine and carries out the effects.
func (c *Controller) apply(req *request, ev stream.Event) {
	for _, eff := range req.machine.Apply(ev) {
		switch e := eff.(type) {
		case stream.ArtifactEffect:
			c.tracker.Bind(req.sessionID, e.ID)
		case stream.AnswerEffect:
			c.onAnswer(req, e)
		case stream.FailureEffect:
			c.onFailure(req, e.Message, e.Err)
		case stream.ReleaseEffect:
			c.finish(req)
		}
	}
}

// onAnswer fills the pending turn. Chat replies animate; research answers
// are shown at once with the full text on the canvas.
func (c *Controller) onAnswer(req *request, e stream.AnswerEffect) {
	now := c.base.Now()
	msg := model.NewAssistantMessage(e.Message, req.mode == ModeChat, now)
	if err := req.session.SetAssistant(req.turn, msg); err != nil {
		c.logger.DPanic("answer for a turn that is not pending", zap.Error(err))
		return
	}

	var cv *model.Canvas
	if e.ArtifactID != "" {
		cv = &model.Canvas{
			ID:             e.ArtifactID,
			FullAnswer:     e.Full,
			Summary:        e.Summary,
			Metrics:        req.machine.Metrics(),
			OwnerSessionID: req.sessionID,
			CreatedAt:      now,
		}
		req.session.Canvas = cv
		c.tracker.Fill(cv)
	}

	if msg.Animate {
		c.startAnimation(req.session, req.turn, msg)
	}
	c.persist(req.session, cv)
}

// onFailure puts a failure message in the pending turn. Failed exchanges are
// not persisted.
func (c *Controller) onFailure(req *request, text string, err error) {
	c.logger.Warn("request failed",
		zap.Uint64("generation", req.gen),
		zap.String("session", req.sessionID),
		zap.String("message", text),
		zap.Error(err))
	c.tracker.Unbind(req.sessionID)
	c.failTurn(req, text)
}

func (c *Controller) failTurn(req *request, text string) {
	if req.turn >= len(req.session.Turns) || !req.session.Turns[req.turn].Pending() {
		return
	}
	_ = req.session.SetAssistant(req.turn, model.NewFailureMessage(text, c.base.Now()))
}

// finish releases req after the machine reached a terminal state.
func (c *Controller) finish(req *request) {
	req.release()
	if c.req == req {
		c.req = nil
	}
	if req.machine.State() == stream.Done && !req.machine.Answered() {
		c.onFailure(req, msgNoAnswer, nil)
	}
}

// cancelRequest aborts the open request, if any, and closes its transport
// before returning.
func (c *Controller) cancelRequest(reason string) {
	req := c.req
	if req == nil {
		return
	}
	c.req = nil
	req.machine.Abort(reason)
	req.release()
	c.tracker.Unbind(req.sessionID)
	c.failTurn(req, msgCanceled)
	c.logger.Debug("request canceled",
		zap.Uint64("generation", req.gen),
		zap.String("reason", reason))
}

func toHistory(msgs []model.Message) []backend.HistoryEntry {
	out := make([]backend.HistoryEntry, len(msgs))
	for i, m := range msgs {
		out[i] = backend.HistoryEntry{Role: string(m.Role), Content: m.Content}
	}
	return out
}
