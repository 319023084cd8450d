// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/delve/internal/backend"
	"github.com/jeranaias/delve/internal/canvas"
	"github.com/jeranaias/delve/internal/clock"
	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/session"
	"github.com/jeranaias/delve/internal/storage"
	"github.com/jeranaias/delve/internal/stream"
	"github.com/jeranaias/delve/internal/typing"
)

// DefaultStallTimeout matches the backend's declared maximum request time.
const DefaultStallTimeout = 5 * time.Minute

// maxNotices is how many notices the view model keeps.
const maxNotices = 5

// Backend is the research service as the controller sees it.
type Backend interface {
	Chat(ctx context.Context, req backend.ChatRequest) (string, error)
	OpenStream(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error)
}

// Options configures a Controller.
type Options struct {
	// SummaryLength is the rune length of research answer summaries.
	SummaryLength int

	// StallTimeout forces a request with no progress into the failed
	// state. Zero means DefaultStallTimeout.
	StallTimeout time.Duration

	// Typing configures the reveal animation of chat replies.
	Typing typing.Options

	// DefaultMode is the mode used by EditTurn before any query is sent.
	DefaultMode Mode

	// RawReplies asks the backend for unformatted replies.
	RawReplies bool

	// WatchStore refreshes the session list when the store reports
	// external changes.
	WatchStore bool
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the conversation state. See the package documentation for
// the threading model.
type Controller struct {
	backend Backend
	rec     *session.Reconciler
	base    clock.Scheduler
	sched   clock.Scheduler // base, with callbacks moved onto the loop
	player  *typing.Player
	tracker *canvas.Tracker
	logger  *zap.Logger
	opts    Options
	hub     *hub

	inbox   inbox
	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
	runCtx  context.Context

	// active is the only state read off the loop. It is swapped with
	// CompareAndSwap so a late result cannot replace a newer session.
	active atomic.Pointer[model.Session]

	// Everything below is owned by the loop.
	mode        Mode
	gen         uint64
	req         *request
	last        *stream.Machine
	anim        animation
	suppress    typing.SuppressionToken
	sessions    map[string]*model.Session
	persisted   map[string]bool
	metas       map[string]model.SessionMeta
	loading     string
	switchSeq   uint64
	notices     []session.Notice
	listVersion int
	version     uint64
}

// animation is the reveal in progress, if handle is set.
type animation struct {
	sessionID string
	turn      int
	handle    *typing.Handle
}

// New creates a controller. sched drives timers and timestamps; pass
// clock.Real{} outside tests.
func New(b Backend, rec *session.Reconciler, sched clock.Scheduler, opts Options, logger *zap.Logger) *Controller {
	if sched == nil {
		sched = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}

	c := &Controller{
		backend:   b,
		rec:       rec,
		base:      sched,
		tracker:   canvas.NewTracker(),
		logger:    logger.Named("controller"),
		opts:      opts,
		hub:       newHub(),
		done:      make(chan struct{}),
		runCtx:    context.Background(),
		mode:      opts.DefaultMode,
		sessions:  make(map[string]*model.Session),
		persisted: make(map[string]bool),
		metas:     make(map[string]model.SessionMeta),
	}
	c.inbox.signal = make(chan struct{}, 1)
	c.sched = clock.Wrap(sched, c.post)
	c.player = typing.NewPlayer(c.sched, typing.Hooks{
		OnFrame:    c.onFrame,
		OnComplete: c.onAnimationDone,
	})
	return c
}

// Run processes commands and events until ctx is cancelled. On exit it
// cancels the in-flight request, drains queued persistence and closes every
// subscriber channel.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.runCtx = ctx
	c.rec.Start()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if w, ok := c.rec.Store().(storage.Watcher); ok && c.opts.WatchStore {
		c.spawn(func() {
			if err := w.Watch(watchCtx, func() { c.post(c.onStoreChanged) }); err != nil {
				c.logger.Warn("store watch stopped", zap.Error(err))
			}
		})
	}

	c.logger.Debug("event loop started")
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.cancelRequest("shutdown")
			c.stopAnimation()
			c.publish()
			stopWatch()
			close(c.done)
			c.wg.Wait()
			c.rec.Close()
			c.hub.closeAll()
			c.logger.Debug("event loop stopped")
			return nil

		case <-c.inbox.signal:
			for _, fn := range c.inbox.drain() {
				fn()
			}
		}
	}
}

// =============================================================================
// LOOP PLUMBING
// =============================================================================

// inbox is an unbounded FIFO of closures for the loop. push never blocks,
// so timers and goroutines can always post.
type inbox struct {
	mu     sync.Mutex
	fns    []func()
	signal chan struct{}
}

func (b *inbox) push(fn func()) {
	b.mu.Lock()
	b.fns = append(b.fns, fn)
	b.mu.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) drain() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	fns := b.fns
	b.fns = nil
	return fns
}

// post queues fn for the loop. Work posted after Run returns never runs.
func (c *Controller) post(fn func()) {
	c.inbox.push(fn)
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(fn func() error) error {
	result := make(chan error, 1)
	c.post(func() { result <- fn() })
	select {
	case err := <-result:
		return err
	case <-c.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// spawn runs fn on a goroutine that Run waits for on exit.
func (c *Controller) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// =============================================================================
// COMMANDS
// =============================================================================

// SubmitQuery appends a turn for text to the active session, creating a
// session if none is active, and sends it in the given mode. Any in-flight
// request is cancelled first.
func (c *Controller) SubmitQuery(text string, mode Mode) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyQuery
	}
	return c.do(func() error {
		c.cancelRequest("superseded")
		c.stopAnimation()
		c.abandonSwitch()

		now := c.base.Now()
		sess := c.active.Load()
		if sess == nil {
			draft := model.NewSession(now)
			if !c.active.CompareAndSwap(nil, draft) {
				c.logger.DPanic("active session changed off the event loop")
				return ErrStopped
			}
			c.sessions[draft.ID] = draft
			c.tracker.SwitchTo(draft.ID, false)
			c.last = nil
			sess = draft
		}

		c.mode = mode
		idx := sess.AppendTurn(text, now)
		c.startRequest(sess, idx, text, mode)
		c.publish()
		return nil
	})
}

// EditTurn replaces the user text of turn index, discards every later turn
// and regenerates the reply.
func (c *Controller) EditTurn(index int, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyQuery
	}
	return c.do(func() error {
		sess := c.active.Load()
		if sess == nil {
			return ErrNoActiveSession
		}
		if index < 0 || index >= len(sess.Turns) {
			return &ValidationError{
				Field:   "index",
				Message: fmt.Sprintf("turn %d out of range (have %d)", index, len(sess.Turns)),
			}
		}

		c.cancelRequest("superseded by edit")
		c.stopAnimation()
		c.abandonSwitch()

		if err := sess.TruncateForEdit(index, text, c.base.Now()); err != nil {
			return err
		}
		c.startRequest(sess, index, text, c.mode)
		c.publish()
		return nil
	})
}

// SwitchSession makes session id active, loading it from the store unless
// it was already loaded. Restored replies are shown fully revealed.
func (c *Controller) SwitchSession(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "session", Message: "session id must not be empty"}
	}
	return c.do(func() error {
		cur := c.active.Load()
		if cur != nil && cur.ID == id {
			c.abandonSwitch()
			c.publish()
			return nil
		}

		c.cancelRequest("session switched")
		c.stopAnimation()
		c.switchSeq++
		c.suppress.Arm()

		if s, ok := c.sessions[id]; ok {
			c.loading = ""
			c.activate(cur, s)
			return nil
		}

		seq := c.switchSeq
		c.loading = id
		c.publish()
		c.spawn(func() {
			s, err := c.rec.Load(c.runCtx, id)
			c.post(func() { c.onSessionLoaded(seq, cur, id, s, err) })
		})
		return nil
	})
}

// StartNewSession clears the active session. The next query creates one.
func (c *Controller) StartNewSession() error {
	return c.do(func() error {
		c.cancelRequest("new session")
		c.stopAnimation()
		c.abandonSwitch()

		cur := c.active.Load()
		if !c.active.CompareAndSwap(cur, nil) {
			c.logger.DPanic("active session changed off the event loop")
		}
		c.tracker.SwitchTo("", false)
		c.last = nil
		c.publish()
		return nil
	})
}

// CancelInFlight stops the current request and animation, if any.
func (c *Controller) CancelInFlight() error {
	return c.do(func() error {
		c.cancelRequest("canceled by user")
		c.stopAnimation()
		c.publish()
		return nil
	})
}

// SkipAnimation reveals the animating reply at once.
func (c *Controller) SkipAnimation() error {
	return c.do(func() error {
		c.stopAnimation()
		c.publish()
		return nil
	})
}

// CloseCanvas hides the canvas, keeping its content for ReopenCanvas.
func (c *Controller) CloseCanvas() error {
	return c.do(func() error {
		c.tracker.Close()
		c.publish()
		return nil
	})
}

// ReopenCanvas shows the active session's canvas again.
func (c *Controller) ReopenCanvas() error {
	return c.do(func() error {
		sess := c.active.Load()
		if sess == nil {
			return ErrNoActiveSession
		}
		if !c.tracker.Reopen(sess.ID) {
			return &ValidationError{Field: "canvas", Message: "this session has no canvas"}
		}
		c.publish()
		return nil
	})
}

// SetMode changes the mode used by later edits and shown in the view.
func (c *Controller) SetMode(m Mode) error {
	return c.do(func() error {
		c.mode = m
		c.publish()
		return nil
	})
}

// DismissNotices clears the notice list.
func (c *Controller) DismissNotices() error {
	return c.do(func() error {
		c.notices = nil
		c.publish()
		return nil
	})
}

// Sessions lists stored sessions and refreshes the controller's view of
// which sessions carry a canvas.
func (c *Controller) Sessions(ctx context.Context) ([]model.SessionMeta, error) {
	metas, err := c.rec.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.SessionMeta, len(metas))
	for _, m := range metas {
		byID[m.ID] = m
	}
	c.post(func() { c.metas = byID })
	return metas, nil
}

// ActiveSessionID returns the id of the active session, or "".
func (c *Controller) ActiveSessionID() string {
	if s := c.active.Load(); s != nil {
		return s.ID
	}
	return ""
}

// View returns the latest view model.
func (c *Controller) View() ViewModel {
	return c.hub.current()
}

// Subscribe returns a channel that always holds the latest view model. The
// channel is closed by cancel or when Run returns.
func (c *Controller) Subscribe() (<-chan ViewModel, func()) {
	return c.hub.subscribe()
}

// =============================================================================
// SESSION SWITCHING
// =============================================================================

func (c *Controller) onSessionLoaded(seq uint64, expected *model.Session, id string, s *model.Session, err error) {
	if seq != c.switchSeq {
		c.logger.Debug("discarding superseded session load", zap.String("session", id))
		return
	}
	c.loading = ""
	if err != nil {
		c.suppress.Consume()
		c.notify(session.NoticeFor(err, c.base.Now()))
		c.publish()
		return
	}
	c.sessions[id] = s
	c.persisted[id] = true
	c.activate(expected, s)
}

// activate swaps s in as the active session if expected is still active.
func (c *Controller) activate(expected, s *model.Session) {
	if !c.active.CompareAndSwap(expected, s) {
		c.logger.Debug("discarding stale session switch", zap.String("session", s.ID))
		c.publish()
		return
	}
	c.last = nil

	if s.Canvas != nil {
		c.tracker.Fill(s.Canvas)
	}
	hasCanvas := s.Canvas != nil || c.metas[s.ID].HasCanvas
	if c.tracker.SwitchTo(s.ID, hasCanvas) == canvas.SwitchNeedFetch {
		c.fetchCanvas(s.ID)
	}

	c.observeContent()
	c.publish()
}

// fetchCanvas loads the canvas of session id and fills the tracker.
func (c *Controller) fetchCanvas(id string) {
	c.spawn(func() {
		cv, err := c.rec.LoadCanvas(c.runCtx, id)
		c.post(func() {
			if err != nil {
				c.notify(session.NoticeFor(err, c.base.Now()))
				c.publish()
				return
			}
			if s, ok := c.sessions[id]; ok {
				s.Canvas = cv
			}
			c.tracker.Fill(cv)
			c.publish()
		})
	})
}

// observeContent runs when a different session's turns become visible. A
// restored session is shown fully revealed.
func (c *Controller) observeContent() {
	if c.suppress.Consume() {
		c.stopAnimation()
	}
}

// abandonSwitch drops a pending session load because the user acted on the
// current session instead.
func (c *Controller) abandonSwitch() {
	if c.loading != "" {
		c.switchSeq++
		c.loading = ""
	}
	c.suppress.Consume()
}

// =============================================================================
// ANIMATION
// =============================================================================

func (c *Controller) startAnimation(sess *model.Session, turn int, msg model.Message) {
	c.stopAnimation()
	c.anim = animation{sessionID: sess.ID, turn: turn}
	c.anim.handle = c.player.Start(msg.ID, msg.Content, c.opts.Typing)
}

func (c *Controller) stopAnimation() {
	if c.anim.handle != nil {
		c.player.Stop(c.anim.handle)
	}
	c.anim = animation{}
}

func (c *Controller) onFrame(h *typing.Handle) {
	if c.anim.handle == h {
		c.publish()
	}
}

func (c *Controller) onAnimationDone(h *typing.Handle) {
	if c.anim.handle != h {
		return
	}
	c.anim = animation{}
	c.publish()
}

// =============================================================================
// NOTICES AND PERSISTENCE
// =============================================================================

func (c *Controller) notify(n session.Notice) {
	c.notices = append(c.notices, n)
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
}

// persist queues a write of the session's full turn list, and of cv when a
// canvas was produced. The session id is client-allocated, so a write after
// an earlier failure still lands on the same record.
func (c *Controller) persist(sess *model.Session, cv *model.Canvas) {
	snap := sess.Clone()
	id := sess.ID
	create := !c.persisted[id]
	c.persisted[id] = true

	op := "append"
	if create {
		op = "create"
	}
	c.rec.Enqueue(op+" "+id, func(ctx context.Context) error {
		if create {
			_, err := c.rec.CreateSession(ctx, snap)
			return err
		}
		return c.rec.AppendTurn(ctx, snap)
	}, func(err error) {
		c.post(func() { c.onPersisted(id, create, err) })
	})

	if cv != nil {
		cvc := cv.Clone()
		c.rec.Enqueue("attach canvas "+id, func(ctx context.Context) error {
			return c.rec.AttachCanvas(ctx, id, cvc)
		}, func(err error) {
			c.post(func() { c.onPersisted(id, false, err) })
		})
	}
}

func (c *Controller) onPersisted(id string, create bool, err error) {
	if err != nil {
		if create {
			delete(c.persisted, id)
		}
		c.notify(session.NoticeFor(err, c.base.Now()))
	} else {
		c.listVersion++
	}
	c.publish()
}

func (c *Controller) onStoreChanged() {
	c.listVersion++
	c.publish()
}

// =============================================================================
// VIEW
// =============================================================================

// publish snapshots loop state for subscribers.
func (c *Controller) publish() {
	c.version++
	vm := ViewModel{
		Version:        c.version,
		Mode:           c.mode,
		InFlight:       c.req != nil,
		AnimatingIndex: -1,
		LoadingSession: c.loading,
		ListVersion:    c.listVersion,
		Notices:        append([]session.Notice(nil), c.notices...),
	}

	if sess := c.active.Load(); sess != nil {
		vm.SessionID = sess.ID
		vm.Title = sess.GetTitle()
		vm.Turns = make([]TurnView, len(sess.Turns))
		for i, t := range sess.Turns {
			tv := TurnView{User: t.User.Content, Pending: t.Pending()}
			if a := t.Assistant; a != nil {
				tv.Assistant = a.Content
				tv.Payload = a.Payload
				tv.Tag = a.Tag()
				tv.Failed = a.Failed
			}
			vm.Turns[i] = tv
		}
		if h := c.anim.handle; h != nil && c.anim.sessionID == sess.ID && c.anim.turn < len(vm.Turns) {
			vm.AnimatingIndex = c.anim.turn
			vm.Turns[c.anim.turn].Animating = true
			vm.Turns[c.anim.turn].Assistant = h.Revealed()
		}
		if c.tracker.Visible(sess.ID) {
			vm.Canvas = &CanvasView{Owner: sess.ID, Content: c.tracker.Content(sess.ID)}
		}
	}

	if m := c.last; m != nil {
		vm.State = m.State()
		vm.Stage = m.Stage()
		vm.StageLog = m.StageLog()
		vm.Metrics = m.Metrics()
	}

	c.hub.publish(vm)
}
