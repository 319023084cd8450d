// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/jeranaias/delve/internal/backend"
	"github.com/jeranaias/delve/internal/clock"
	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/payload"
	"github.com/jeranaias/delve/internal/session"
	"github.com/jeranaias/delve/internal/storage"
	"github.com/jeranaias/delve/internal/stream"
	"github.com/jeranaias/delve/internal/typing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const waitTimeout = 2 * time.Second

// =============================================================================
// FAKE BACKEND
// =============================================================================

type fakeBackend struct {
	mu       sync.Mutex
	chat     func(ctx context.Context, req backend.ChatRequest) (string, error)
	openErr  error
	requests []backend.ChatRequest

	streams chan *fakeStream
	open    atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{streams: make(chan *fakeStream, 8)}
}

func (b *fakeBackend) setChat(fn func(ctx context.Context, req backend.ChatRequest) (string, error)) {
	b.mu.Lock()
	b.chat = fn
	b.mu.Unlock()
}

func (b *fakeBackend) Chat(ctx context.Context, req backend.ChatRequest) (string, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	fn := b.chat
	b.mu.Unlock()
	if fn == nil {
		return "ok", nil
	}
	return fn(ctx, req)
}

func (b *fakeBackend) OpenStream(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	err := b.openErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	s := &fakeStream{pr: pr, pw: pw, backend: b}
	b.open.Add(1)
	b.streams <- s
	return s, nil
}

func (b *fakeBackend) lastRequest() backend.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return backend.ChatRequest{}
	}
	return b.requests[len(b.requests)-1]
}

func (b *fakeBackend) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *fakeBackend) waitStream(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-b.streams:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no stream opened")
		return nil
	}
}

// blockingChat waits for cancellation.
func blockingChat(ctx context.Context, _ backend.ChatRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// echoChat replies with the query.
func echoChat(_ context.Context, req backend.ChatRequest) (string, error) {
	return "reply to " + req.Query, nil
}

// fakeStream is an SSE body the test writes frames into.
type fakeStream struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	backend *fakeBackend
	closed  atomic.Bool
}

func (s *fakeStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *fakeStream) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.backend.open.Add(-1)
	}
	return s.pr.Close()
}

func (s *fakeStream) send(event, data string) {
	fmt.Fprintf(s.pw, "event: %s\ndata: %s\n\n", event, data)
}

// countingStore counts record loads.
type countingStore struct {
	*storage.MemoryStore
	loads atomic.Int32
}

func (s *countingStore) Load(ctx context.Context, id string) (model.Record, error) {
	s.loads.Add(1)
	return s.MemoryStore.Load(ctx, id)
}

// failingStore fails every write.
type failingStore struct {
	*storage.MemoryStore
	err error
}

func (f *failingStore) Save(context.Context, model.Record) error { return f.err }

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	t   *testing.T
	c   *Controller
	be  *fakeBackend
	clk *clock.Fake
	rec *session.Reconciler
}

func newHarness(t *testing.T, store storage.Store, mutate ...func(*Options)) *harness {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(t0)
	rec := session.NewReconciler(store, clk, logger)
	be := newFakeBackend()

	opts := Options{
		StallTimeout: time.Minute,
		Typing: typing.Options{
			Speed:        time.Millisecond,
			InitialDelay: 10 * time.Millisecond,
			Step:         1,
		},
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	c := New(be, rec, clk, opts, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h := &harness{t: t, c: c, be: be, clk: clk, rec: rec}
	h.barrier()
	return h
}

// barrier returns once everything posted to the loop so far has run.
func (h *harness) barrier() {
	h.t.Helper()
	require.NoError(h.t, h.c.do(func() error { return nil }))
}

func (h *harness) waitView(desc string, cond func(ViewModel) bool) ViewModel {
	h.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		vm := h.c.View()
		if cond(vm) {
			return vm
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s; last view: %+v", desc, vm)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitReply(turn int) ViewModel {
	h.t.Helper()
	return h.waitView("reply", func(vm ViewModel) bool {
		return len(vm.Turns) > turn && !vm.Turns[turn].Pending && !vm.InFlight
	})
}

// finishTyping advances the fake clock until no reply is animating.
func (h *harness) finishTyping() ViewModel {
	h.t.Helper()
	for i := 0; i < 2000; i++ {
		h.barrier()
		if vm := h.c.View(); vm.AnimatingIndex == -1 {
			return vm
		}
		h.clk.Advance(5 * time.Millisecond)
	}
	h.t.Fatal("animation never finished")
	return ViewModel{}
}

func (h *harness) flush() {
	h.t.Helper()
	require.NoError(h.t, h.rec.Flush(context.Background()))
	h.barrier()
}

func (h *harness) currentRequest() *request {
	var req *request
	require.NoError(h.t, h.c.do(func() error {
		req = h.c.req
		return nil
	}))
	return req
}

func stageLabels(vm ViewModel) []string {
	out := make([]string, len(vm.StageLog))
	for i, e := range vm.StageLog {
		out[i] = e.Label
	}
	return out
}

// =============================================================================
// CHAT
// =============================================================================

func TestController_ChatReplyAnimatesAndPersists(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHarness(t, store)
	h.be.setChat(func(context.Context, backend.ChatRequest) (string, error) {
		return "Hello! How can I help?", nil
	})

	require.NoError(t, h.c.SubmitQuery("Hello", ModeChat))
	vm := h.waitReply(0)

	assert.Equal(t, []string{stream.StagePreparing, stream.StageThinking}, stageLabels(vm))
	assert.Equal(t, stream.Done, vm.State)
	assert.Equal(t, "Hello", vm.Title)
	assert.Equal(t, payload.TagPlainText, vm.Turns[0].Tag)
	assert.Equal(t, 0, vm.AnimatingIndex)
	assert.True(t, vm.Turns[0].Animating)
	assert.Empty(t, vm.Turns[0].Assistant, "nothing revealed before the clock moves")

	vm = h.finishTyping()
	assert.Equal(t, "Hello! How can I help?", vm.Turns[0].Assistant)
	assert.False(t, vm.Turns[0].Animating)

	first := h.be.lastRequest()
	assert.Equal(t, "Hello", first.Query)
	assert.Empty(t, first.History)
	assert.Empty(t, first.SessionID, "unsaved session id is not sent")

	h.flush()
	rec, err := store.Load(context.Background(), vm.SessionID)
	require.NoError(t, err)
	require.Len(t, rec.Turns, 2)
	assert.Equal(t, "Hello", rec.Turns[0].Content)
	assert.Equal(t, "Hello! How can I help?", rec.Turns[1].Content)

	require.NoError(t, h.c.SubmitQuery("And then?", ModeChat))
	h.waitReply(1)
	second := h.be.lastRequest()
	assert.Equal(t, vm.SessionID, second.SessionID)
	assert.Len(t, second.History, 2)
}

func TestController_ChartReplyIsNotAnimated(t *testing.T) {
	h := newHarness(t, nil)
	h.be.setChat(func(context.Context, backend.ChatRequest) (string, error) {
		return `{"chartType":"bar","labels":["A","B"],"values":[3,5]}`, nil
	})

	require.NoError(t, h.c.SubmitQuery("chart it", ModeChat))
	vm := h.waitReply(0)

	assert.Equal(t, -1, vm.AnimatingIndex)
	require.Equal(t, payload.TagChartSpec, vm.Turns[0].Tag)
	chart, ok := vm.Turns[0].Payload.(payload.ChartSpec)
	require.True(t, ok)
	assert.Equal(t, "bar", chart.ChartType)
	assert.Equal(t, []string{"A", "B"}, chart.LabelStrings())
	nums, ok := chart.Numbers()
	require.True(t, ok)
	assert.Equal(t, []float64{3, 5}, nums)
}

func TestController_SkipAnimation(t *testing.T) {
	h := newHarness(t, nil)
	h.be.setChat(echoChat)

	require.NoError(t, h.c.SubmitQuery("skip me", ModeChat))
	h.waitReply(0)
	require.NoError(t, h.c.SkipAnimation())

	vm := h.c.View()
	assert.Equal(t, -1, vm.AnimatingIndex)
	assert.Equal(t, "reply to skip me", vm.Turns[0].Assistant)
}

func TestController_CancelInFlight(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHarness(t, store)
	h.be.setChat(blockingChat)

	require.NoError(t, h.c.SubmitQuery("slow", ModeChat))
	assert.True(t, h.c.View().InFlight)

	require.NoError(t, h.c.CancelInFlight())
	vm := h.c.View()
	assert.False(t, vm.InFlight)
	require.Len(t, vm.Turns, 1)
	assert.True(t, vm.Turns[0].Failed)
	assert.Equal(t, msgCanceled, vm.Turns[0].Assistant)
	assert.Equal(t, stream.Errored, vm.State)

	h.flush()
	assert.Equal(t, 0, store.Len(), "failed exchanges are not persisted")
}

func TestController_BackendRejection(t *testing.T) {
	h := newHarness(t, nil)
	h.be.setChat(func(context.Context, backend.ChatRequest) (string, error) {
		return "", &backend.APIError{Status: 429, Message: "rate limited"}
	})

	require.NoError(t, h.c.SubmitQuery("q", ModeChat))
	vm := h.waitReply(0)
	assert.True(t, vm.Turns[0].Failed)
	assert.Equal(t, msgBackendErr+"rate limited", vm.Turns[0].Assistant)
}

func TestController_MalformedReply(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
	}{
		{"missing reply", backend.ErrMissingReply},
		{"unparsable body", fmt.Errorf("%w: invalid character '<'", backend.ErrMalformedResponse)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.be.setChat(func(context.Context, backend.ChatRequest) (string, error) {
				return "", tc.err
			})

			require.NoError(t, h.c.SubmitQuery("q", ModeChat))
			vm := h.waitReply(0)
			assert.True(t, vm.Turns[0].Failed)
			assert.Equal(t, msgMalformed, vm.Turns[0].Assistant)
			assert.NotContains(t, vm.Turns[0].Assistant, "connection")
		})
	}
}

// =============================================================================
// RESEARCH
// =============================================================================

func TestController_ResearchStreamFillsCanvas(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHarness(t, store)
	long := strings.Repeat("tide ", 100)

	require.NoError(t, h.c.SubmitQuery("Explain tides", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("stage", `{"stage":"searching","sources":3}`)
	s.send("metrics", `{"sources":12,"model":"m1"}`)
	s.send("artifact", `{"id":"art-1"}`)
	s.send("answer", fmt.Sprintf(`{"answer":%q}`, long))
	s.send("done", "{}")

	vm := h.waitView("done", func(vm ViewModel) bool { return vm.State == stream.Done && !vm.InFlight })

	assert.Equal(t, []string{stream.StagePreparing, "searching"}, stageLabels(vm))
	assert.Equal(t, map[string]float64{"sources": 12}, vm.Metrics)
	assert.Equal(t, -1, vm.AnimatingIndex, "research answers are shown at once")
	assert.Equal(t, []rune(long)[:stream.DefaultSummaryLength], []rune(vm.Turns[0].Assistant))

	require.NotNil(t, vm.Canvas)
	assert.Equal(t, vm.SessionID, vm.Canvas.Owner)
	require.NotNil(t, vm.Canvas.Content)
	assert.Equal(t, "art-1", vm.Canvas.Content.ID)
	assert.Equal(t, long, vm.Canvas.Content.FullAnswer)

	require.Eventually(t, func() bool { return h.be.open.Load() == 0 }, waitTimeout, time.Millisecond)

	h.flush()
	rec, err := store.Load(context.Background(), vm.SessionID)
	require.NoError(t, err)
	require.NotNil(t, rec.Canvas)
	assert.Equal(t, long, rec.Canvas.FullAnswer)
	assert.Equal(t, 12.0, rec.Canvas.Metrics["sources"])
}

func TestController_StreamDropFailsOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHarness(t, store)

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("stage", `{"stage":"searching"}`)
	h.waitView("searching", func(vm ViewModel) bool { return vm.Stage == "searching" })
	old := h.currentRequest()
	require.NotNil(t, old)

	s.pw.CloseWithError(errors.New("connection reset"))
	vm := h.waitView("errored", func(vm ViewModel) bool { return vm.State == stream.Errored && !vm.InFlight })

	require.Len(t, vm.Turns, 1)
	assert.True(t, vm.Turns[0].Failed)
	assert.Contains(t, vm.Turns[0].Assistant, "connection to the research service was lost")
	require.Eventually(t, func() bool { return h.be.open.Load() == 0 }, waitTimeout, time.Millisecond)

	require.NoError(t, h.c.do(func() error {
		h.c.onEvent(old, stream.AnswerEvent{Text: "late"})
		h.c.onEvent(old, stream.DoneEvent{})
		h.c.onChatReply(old, "late", nil)
		return nil
	}))
	after := h.c.View()
	require.Len(t, after.Turns, 1)
	assert.Equal(t, vm.Turns[0].Assistant, after.Turns[0].Assistant)
	assert.Equal(t, stream.Errored, after.State)

	h.flush()
	assert.Equal(t, 0, store.Len())
}

func TestController_NewQueryClosesOpenStream(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.c.SubmitQuery("first", ModeResearch))
	s1 := h.be.waitStream(t)
	s1.send("start", "{}")
	h.waitView("preparing", func(vm ViewModel) bool { return len(vm.StageLog) == 1 })

	require.NoError(t, h.c.SubmitQuery("second", ModeResearch))
	assert.True(t, s1.closed.Load(), "first stream is closed before the command returns")

	s2 := h.be.waitStream(t)
	assert.Equal(t, int32(1), h.be.open.Load())

	vm := h.c.View()
	require.Len(t, vm.Turns, 2)
	assert.Equal(t, msgCanceled, vm.Turns[0].Assistant)
	assert.True(t, vm.Turns[1].Pending)

	s2.send("start", "{}")
	s2.send("answer", `{"answer":"second answer"}`)
	s2.send("done", "{}")
	vm = h.waitReply(1)
	assert.Equal(t, "second answer", vm.Turns[1].Assistant)
}

func TestController_StallWatchdog(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.StallTimeout = 30 * time.Second })

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	h.be.waitStream(t)

	h.clk.Advance(30 * time.Second)
	vm := h.waitView("stalled", func(vm ViewModel) bool { return vm.State == stream.Errored })
	require.Len(t, vm.Turns, 1)
	assert.True(t, vm.Turns[0].Failed)
	assert.Contains(t, vm.Turns[0].Assistant, "No progress for 30s")
	require.Eventually(t, func() bool { return h.be.open.Load() == 0 }, waitTimeout, time.Millisecond)
}

func TestController_StallIgnoresTimerFromBeforeProgress(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.StallTimeout = 30 * time.Second })

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	h.waitView("preparing", func(vm ViewModel) bool { return len(vm.StageLog) == 1 })
	req := h.currentRequest()

	// The progress event is queued ahead of the timer callback fired by
	// Advance, so the callback runs after the watchdog was re-armed.
	require.NoError(t, h.c.do(func() error {
		h.c.post(func() { h.c.onEvent(req, stream.StageEvent{Label: "searching"}) })
		h.clk.Advance(30 * time.Second)
		return nil
	}))
	h.barrier()

	vm := h.c.View()
	assert.NotEqual(t, stream.Errored, vm.State)
	assert.True(t, vm.InFlight)
	assert.Equal(t, "searching", vm.Stage)

	h.clk.Advance(30 * time.Second)
	vm = h.waitView("stalled", func(vm ViewModel) bool { return vm.State == stream.Errored })
	assert.Contains(t, vm.Turns[0].Assistant, "No progress for 30s")
}

func TestController_DoneWithoutAnswer(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("done", "{}")

	vm := h.waitReply(0)
	assert.True(t, vm.Turns[0].Failed)
	assert.Equal(t, msgNoAnswer, vm.Turns[0].Assistant)
}

func TestController_OpenStreamError(t *testing.T) {
	h := newHarness(t, nil)
	h.be.openErr = &backend.TransportError{Err: errors.New("dial refused")}

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	vm := h.waitReply(0)
	assert.True(t, vm.Turns[0].Failed)
	assert.Equal(t, stream.Errored, vm.State)
}

// =============================================================================
// EDITING
// =============================================================================

func TestController_EditFirstTurnTruncates(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHarness(t, store)
	h.be.setChat(echoChat)

	for i, q := range []string{"one", "two", "three"} {
		require.NoError(t, h.c.SubmitQuery(q, ModeChat))
		h.waitReply(i)
		h.finishTyping()
	}

	require.NoError(t, h.c.EditTurn(0, "uno"))
	vm := h.waitReply(0)
	require.Len(t, vm.Turns, 1)
	assert.Equal(t, "uno", vm.Turns[0].User)
	assert.Equal(t, "uno", vm.Title)
	assert.Empty(t, h.be.lastRequest().History)

	vm = h.finishTyping()
	assert.Equal(t, "reply to uno", vm.Turns[0].Assistant)

	h.flush()
	rec, err := store.Load(context.Background(), vm.SessionID)
	require.NoError(t, err)
	require.Len(t, rec.Turns, 2)
	assert.Equal(t, "uno", rec.Turns[0].Content)
}

func TestController_Validation(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.c.SubmitQuery("   ", ModeChat), ErrEmptyQuery)
	assert.ErrorIs(t, h.c.EditTurn(0, "x"), ErrNoActiveSession)
	assert.ErrorIs(t, h.c.ReopenCanvas(), ErrNoActiveSession)
	assert.Equal(t, 0, h.be.requestCount())
	assert.Empty(t, h.c.View().Turns)

	require.NoError(t, h.c.SubmitQuery("q", ModeChat))
	h.waitReply(0)

	var verr *ValidationError
	require.ErrorAs(t, h.c.EditTurn(3, "x"), &verr)
	assert.Equal(t, "index", verr.Field)
	require.ErrorAs(t, h.c.ReopenCanvas(), &verr)
	assert.Equal(t, "canvas", verr.Field)
	require.ErrorAs(t, h.c.SwitchSession(" "), &verr)
}

// =============================================================================
// SESSIONS AND CANVAS
// =============================================================================

func TestController_SwitchKeepsCanvasPerSession(t *testing.T) {
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	h := newHarness(t, store)
	h.be.setChat(echoChat)

	require.NoError(t, h.c.SubmitQuery("tides", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("artifact", `{"id":"art-1"}`)
	s.send("answer", `{"answer":"the moon"}`)
	s.send("done", "{}")
	vm := h.waitReply(0)
	require.NotNil(t, vm.Canvas)
	idA := vm.SessionID

	require.NoError(t, h.c.StartNewSession())
	vm = h.c.View()
	assert.Nil(t, vm.Canvas)
	assert.Empty(t, vm.SessionID)

	require.NoError(t, h.c.SubmitQuery("hello", ModeChat))
	h.waitReply(0)
	vm = h.finishTyping()
	idB := vm.SessionID
	require.NotEqual(t, idA, idB)
	assert.Nil(t, vm.Canvas)

	require.NoError(t, h.c.SwitchSession(idA))
	vm = h.c.View()
	assert.Equal(t, idA, vm.SessionID)
	require.NotNil(t, vm.Canvas)
	assert.Equal(t, idA, vm.Canvas.Owner)
	assert.Equal(t, "the moon", vm.Canvas.Content.FullAnswer)
	assert.Equal(t, -1, vm.AnimatingIndex)

	require.NoError(t, h.c.SwitchSession(idB))
	assert.Nil(t, h.c.View().Canvas)

	require.NoError(t, h.c.SwitchSession(idA))
	require.NotNil(t, h.c.View().Canvas)
	assert.Equal(t, int32(0), store.loads.Load(), "switching between loaded sessions never reads the store")
}

func TestController_SwitchLoadsStoredSession(t *testing.T) {
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	s := model.NewSession(t0)
	for _, q := range []string{"first", "second"} {
		idx := s.AppendTurn(q, t0)
		require.NoError(t, s.SetAssistant(idx, model.NewAssistantMessage("answer to "+q, true, t0)))
	}
	s.Canvas = &model.Canvas{ID: "art-7", FullAnswer: "stored canvas", OwnerSessionID: s.ID}
	require.NoError(t, store.Save(context.Background(), s.ToRecord()))

	h := newHarness(t, store)
	h.be.setChat(echoChat)

	require.NoError(t, h.c.SwitchSession(s.ID))
	vm := h.waitView("loaded", func(vm ViewModel) bool { return vm.SessionID == s.ID })

	assert.Empty(t, vm.LoadingSession)
	assert.Equal(t, -1, vm.AnimatingIndex)
	require.Len(t, vm.Turns, 2)
	for i, turn := range vm.Turns {
		assert.False(t, turn.Pending, "turn %d", i)
		assert.False(t, turn.Animating, "turn %d", i)
	}
	assert.Equal(t, "answer to second", vm.Turns[1].Assistant)
	require.NotNil(t, vm.Canvas)
	assert.Equal(t, "stored canvas", vm.Canvas.Content.FullAnswer)
	assert.Equal(t, int32(1), store.loads.Load())

	require.NoError(t, h.c.SubmitQuery("third", ModeChat))
	h.waitReply(2)
	req := h.be.lastRequest()
	assert.Equal(t, s.ID, req.SessionID)
	assert.Len(t, req.History, 4)
}

func TestController_SwitchFetchesMissingCanvas(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	s := model.NewSession(t0)
	idx := s.AppendTurn("q", t0)
	require.NoError(t, s.SetAssistant(idx, model.NewAssistantMessage("a", false, t0)))
	require.NoError(t, store.Save(ctx, s.ToRecord()))

	h := newHarness(t, store)
	require.NoError(t, h.c.SwitchSession(s.ID))
	vm := h.waitView("loaded", func(vm ViewModel) bool { return vm.SessionID == s.ID })
	assert.Nil(t, vm.Canvas)

	require.NoError(t, h.c.StartNewSession())
	require.NoError(t, store.AttachCanvas(ctx, s.ID, &model.CanvasRecord{ID: "art-9", FullAnswer: "fetched later"}))
	metas, err := h.c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.True(t, metas[0].HasCanvas)

	require.NoError(t, h.c.SwitchSession(s.ID))
	vm = h.waitView("canvas", func(vm ViewModel) bool {
		return vm.Canvas != nil && vm.Canvas.Content != nil
	})
	assert.Equal(t, "fetched later", vm.Canvas.Content.FullAnswer)
}

func TestController_SwitchToMissingSessionNotifies(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.c.SwitchSession("gone"))
	vm := h.waitView("notice", func(vm ViewModel) bool { return len(vm.Notices) > 0 })
	assert.Empty(t, vm.SessionID)
	assert.Empty(t, vm.LoadingSession)
	assert.Equal(t, session.LevelWarn, vm.Notices[0].Level)
}

func TestController_CloseAndReopenCanvas(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("artifact", `{"id":"art-1"}`)
	s.send("answer", `{"answer":"body"}`)
	s.send("done", "{}")
	h.waitReply(0)

	require.NoError(t, h.c.CloseCanvas())
	assert.Nil(t, h.c.View().Canvas)
	require.NoError(t, h.c.ReopenCanvas())
	require.NotNil(t, h.c.View().Canvas)
}

func TestController_FailedResearchLeavesNoCanvas(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("artifact", `{"id":"art-1"}`)
	h.waitView("artifact", func(vm ViewModel) bool { return vm.Canvas != nil })
	s.send("error", `{"error":"boom"}`)

	vm := h.waitReply(0)
	assert.True(t, vm.Turns[0].Failed)
	assert.Nil(t, vm.Canvas)
	var verr *ValidationError
	require.ErrorAs(t, h.c.ReopenCanvas(), &verr)
}

func TestController_CanceledResearchLeavesNoCanvas(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.c.SubmitQuery("q", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("artifact", `{"id":"art-1"}`)
	h.waitView("artifact", func(vm ViewModel) bool { return vm.Canvas != nil })

	require.NoError(t, h.c.CancelInFlight())
	vm := h.waitReply(0)
	assert.Equal(t, msgCanceled, vm.Turns[0].Assistant)
	assert.Nil(t, vm.Canvas)
	require.Error(t, h.c.ReopenCanvas())
}

func TestController_FailedResearchKeepsEarlierCanvas(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.c.SubmitQuery("first", ModeResearch))
	s := h.be.waitStream(t)
	s.send("start", "{}")
	s.send("artifact", `{"id":"art-1"}`)
	s.send("answer", `{"answer":"first body"}`)
	s.send("done", "{}")
	h.waitReply(0)

	require.NoError(t, h.c.SubmitQuery("second", ModeResearch))
	s = h.be.waitStream(t)
	s.send("start", "{}")
	s.send("artifact", `{"id":"art-2"}`)
	s.send("error", `{"error":"boom"}`)

	vm := h.waitReply(1)
	assert.True(t, vm.Turns[1].Failed)
	require.NotNil(t, vm.Canvas)
	require.NotNil(t, vm.Canvas.Content)
	assert.Equal(t, "first body", vm.Canvas.Content.FullAnswer)
}

func TestController_PersistenceFailureNotice(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), err: errors.New("disk full")}
	h := newHarness(t, store)
	h.be.setChat(echoChat)

	require.NoError(t, h.c.SubmitQuery("q", ModeChat))
	h.waitReply(0)
	h.flush()

	vm := h.c.View()
	require.Len(t, vm.Notices, 1)
	assert.Equal(t, session.LevelError, vm.Notices[0].Level)
	assert.Contains(t, vm.Notices[0].Text, "disk full")
	require.Len(t, vm.Turns, 1)
	assert.False(t, vm.Turns[0].Failed, "the conversation keeps the reply")

	require.NoError(t, h.c.DismissNotices())
	assert.Empty(t, h.c.View().Notices)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestController_SubscribeAndModes(t *testing.T) {
	h := newHarness(t, nil)

	ch, cancel := h.c.Subscribe()
	defer cancel()
	vm := <-ch
	assert.Equal(t, ModeChat, vm.Mode)

	require.NoError(t, h.c.SetMode(ModeResearch))
	deadline := time.After(waitTimeout)
	for vm.Mode != ModeResearch {
		select {
		case vm = <-ch:
		case <-deadline:
			t.Fatal("mode change not published")
		}
	}
	assert.Equal(t, ModeResearch, h.c.View().Mode)
}

func TestController_RunTwice(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.c.Run(context.Background()), ErrAlreadyRunning)
}

func TestController_CommandsAfterStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rec := session.NewReconciler(storage.NewMemoryStore(), clock.NewFake(t0), logger)
	c := New(newFakeBackend(), rec, clock.NewFake(t0), Options{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	require.NoError(t, c.SetMode(ModeResearch))
	cancel()
	require.NoError(t, <-done)

	assert.ErrorIs(t, c.SetMode(ModeChat), ErrStopped)
}
