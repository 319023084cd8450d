// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/model"
	"github.com/jeranaias/delve/internal/ui/render"
	"github.com/jeranaias/delve/internal/ui/styles"
)

// Controller is the part of the session controller the view drives.
type Controller interface {
	SubmitQuery(text string, mode controller.Mode) error
	EditTurn(index int, text string) error
	SwitchSession(id string) error
	StartNewSession() error
	CancelInFlight() error
	SkipAnimation() error
	CloseCanvas() error
	ReopenCanvas() error
	SetMode(m controller.Mode) error
	DismissNotices() error
	Sessions(ctx context.Context) ([]model.SessionMeta, error)
	Subscribe() (<-chan controller.ViewModel, func())
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctrl  Controller
	theme *styles.Theme
	rend  *render.Renderer
	keys  KeyMap
	help  help.Model

	input    textinput.Model
	viewport viewport.Model
	canvas   viewport.Model
	spinner  spinner.Model
	spinning bool

	sub         <-chan controller.ViewModel
	unsubscribe func()

	// vm is the latest controller snapshot.
	vm   controller.ViewModel
	mode controller.Mode

	// editing is the turn being edited, or -1.
	editing int

	picker pickerState

	status       string
	showHelp     bool
	showStageLog bool

	width  int
	height int
	ready  bool
	layout layout

	cache *renderCache
}

// pickerState is the session picker overlay.
type pickerState struct {
	open    bool
	loading bool
	items   []model.SessionMeta
	index   int
	err     error
}

// layout is the computed pane geometry.
type layout struct {
	convWidth    int
	convHeight   int
	canvasWidth  int
	canvasHeight int
	sideBySide   bool
}

// Options configures the chat view.
type Options struct {
	// MarkdownStyle is a glamour style name, "auto" or "plain".
	MarkdownStyle string
	// ShowStageLog lists every research stage, not only the current one.
	ShowStageLog bool
}

// New creates the chat view and subscribes it to ctrl.
func New(ctrl Controller, theme *styles.Theme, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question..."
	ti.CharLimit = 8192
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	sub, unsubscribe := ctrl.Subscribe()

	return Model{
		ctrl:        ctrl,
		theme:       theme,
		rend:        render.New(theme, opts.MarkdownStyle),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		input:       ti,
		viewport:    viewport.New(80, 20),
		canvas:      viewport.New(40, 20),
		spinner:     sp,
		sub:         sub,
		unsubscribe: unsubscribe,
		vm:          controller.ViewModel{AnimatingIndex: -1},
		editing:     -1,
		cache:       newRenderCache(),

		showStageLog: opts.ShowStageLog,
	}
}

// Close drops the controller subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts the subscription and the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForView(m.sub))
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ViewMsg:
		return m.handleView(msg)

	case ViewClosedMsg:
		return m, tea.Quit

	case CommandDoneMsg:
		if msg.Err != nil {
			m.status = msg.Op + ": " + msg.Err.Error()
		} else {
			m.status = ""
		}
		return m, nil

	case SessionsMsg:
		m.picker.loading = false
		m.picker.items = msg.Sessions
		m.picker.err = msg.Err
		m.picker.index = 0
		return m, nil

	case spinner.TickMsg:
		if !m.vm.InFlight {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateViewport()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	if m.theme != nil {
		m.theme.SetSize(m.width, m.height)
	}
	m.help.Width = m.width

	inputWidth := m.width - 4
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	m.relayout()
	m.updateViewport()
	return m, nil
}

func (m Model) handleView(msg ViewMsg) (tea.Model, tea.Cmd) {
	prevCanvas := m.vm.Canvas != nil
	prevNotices := len(m.vm.Notices)

	m.vm = msg.View
	m.mode = m.vm.Mode
	if m.editing >= len(m.vm.Turns) {
		m.editing = -1
	}

	if prevCanvas != (m.vm.Canvas != nil) || prevNotices != len(m.vm.Notices) {
		m.relayout()
	}
	m.updateViewport()

	cmds := []tea.Cmd{waitForView(m.sub)}
	if m.vm.InFlight && !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.picker.open {
		return m.handlePickerKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.relayout()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		return m.handleCancel()

	case key.Matches(msg, m.keys.Submit):
		return m.handleSubmit()

	case key.Matches(msg, m.keys.ToggleMode):
		m.mode = m.mode.Toggle()
		mode := m.mode
		return m, runCommand("mode", func() error { return m.ctrl.SetMode(mode) })

	case key.Matches(msg, m.keys.EditLast):
		idx := len(m.vm.Turns) - 1
		if idx < 0 {
			m.status = "Nothing to edit."
			return m, nil
		}
		m.editing = idx
		m.input.SetValue(m.vm.Turns[idx].User)
		m.input.CursorEnd()
		m.updateViewport()
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		m.editing = -1
		m.input.Reset()
		return m, runCommand("new session", m.ctrl.StartNewSession)

	case key.Matches(msg, m.keys.Sessions):
		m.picker = pickerState{open: true, loading: true}
		return m, listSessions(m.ctrl)

	case key.Matches(msg, m.keys.ToggleCanvas):
		if m.vm.Canvas != nil {
			return m, runCommand("close canvas", m.ctrl.CloseCanvas)
		}
		return m, runCommand("reopen canvas", m.ctrl.ReopenCanvas)

	case key.Matches(msg, m.keys.Dismiss):
		m.status = ""
		return m, runCommand("dismiss", m.ctrl.DismissNotices)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.CanvasUp):
		m.canvas.LineUp(3)
		return m, nil

	case key.Matches(msg, m.keys.CanvasDown):
		m.canvas.LineDown(3)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleCancel applies Esc to the most specific thing in progress.
func (m Model) handleCancel() (tea.Model, tea.Cmd) {
	switch {
	case m.vm.AnimatingIndex >= 0:
		return m, runCommand("skip", m.ctrl.SkipAnimation)
	case m.vm.InFlight:
		return m, runCommand("cancel", m.ctrl.CancelInFlight)
	case m.editing >= 0:
		m.editing = -1
		m.input.Reset()
		m.updateViewport()
		return m, nil
	}
	m.status = ""
	return m, nil
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.status = ""
	m.viewport.GotoBottom()

	if idx := m.editing; idx >= 0 {
		m.editing = -1
		return m, runCommand("edit", func() error { return m.ctrl.EditTurn(idx, text) })
	}
	mode := m.mode
	return m, runCommand("send", func() error { return m.ctrl.SubmitQuery(text, mode) })
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.picker.open = false
	case key.Matches(msg, m.keys.PickerUp):
		if m.picker.index > 0 {
			m.picker.index--
		}
	case key.Matches(msg, m.keys.PickerDown):
		if m.picker.index < len(m.picker.items)-1 {
			m.picker.index++
		}
	case key.Matches(msg, m.keys.Submit):
		if m.picker.loading || len(m.picker.items) == 0 {
			return m, nil
		}
		id := m.picker.items[m.picker.index].ID
		m.picker.open = false
		m.editing = -1
		return m, runCommand("switch", func() error { return m.ctrl.SwitchSession(id) })
	}
	return m, nil
}

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight = 1
	inputHeight  = 2 // separator + input line
	statusHeight = 1
	maxNotices   = 3

	// Border and padding of the canvas pane.
	canvasFrameW = 4
	canvasFrameH = 3 // borders + title line
)

func (m *Model) relayout() {
	if !m.ready {
		return
	}
	reserved := headerHeight + inputHeight + statusHeight + min(len(m.vm.Notices), maxNotices)
	if m.showHelp {
		reserved += len(m.keys.FullHelp()[0])
	}
	body := max(m.height-reserved, 3)

	l := layout{convWidth: max(m.width, 1), convHeight: body}
	if m.vm.Canvas != nil {
		if m.theme.GetLayoutMode() == styles.LayoutWide {
			l.sideBySide = true
			l.convWidth = m.width * 3 / 5
			l.canvasWidth = m.width - l.convWidth
			l.canvasHeight = body
		} else {
			l.convHeight = max(body/2, 1)
			l.canvasWidth = m.width
			l.canvasHeight = body - l.convHeight
		}
	}
	m.layout = l

	m.viewport.Width = l.convWidth
	m.viewport.Height = l.convHeight
	m.canvas.Width = max(l.canvasWidth-canvasFrameW, 1)
	m.canvas.Height = max(l.canvasHeight-canvasFrameH, 1)
}

// updateViewport re-renders pane content, following the conversation tail
// when it was already at the bottom.
func (m *Model) updateViewport() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation(m.layout.convWidth))
	if follow {
		m.viewport.GotoBottom()
	}
	if m.vm.Canvas != nil {
		m.canvas.SetContent(m.renderCanvasBody(m.canvas.Width))
	}
}

// Mode returns the mode the next query is sent in.
func (m Model) Mode() controller.Mode {
	return m.mode
}

// Editing returns the turn being edited, or -1.
func (m Model) Editing() int {
	return m.editing
}
