// Package app is the root Bubble Tea model: it wires the notification
// center, the realtime connection manager, and the fallback poller to
// the terminal views, and maps terminal focus onto the poller's
// visibility signal. First-run setup happens before this model is
// constructed (see cmd/deskwatch).
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ncastellan/deskwatch/internal/keys"
	"github.com/ncastellan/deskwatch/internal/model"
	"github.com/ncastellan/deskwatch/internal/notify"
	"github.com/ncastellan/deskwatch/internal/poll"
	"github.com/ncastellan/deskwatch/internal/realtime"
	"github.com/ncastellan/deskwatch/internal/store"
	"github.com/ncastellan/deskwatch/internal/ui"
	"github.com/ncastellan/deskwatch/internal/ui/dropdown"
	"github.com/ncastellan/deskwatch/internal/ui/history"
	"github.com/ncastellan/deskwatch/internal/ui/toast"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewMain ViewState = iota
	ViewDropdown
	ViewHistory
	ViewHelp
)

// centerEventMsg wraps a notify.Event for the Bubble Tea runtime.
type centerEventMsg struct {
	event notify.Event
}

// initialLoadDoneMsg reports the result of the session's first fetch.
type initialLoadDoneMsg struct {
	err error
}

// opDoneMsg reports the completion of a user-initiated mark action.
// Errors were already surfaced as toasts by the center.
type opDoneMsg struct{}

// Deps carries everything the root model needs. Center, Poller, and
// Manager are constructed by the caller so their lifetime can exceed a
// view switch.
type Deps struct {
	Config  *model.AppConfig
	Center  *notify.Center
	Poller  *poll.Poller
	Manager *realtime.Manager
	Cache   store.Store

	// SessionCtx is cancelled on shutdown; every API call made on
	// behalf of this session uses it so in-flight fetches die with
	// the session.
	SessionCtx context.Context

	// Visible is shared with the poller's Visibility; the app flips it
	// on terminal focus/blur.
	Visible *atomic.Bool
}

// Model is the root application model.
type Model struct {
	deps Deps

	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	dropdown dropdown.Model
	history  history.Model
	toasts   toast.Model

	statusLine string
	connStatus realtime.Status
	ready      bool
}

// New creates the root application model.
func New(deps Deps) Model {
	k := keys.DefaultKeyMap()

	toastLife := time.Duration(deps.Config.Display.ToastSec) * time.Second

	return Model{
		deps:        deps,
		currentView: ViewMain,
		keys:        k,
		layout:      ui.NewLayout(80, 24),
		dropdown:    dropdown.New(k, 80, 20),
		history:     history.New(deps.Cache, k, 80, 20),
		toasts:      toast.New(toastLife),
		connStatus:  realtime.StatusDisconnected,
	}
}

// Init starts the session: initial load, realtime channel, poller, and
// the center event subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.startSession(),
		m.waitForCenterEvent(),
	)
}

// startSession kicks off the initial load and background machinery.
func (m Model) startSession() tea.Cmd {
	deps := m.deps

	return tea.Batch(
		func() tea.Msg {
			deps.Manager.Start(deps.SessionCtx)
			err := deps.Center.InitialLoad(deps.SessionCtx)
			return initialLoadDoneMsg{err: err}
		},
		deps.Poller.Start(),
	)
}

// waitForCenterEvent subscribes to the center's event stream.
func (m Model) waitForCenterEvent() tea.Cmd {
	events := m.deps.Center.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return centerEventMsg{event: ev}
	}
}

// Update routes messages to the active view and background machinery.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.dropdown.SetSize(msg.Width, m.layout.ContentHeight())
		m.history.SetSize(msg.Width, m.layout.ContentHeight())
		m.ready = true
		return m, nil

	case tea.FocusMsg:
		m.deps.Visible.Store(true)
		// Catch up immediately after a long blur instead of waiting
		// for the next interval boundary.
		m.deps.Poller.TickNow()
		return m, nil

	case tea.BlurMsg:
		m.deps.Visible.Store(false)
		return m, nil

	case centerEventMsg:
		return m.handleCenterEvent(msg.event)

	case poll.TickResultMsg:
		return m.handleTickResult(msg)

	case initialLoadDoneMsg:
		if msg.err != nil {
			m.statusLine = "Initial load failed; will retry in background"
		}
		m.dropdown.SetItems(m.deps.Center.Unread())
		return m, nil

	case toast.ExpireMsg:
		m.toasts.Update(msg)
		return m, nil

	case dropdown.MarkReadMsg:
		return m, m.markRead(msg.ID)

	case dropdown.MarkAllReadMsg:
		return m, m.markAllRead()

	case dropdown.LinkCopiedMsg:
		m.statusLine = "Link: " + msg.URL
		return m, nil

	case dropdown.CloseMsg:
		return m.closeDropdown(), nil

	case history.CloseMsg:
		m.currentView = ViewMain
		return m, nil

	case history.LoadedMsg:
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd

	case opDoneMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	return m.routeToView(msg)
}

// handleCenterEvent reacts to state changes published by the center.
func (m Model) handleCenterEvent(ev notify.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitForCenterEvent()}

	switch ev := ev.(type) {
	case notify.UpdatedEvent:
		m.dropdown.SetItems(m.deps.Center.Unread())

	case notify.ToastEvent:
		cmds = append(cmds, m.toasts.Push(ev.Level, ev.Text))

	case notify.StatusEvent:
		m.connStatus = ev.Status
	}

	return m, tea.Batch(cmds...)
}

// handleTickResult turns poller outcomes into user-visible feedback.
// Routine failed ticks stay silent to avoid toast spam on flaky links;
// only the first failure of a run is mentioned.
func (m Model) handleTickResult(msg poll.TickResultMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.deps.Poller.WaitForNextResult()}

	switch {
	case msg.Reconciled:
		text := fmt.Sprintf("%d new notification(s)", msg.NewArrivals)
		cmds = append(cmds, m.toasts.Push(notify.ToastInfo, text))

	case msg.Err != nil && msg.FirstFailure:
		cmds = append(cmds, m.toasts.Push(notify.ToastError,
			"Notifications out of sync; retrying in background"))
	}

	return m, tea.Batch(cmds...)
}

// handleKeys processes global keybindings, then delegates to the view.
func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.teardown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Notifications):
		if m.currentView == ViewDropdown {
			return m.closeDropdown(), nil
		}
		return m.openDropdown(), nil

	case key.Matches(msg, m.keys.History):
		if m.currentView == ViewDropdown {
			m = m.closeDropdown()
		}
		m.currentView = ViewHistory
		return m, m.history.Load()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.forceReconcile()

	case key.Matches(msg, m.keys.Reconnect):
		deps := m.deps
		return m, func() tea.Msg {
			deps.Manager.Reconnect(deps.SessionCtx)
			return opDoneMsg{}
		}

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
		} else {
			m.previousView = m.currentView
			m.currentView = ViewHelp
		}
		return m, nil
	}

	return m.routeToView(msg)
}

// routeToView forwards a message to the active view component.
func (m Model) routeToView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.currentView {
	case ViewDropdown:
		m.dropdown, cmd = m.dropdown.Update(msg)
	case ViewHistory:
		m.history, cmd = m.history.Update(msg)
	}
	return m, cmd
}

// openDropdown shows the unread panel. While open, pushes update the
// badge silently instead of toasting.
func (m Model) openDropdown() Model {
	m.deps.Center.OpenDropdown()
	m.dropdown.SetItems(m.deps.Center.Unread())
	m.currentView = ViewDropdown
	return m
}

func (m Model) closeDropdown() Model {
	m.deps.Center.CloseDropdown()
	m.currentView = ViewMain
	return m
}

// markRead runs the mark-read round trip off the UI loop.
func (m Model) markRead(id string) tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		_ = deps.Center.MarkAsRead(deps.SessionCtx, id)
		return opDoneMsg{}
	}
}

func (m Model) markAllRead() tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		_ = deps.Center.MarkAllAsRead(deps.SessionCtx)
		return opDoneMsg{}
	}
}

// forceReconcile is the manual refresh command.
func (m Model) forceReconcile() tea.Cmd {
	deps := m.deps
	return func() tea.Msg {
		_ = deps.Center.Reconcile(deps.SessionCtx)
		return opDoneMsg{}
	}
}

// teardown stops the background machinery. Safe to call more than once.
func (m Model) teardown() {
	m.deps.Poller.Stop()
	m.deps.Manager.Close()
}

// View renders the active view inside the standard frame.
func (m Model) View() string {
	if !m.ready {
		return "loading…"
	}

	header := m.layout.RenderHeader(
		"deskwatch",
		m.deps.Center.UnreadCount(),
		m.connStatus.String(),
	)

	var content string
	switch m.currentView {
	case ViewDropdown:
		content = m.dropdown.View()
	case ViewHistory:
		content = m.history.View()
	case ViewHelp:
		content = m.helpView()
	default:
		content = m.mainView()
	}

	if m.toasts.Active() {
		content = m.toasts.View() + "\n" + content
	}

	hints := "n notifications · h history · r refresh · ? help · q quit"
	if m.statusLine != "" {
		hints = m.statusLine
	}

	return m.layout.RenderWithFrame(header, content, m.layout.RenderStatusBar(hints))
}

// mainView is the resting screen: badge summary plus a hint.
func (m Model) mainView() string {
	count := m.deps.Center.UnreadCount()
	if count == 0 {
		return "\n  All caught up."
	}
	return fmt.Sprintf("\n  %d unread notification(s). Press n to view.", count)
}

func (m Model) helpView() string {
	out := "\n"
	for _, group := range m.keys.FullHelp() {
		for _, b := range group {
			out += fmt.Sprintf("  %-12s %s\n", b.Help().Key, b.Help().Desc)
		}
		out += "\n"
	}
	return out
}
