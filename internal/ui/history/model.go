// Package history is the cached-notification browser. It reads from the
// local sqlite cache only, so it keeps working while the backend is
// unreachable.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ncastellan/deskwatch/internal/keys"
	"github.com/ncastellan/deskwatch/internal/model"
	"github.com/ncastellan/deskwatch/internal/store"
	"github.com/ncastellan/deskwatch/internal/theme"
)

// LoadedMsg carries a page of cached history into the view.
type LoadedMsg struct {
	Items []model.Notification
	Total int
	Err   error
}

// CloseMsg asks the app to leave the history view.
type CloseMsg struct{}

const pageSize = 100

// Model is the history browser component.
type Model struct {
	st         store.Store
	keys       *keys.KeyMap
	items      []model.Notification
	total      int
	cursor     int
	unreadOnly bool
	loadErr    error
	width      int
	height     int
}

// New creates a history model backed by the given cache.
func New(st store.Store, k *keys.KeyMap, width, height int) Model {
	return Model{st: st, keys: k, width: width, height: height}
}

// SetSize updates the rendering dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Load returns a command that fetches the current page from the cache.
func (m Model) Load() tea.Cmd {
	st := m.st
	filter := store.HistoryFilter{
		UnreadOnly: m.unreadOnly,
		Limit:      pageSize,
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		items, err := st.History(ctx, filter)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		total, err := st.CountHistory(ctx, filter)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Items: items, Total: total}
	}
}

// Update handles messages for the history view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loadErr = msg.Err
		if msg.Err == nil {
			m.items = msg.Items
			m.total = msg.Total
			if m.cursor >= len(m.items) {
				m.cursor = 0
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.ToggleUnread):
			m.unreadOnly = !m.unreadOnly
			m.cursor = 0
			return m, m.Load()
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return CloseMsg{} }
		}
	}

	return m, nil
}

// View renders the cached history list.
func (m Model) View() string {
	if m.loadErr != nil {
		return theme.HelpStyle.Render("History unavailable: " + m.loadErr.Error())
	}
	if len(m.items) == 0 {
		if m.unreadOnly {
			return theme.HelpStyle.Render("No unread notifications in cache.")
		}
		return theme.HelpStyle.Render("No cached notifications yet.")
	}

	now := time.Now()
	header := fmt.Sprintf("History (%d", m.total)
	if m.unreadOnly {
		header += ", unread only"
	}
	header += ")"

	lines := []string{theme.HelpStyle.Render(header)}

	visible := m.height - 1
	if visible <= 0 {
		visible = len(m.items)
	}

	for i, n := range m.items {
		if i >= visible {
			lines = append(lines, theme.HelpStyle.Render(
				fmt.Sprintf("… %d more", len(m.items)-visible)))
			break
		}

		marker := "●"
		style := theme.ListItemStyle
		if n.Read {
			marker = " "
			style = theme.ReadItemStyle
		}
		line := fmt.Sprintf("%s %s  %s", marker, n.Title,
			theme.HelpStyle.Render(n.RelativeTime(now)))
		if i == m.cursor {
			style = theme.SelectedItemStyle
		}
		lines = append(lines, style.Render(line))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
