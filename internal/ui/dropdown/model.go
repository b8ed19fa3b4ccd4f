// Package dropdown is the unread-notification panel: the terminal
// equivalent of the bell dropdown in the web console.
package dropdown

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ncastellan/deskwatch/internal/keys"
	"github.com/ncastellan/deskwatch/internal/model"
	"github.com/ncastellan/deskwatch/internal/theme"
)

// MarkReadMsg asks the app to mark the given notification read.
type MarkReadMsg struct {
	ID string
}

// MarkAllReadMsg asks the app to mark everything read.
type MarkAllReadMsg struct{}

// LinkCopiedMsg reports a deep link surfaced to the status line.
type LinkCopiedMsg struct {
	URL string
}

// CloseMsg asks the app to close the dropdown.
type CloseMsg struct{}

// Model is the unread list view component.
type Model struct {
	items  []model.Notification
	cursor int
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a dropdown model.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{keys: k, width: width, height: height}
}

// SetSize updates the rendering dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetItems replaces the displayed unread list, clamping the cursor.
func (m *Model) SetItems(items []model.Notification) {
	m.items = items
	if m.cursor >= len(items) {
		m.cursor = len(items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Update handles key input for the dropdown.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.MarkRead):
		if n, ok := m.selected(); ok {
			id := n.ID
			return m, func() tea.Msg { return MarkReadMsg{ID: id} }
		}
	case key.Matches(keyMsg, m.keys.MarkAllRead):
		if len(m.items) > 0 {
			return m, func() tea.Msg { return MarkAllReadMsg{} }
		}
	case key.Matches(keyMsg, m.keys.Select):
		if n, ok := m.selected(); ok && n.LinkURL != "" {
			url := n.LinkURL
			return m, func() tea.Msg { return LinkCopiedMsg{URL: url} }
		}
	case key.Matches(keyMsg, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }
	}

	return m, nil
}

func (m Model) selected() (model.Notification, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return model.Notification{}, false
	}
	return m.items[m.cursor], true
}

// View renders the unread list.
func (m Model) View() string {
	if len(m.items) == 0 {
		return theme.HelpStyle.Render("No unread notifications.")
	}

	now := time.Now()
	visible := m.height
	if visible <= 0 {
		visible = len(m.items)
	}

	lines := make([]string, 0, len(m.items))
	for i, n := range m.items {
		if i >= visible {
			lines = append(lines, theme.HelpStyle.Render(
				fmt.Sprintf("… %d more", len(m.items)-visible)))
			break
		}

		line := fmt.Sprintf("%s  %s", n.Title, theme.HelpStyle.Render(n.RelativeTime(now)))
		if i == m.cursor {
			lines = append(lines, theme.SelectedItemStyle.Render(line))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(line))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
