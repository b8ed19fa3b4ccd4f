// Package toast renders a stack of transient messages in the corner of
// the view. Each toast expires after a fixed lifetime.
package toast

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/ncastellan/deskwatch/internal/notify"
	"github.com/ncastellan/deskwatch/internal/theme"
)

// ExpireMsg is sent when a toast's lifetime has elapsed.
type ExpireMsg struct {
	ID string
}

// entry is one live toast.
type entry struct {
	id    string
	level notify.ToastLevel
	text  string
}

// Model holds the active toast stack.
type Model struct {
	entries  []entry
	lifetime time.Duration
	maxShown int
}

// New creates a toast stack. A non-positive lifetime defaults to 4s.
func New(lifetime time.Duration) Model {
	if lifetime <= 0 {
		lifetime = 4 * time.Second
	}
	return Model{lifetime: lifetime, maxShown: 3}
}

// Push adds a toast and returns the command that expires it.
func (m *Model) Push(level notify.ToastLevel, text string) tea.Cmd {
	id := uuid.NewString()
	m.entries = append(m.entries, entry{id: id, level: level, text: text})

	lifetime := m.lifetime
	return tea.Tick(lifetime, func(time.Time) tea.Msg {
		return ExpireMsg{ID: id}
	})
}

// Update removes expired toasts.
func (m *Model) Update(msg tea.Msg) {
	exp, ok := msg.(ExpireMsg)
	if !ok {
		return
	}
	for i, e := range m.entries {
		if e.id == exp.ID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// Active reports whether any toast is on screen.
func (m Model) Active() bool {
	return len(m.entries) > 0
}

// View renders the newest toasts, one per line.
func (m Model) View() string {
	if len(m.entries) == 0 {
		return ""
	}

	start := 0
	if len(m.entries) > m.maxShown {
		start = len(m.entries) - m.maxShown
	}

	lines := make([]string, 0, m.maxShown)
	for _, e := range m.entries[start:] {
		style := theme.ToastInfoStyle
		if e.level == notify.ToastError {
			style = theme.ToastErrorStyle
		}
		lines = append(lines, style.Render(e.text))
	}

	return lipgloss.JoinVertical(lipgloss.Right, lines...)
}
