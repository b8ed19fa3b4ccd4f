// Package setup is the first-run form collecting the backend URL and
// API token. The token goes to the system keyring, the rest to the
// config file.
package setup

import (
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/ncastellan/deskwatch/internal/theme"
)

// DoneMsg is dispatched when the user submits the form.
type DoneMsg struct {
	BaseURL string
	Token   string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	baseURL string
	token   string
}

// Model is the Bubble Tea model for the setup form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates a setup form model, pre-filled with any existing base URL.
func New(baseURL string, width, height int) Model {
	fb := &formBindings{baseURL: baseURL}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Service-desk API URL").
				Placeholder("https://desk.example.com/api").
				Value(&fb.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("API token").
				EchoMode(huh.EchoModePassword).
				Value(&fb.token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("token is required")
					}
					return nil
				}),
		),
	)

	return Model{form: form, fb: fb, width: width, height: height}
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return fmt.Errorf("enter a full URL including scheme")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	return nil
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update advances the form and emits DoneMsg/CancelMsg on completion.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "esc" {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		baseURL := strings.TrimRight(strings.TrimSpace(m.fb.baseURL), "/")
		token := strings.TrimSpace(m.fb.token)
		return m, func() tea.Msg {
			return DoneMsg{BaseURL: baseURL, Token: token}
		}
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	title := theme.HeaderStyle.Render("deskwatch setup")
	return lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View())
}
