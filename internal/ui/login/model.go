package login

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailto/internal/theme"
)

// SubmittedMsg carries the pasted exchange result.
type SubmittedMsg struct {
	Text string
}

// CancelMsg is dispatched when the user aborts the login form.
type CancelMsg struct{}

type formBindings struct {
	text string
}

// Model is the sign-in screen. The user signs in through Webathena in a
// browser and pastes the JSON result here.
type Model struct {
	form         *huh.Form
	fb           *formBindings
	instructions string
	errMsg       string
	width        int
	height       int
}

// New creates the login view. instructions is shown above the form.
func New(instructions string, width, height int) Model {
	return Model{
		fb:           &formBindings{},
		instructions: instructions,
		width:        width,
		height:       height,
	}
}

// Start shows an empty form.
func (m *Model) Start() tea.Cmd {
	m.fb.text = ""
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Webathena result").
				Placeholder(`{"status":"OK","session":{...}}`).
				CharLimit(0).
				Lines(6).
				Value(&m.fb.text).
				Validate(validateJSONObject),
		),
	).WithWidth(m.formWidth())
	return m.form.Init()
}

// SetError shows why the last attempt failed. An empty string clears it.
func (m *Model) SetError(msg string) {
	m.errMsg = msg
}

// Update handles messages for the login form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		text := m.fb.text
		m.form = nil
		return m, func() tea.Msg { return SubmittedMsg{Text: text} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the instructions and the paste form.
func (m Model) View() string {
	sections := []string{
		theme.TitleStyle.Render("Sign in"),
		theme.DimmedStyle.Render(m.instructions),
		"",
	}
	if m.form != nil {
		sections = append(sections, m.form.View())
	}
	if m.errMsg != "" {
		sections = append(sections, "", theme.AlertStyle("danger").Render(m.errMsg))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func validateJSONObject(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("paste the result to continue")
	}
	if !strings.HasPrefix(s, "{") {
		return fmt.Errorf("the result is a JSON object starting with {")
	}
	return nil
}
