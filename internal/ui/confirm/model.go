package confirm

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ResultMsg is dispatched once the user answers. Action echoes the value
// passed to Start.
type ResultMsg struct {
	Action    string
	Confirmed bool
}

type formBindings struct {
	confirm bool
}

// Model asks a yes/no question before a destructive action.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	action string
	width  int
}

// New creates a confirmation model.
func New(width int) Model {
	return Model{fb: &formBindings{}, width: width}
}

// Start asks title for action. The default answer is no.
func (m *Model) Start(action, title, description, affirmative string) tea.Cmd {
	m.action = action
	m.fb.confirm = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative(affirmative).
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(m.formWidth())
	return m.form.Init()
}

// Update handles messages for the confirmation.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	action := m.action
	switch m.form.State {
	case huh.StateCompleted:
		yes := m.fb.confirm
		m.form = nil
		return m, func() tea.Msg { return ResultMsg{Action: action, Confirmed: yes} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return ResultMsg{Action: action} }
	}

	return m, cmd
}

// View renders the question.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
}

// SetSize updates the width.
func (m *Model) SetSize(width, _ int) {
	m.width = width
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}
