package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailto/internal/theme"
)

// Commands the palette completes.
var Commands = []string{
	"refresh",
	"new",
	"cycle",
	"reset",
	"history",
	"probe",
	"logout",
	"quit",
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// CancelMsg is emitted when the user closes the palette with esc.
type CancelMsg struct{}

// Model is the command palette view.
type Model struct {
	input textinput.Model
	width int
}

// New creates a new command palette model.
func New(width int) Model {
	ti := textinput.New()
	ti.Placeholder = strings.Join(Commands, ", ")
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(Commands)
	ti.Width = width - 6

	return Model{input: ti, width: width}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			cmd := strings.ToLower(strings.TrimSpace(m.input.Value()))
			m.input.Reset()
			if cmd == "" {
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, func() tea.Msg { return CommandMsg(cmd) }
		case "esc":
			m.input.Reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.TitleStyle.Render("Command Palette"),
		m.input.View(),
	)

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, _ int) {
	m.width = width
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
