package mailboxes

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/mailto/internal/keys"
	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/theme"
)

// alert is a one-line message shown under the mailbox list.
type alert struct {
	severity string
	text     string
}

// Model renders the forwarding destinations of one user and the current
// replace target.
type Model struct {
	keys     *keys.KeyMap
	spinner  spinner.Model
	username string
	status   model.Status
	set      mailbox.Set
	target   mailbox.ReplaceTarget
	inactive []model.Mailbox
	loaded   bool
	cursor   int
	busy     string
	alert    *alert
	now      func() time.Time
	width    int
	height   int
}

// New creates an empty mailboxes view.
func New(k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		keys:    k,
		spinner: sp,
		target:  mailbox.Split(),
		now:     time.Now,
		width:   width,
		height:  height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles cursor movement and spinner ticks.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.cursor < m.set.Len()-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		}
	}
	return m, nil
}

// Render redraws the view for a new set and target. Its signature matches
// mailbox.StateChangedFunc.
func (m *Model) Render(set mailbox.Set, target mailbox.ReplaceTarget) {
	m.set = set
	m.target = target
	if m.cursor >= set.Len() {
		m.cursor = max(set.Len()-1, 0)
	}
}

// SetDetails installs what the view shows besides the set and target:
// the user, modification metadata and inactive mailboxes.
func (m *Model) SetDetails(s mailbox.State) {
	m.username = s.Username
	m.status = s.Status
	m.loaded = s.Loaded
	m.inactive = s.Inactive()
}

// SelectedKind returns the kind of the mailbox under the cursor.
func (m Model) SelectedKind() (model.Kind, bool) {
	if m.cursor < 0 || m.cursor >= m.set.Len() {
		return "", false
	}
	return m.set.At(m.cursor).Kind, true
}

// StartBusy shows the spinner with a description of the pending action.
func (m *Model) StartBusy(action string) tea.Cmd {
	m.busy = action
	return m.spinner.Tick
}

// StopBusy hides the spinner.
func (m *Model) StopBusy() {
	m.busy = ""
}

// Busy reports whether the spinner is showing.
func (m Model) Busy() bool {
	return m.busy != ""
}

// SetAlert shows a message of the given severity until it is cleared.
func (m *Model) SetAlert(severity, text string) {
	m.alert = &alert{severity: severity, text: text}
}

// ClearAlert removes the current message.
func (m *Model) ClearAlert() {
	m.alert = nil
}

// Alert returns the current message text, or "".
func (m Model) Alert() string {
	if m.alert == nil {
		return ""
	}
	return m.alert.text
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// View renders the mailbox list.
func (m Model) View() string {
	if !m.loaded {
		return m.renderPlaceholder()
	}

	sections := []string{
		theme.TitleStyle.Render("Mail to " + m.username + " is delivered to"),
		m.renderSet(),
		m.renderTarget(),
	}
	if hints := m.renderInactive(); hints != "" {
		sections = append(sections, hints)
	}
	if meta := m.renderModified(); meta != "" {
		sections = append(sections, meta)
	}
	if line := m.renderAlert(); line != "" {
		sections = append(sections, line)
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderPlaceholder() string {
	text := "Loading your forwarding settings..."
	if m.busy != "" {
		text = m.spinner.View() + " " + text
	}
	if line := m.renderAlert(); line != "" {
		text += "\n\n" + line
	}
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(text)
}

func (m Model) renderSet() string {
	if m.set.Len() == 0 {
		return theme.AlertStyle("warning").Render(
			"No active mailboxes. Mail to you is currently not delivered anywhere.",
		)
	}

	lines := make([]string, 0, m.set.Len())
	for i, b := range m.set.Boxes() {
		kind := theme.KindStyle(string(b.Kind)).Render(b.Kind.Label())
		row := kind + " " + b.Address
		if i == m.cursor && m.set.Splitting() {
			lines = append(lines, theme.SelectedItemStyle.Render(row))
			continue
		}
		lines = append(lines, theme.ListItemStyle.Render(row))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderTarget() string {
	label := theme.TargetStyle.Render(mailbox.TargetLabel(m.target, m.set))
	line := "New address: " + label
	if m.busy != "" {
		line += "  " + m.spinner.View() + " " + m.busy
	}
	return "\n" + line
}

func (m Model) renderInactive() string {
	if len(m.inactive) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nInactive mailboxes (type the address to deliver there again):\n")
	for _, box := range m.inactive {
		state := "disabled"
		if box.Enabled {
			state = "not used"
		}
		fmt.Fprintf(&b, "  %s %s (%s)\n", box.Kind.Label(), box.Address, state)
	}
	return theme.DimmedStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderModified() string {
	when, ok := m.status.Modified()
	if !ok {
		return ""
	}
	line := "Last modified " + humanize.RelTime(when, m.now(), "ago", "from now")
	if m.status.ModBy != "" {
		line += " by " + m.status.ModBy
	}
	if m.status.ModWith != "" {
		line += " with " + m.status.ModWith
	}
	return "\n" + theme.DimmedStyle.Render(line)
}

func (m Model) renderAlert() string {
	if m.alert == nil {
		return ""
	}
	return "\n" + theme.AlertStyle(m.alert.severity).Render(m.alert.text)
}
