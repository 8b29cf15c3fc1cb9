// Package servers shows the outcome of probing the post office servers
// behind IMAP mailboxes.
package servers

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailto/internal/keys"
	"github.com/nhle/mailto/internal/probe"
	"github.com/nhle/mailto/internal/theme"
)

// CloseMsg is dispatched when the user leaves the view.
type CloseMsg struct{}

// Model lists probe results.
type Model struct {
	keys    *keys.KeyMap
	results []probe.Result
	running bool
	err     string
	width   int
}

// New creates an empty servers view.
func New(k *keys.KeyMap, width int) Model {
	return Model{keys: k, width: width}
}

// SetRunning clears old results while a probe is in progress.
func (m *Model) SetRunning() {
	m.running = true
	m.results = nil
	m.err = ""
}

// SetResults shows the outcome of a probe.
func (m *Model) SetResults(results []probe.Result, err error) {
	m.running = false
	m.results = results
	m.err = ""
	if err != nil {
		m.err = err.Error()
	}
}

// Update handles messages for the view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if key.Matches(keyMsg, m.keys.Back) || key.Matches(keyMsg, m.keys.Probe) {
			return m, func() tea.Msg { return CloseMsg{} }
		}
	}
	return m, nil
}

// View renders the results.
func (m Model) View() string {
	parts := []string{theme.TitleStyle.Render("Post office servers")}

	switch {
	case m.running:
		parts = append(parts, theme.DimmedStyle.Render("Contacting servers..."))
	case len(m.results) == 0 && m.err == "":
		parts = append(parts, theme.DimmedStyle.Render("You have no IMAP mailboxes."))
	default:
		for _, r := range m.results {
			parts = append(parts, renderResult(r))
		}
	}
	if m.err != "" {
		parts = append(parts, "", theme.AlertStyle("danger").Render(m.err))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func renderResult(r probe.Result) string {
	if !r.Reachable {
		reason := "unreachable"
		if r.Err != nil {
			reason = r.Err.Error()
		}
		return theme.AlertStyle("danger").Render("✗ "+r.Host) + " " +
			theme.DimmedStyle.Render(reason)
	}
	caps := strings.Join(r.Capabilities, " ")
	return theme.AlertStyle("success").Render("✓ "+r.Host) + " " +
		theme.DimmedStyle.Render(fmt.Sprintf("%s  %s", r.Elapsed.Round(time.Millisecond), caps))
}

// SetSize updates the width.
func (m *Model) SetSize(width, _ int) {
	m.width = width
}
