package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/mailto/internal/keys"
	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/theme"
)

// CloseMsg is dispatched when the user leaves the history view.
type CloseMsg struct{}

// Model lists the snapshots recorded for the current user, newest first.
type Model struct {
	keys      *keys.KeyMap
	snapshots []model.Snapshot
	loadErr   string
	cursor    int
	now       func() time.Time
	width     int
	height    int
}

// New creates an empty history view.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{keys: k, now: time.Now, width: width, height: height}
}

// SetSnapshots replaces the listed snapshots. A non-nil err is shown
// instead of the list.
func (m *Model) SetSnapshots(snaps []model.Snapshot, err error) {
	m.snapshots = snaps
	m.cursor = 0
	m.loadErr = ""
	if err != nil {
		m.loadErr = err.Error()
	}
}

// Update handles navigation.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Back), key.Matches(keyMsg, m.keys.History):
		return m, func() tea.Msg { return CloseMsg{} }
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.snapshots)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	}
	return m, nil
}

// View renders the snapshot list with the selected snapshot expanded.
func (m Model) View() string {
	title := theme.TitleStyle.Render("History")

	if m.loadErr != "" {
		return m.frame(title, theme.AlertStyle("danger").Render(m.loadErr))
	}
	if len(m.snapshots) == 0 {
		return m.frame(title, theme.DimmedStyle.Render("Nothing recorded yet."))
	}

	rows := make([]string, 0, len(m.snapshots))
	for i, snap := range m.snapshots {
		row := fmt.Sprintf("%-8s %s  %s",
			snap.Action,
			humanize.RelTime(snap.RecordedAt, m.now(), "ago", "from now"),
			summarize(snap.Status),
		)
		if i == m.cursor {
			rows = append(rows, theme.SelectedItemStyle.Render(row))
			continue
		}
		rows = append(rows, theme.ListItemStyle.Render(row))
	}

	detail := describe(m.snapshots[m.cursor])
	return m.frame(title, lipgloss.JoinVertical(lipgloss.Left, rows...), "", detail)
}

func (m Model) frame(parts ...string) string {
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// summarize lists the enabled addresses of a status on one line.
func summarize(s model.Status) string {
	var enabled []string
	for _, b := range s.Boxes {
		if b.Enabled {
			enabled = append(enabled, b.Address)
		}
	}
	if len(enabled) == 0 {
		return "(no delivery)"
	}
	return strings.Join(enabled, ", ")
}

func describe(snap model.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recorded %s\n", snap.RecordedAt.Local().Format(time.DateTime))
	if snap.Status.ModBy != "" || snap.Status.ModWith != "" {
		fmt.Fprintf(&b, "Changed by %s with %s\n", snap.Status.ModBy, snap.Status.ModWith)
	}
	for _, box := range snap.Status.Boxes {
		state := "enabled"
		if !box.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "  %-9s %s (%s)\n", box.Kind, box.Address, state)
	}
	return theme.DimmedStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
