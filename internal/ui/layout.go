package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailto/internal/theme"
)

// Layout holds the terminal dimensions and splits them into header,
// content and status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with one-line header and status bar.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the active view.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// RenderHeader renders the title on the left and who is signed in on the
// right.
func (l Layout) RenderHeader(title, right string) string {
	return l.bar(theme.HeaderStyle, title, right)
}

// RenderStatusBar renders key hints, or a message in its place when one
// is pending.
func (l Layout) RenderStatusBar(hints, message string) string {
	if message != "" {
		return l.bar(theme.StatusBarStyle.Foreground(theme.ColorYellow), message, "")
	}
	return l.bar(theme.StatusBarStyle, hints, "")
}

// bar lays out left and right aligned text on one full-width line.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	leftRendered := style.Render(left)
	rightRendered := ""
	if right != "" {
		rightRendered = style.Render(right)
	}

	gap := max(l.Width-lipgloss.Width(leftRendered)-lipgloss.Width(rightRendered), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, leftRendered, filler, rightRendered)
}

// RenderWithFrame stacks header, content and status bar, padding the
// content so the status bar stays on the last line.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
