package addressform

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/theme"
)

// AddressSubmittedMsg carries the address the user entered.
type AddressSubmittedMsg struct {
	Address string
}

// AddressCancelMsg is dispatched when the user leaves the form.
type AddressCancelMsg struct{}

// formBindings keeps the huh value pointer stable across model copies.
type formBindings struct {
	address string
}

// Model is the new-address form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	target string
	width  int
	height int
}

// New creates a new address form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start resets the form. targetLabel describes what the address will do,
// e.g. "Instead of Exchange".
func (m *Model) Start(targetLabel string) tea.Cmd {
	m.fb.address = ""
	m.target = targetLabel
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
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
		address := strings.TrimSpace(m.fb.address)
		m.form = nil
		return m, func() tea.Msg { return AddressSubmittedMsg{Address: address} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return AddressCancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := theme.TitleStyle.Render("Deliver mail to a new address")
	target := "Mode: " + theme.TargetStyle.Render(m.target)

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, target, "", m.form.View()))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fb := m.fb
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Address").
				Placeholder("user@example.com").
				Value(&fb.address).
				DescriptionFunc(func() string {
					return Describe(fb.address)
				}, &fb.address).
				Validate(validateAddress),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// Describe explains how an address will be treated as the user types it.
func Describe(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return "An MIT Exchange or post office mailbox, or any external address."
	}
	kind := mailbox.Classify(address)
	if kind.IsInternal() {
		return fmt.Sprintf("MIT %s mailbox", kind.Label())
	}
	return "Forward to an external address"
}

func validateAddress(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("address is required")
	}
	return nil
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

func (m Model) formHeight() int {
	h := m.height - 6
	if h < 6 {
		h = 6
	}
	return h
}
