package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/mailto/internal/api"
	"github.com/nhle/mailto/internal/auth"
	"github.com/nhle/mailto/internal/credential"
	"github.com/nhle/mailto/internal/flight"
	"github.com/nhle/mailto/internal/keys"
	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/probe"
	"github.com/nhle/mailto/internal/store"
	"github.com/nhle/mailto/internal/ui"
	"github.com/nhle/mailto/internal/ui/addressform"
	"github.com/nhle/mailto/internal/ui/command"
	"github.com/nhle/mailto/internal/ui/confirm"
	helpview "github.com/nhle/mailto/internal/ui/help"
	historyview "github.com/nhle/mailto/internal/ui/history"
	"github.com/nhle/mailto/internal/ui/login"
	"github.com/nhle/mailto/internal/ui/mailboxes"
	"github.com/nhle/mailto/internal/ui/servers"
)

// Forwarder is the part of the API client the UI drives.
type Forwarder interface {
	Username() string
	Status(ctx context.Context) (*model.Status, error)
	Apply(ctx context.Context, req mailbox.Request) (*model.Status, error)
	Reset(ctx context.Context) (*model.Status, error)
}

// Prober checks the servers behind IMAP mailboxes.
type Prober interface {
	Probe(ctx context.Context, boxes []model.Mailbox) ([]probe.Result, error)
}

// Options holds the collaborators of the root model.
type Options struct {
	Config  *model.AppConfig
	Vault   *credential.Vault
	History store.Store
	Prober  Prober
	Log     *zap.Logger
	// Connect builds an API client for a signed-in session.
	Connect func(*model.Session) Forwarder
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewMailboxes
	ViewAddress
	ViewConfirm
	ViewHistory
	ViewServers
	ViewHelp
	ViewCommand
)

const resetAction = "reset"

// Model is the root Bubble Tea model. It owns the forwarding state of the
// signed-in user and routes messages between views.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ready        bool

	cfg     *model.AppConfig
	vault   *credential.Vault
	history store.Store
	prober  Prober
	log     *zap.Logger
	connect func(*model.Session) Forwarder

	client  Forwarder
	state   mailbox.State
	tracker *flight.Tracker
	message string
	notice  string // appended to the confirmation of the update in flight

	keys        *keys.KeyMap
	loginView   login.Model
	mailboxes   mailboxes.Model
	addressForm addressform.Model
	confirmView confirm.Model
	historyView historyview.Model
	serversView servers.Model
	helpView    helpview.Model
	commandView command.Model
}

// New creates the root model.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = model.DefaultAppConfig()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	k := keys.DefaultKeyMap()
	instructions := auth.Instructions(cfg.Webathena.Host, auth.RequestFromConfig(cfg.Webathena))

	return Model{
		currentView: ViewLogin,
		cfg:         cfg,
		vault:       opts.Vault,
		history:     opts.History,
		prober:      opts.Prober,
		log:         log.Named("app"),
		connect:     opts.Connect,
		tracker:     flight.New(),
		keys:        k,
		loginView:   login.New(instructions, 80, 24),
		mailboxes:   mailboxes.New(k, 80, 24),
		addressForm: addressform.New(80, 24),
		confirmView: confirm.New(80),
		historyView: historyview.New(k, 80, 24),
		serversView: servers.New(k, 80),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80),
	}
}

// Init loads the saved session, if any.
func (m Model) Init() tea.Cmd {
	return m.loadSession()
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.loginView.SetSize(w, h)
		m.mailboxes.SetSize(w, h)
		m.addressForm.SetSize(w, h)
		m.confirmView.SetSize(w, h)
		m.historyView.SetSize(w, h)
		m.serversView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case sessionLoadedMsg:
		if msg.err != nil {
			return m, m.showLogin("")
		}
		return m, m.signIn(msg.session)

	case loginResultMsg:
		return m.handleLogin(msg)

	case statusMsg:
		return m.handleStatus(msg)

	case snapshotRecordedMsg:
		if msg.err != nil {
			m.log.Warn("recording snapshot failed", zap.Error(msg.err))
		}
		return m, nil

	case historyLoadedMsg:
		m.historyView.SetSnapshots(msg.snapshots, msg.err)
		return m, nil

	case probeResultMsg:
		m.serversView.SetResults(msg.results, msg.err)
		return m, nil

	case loggedOutMsg:
		if msg.err != nil {
			m.log.Warn("clearing session failed", zap.Error(msg.err))
			m.message = "Could not remove the saved session: " + msg.err.Error()
		}
		return m, nil

	case login.SubmittedMsg:
		return m, m.authenticate(msg.Text)

	case login.CancelMsg:
		return m, tea.Quit

	case addressform.AddressSubmittedMsg:
		m.currentView = ViewMailboxes
		return m, m.submitAddress(msg.Address)

	case addressform.AddressCancelMsg:
		m.currentView = ViewMailboxes
		return m, nil

	case confirm.ResultMsg:
		m.currentView = ViewMailboxes
		if msg.Action == resetAction && msg.Confirmed {
			return m, m.reset()
		}
		return m, nil

	case historyview.CloseMsg, servers.CloseMsg:
		m.currentView = ViewMailboxes
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.run(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleKey processes global keys. Forms receive keys unfiltered.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.run("quit"), true
	}

	switch m.currentView {
	case ViewLogin, ViewAddress, ViewConfirm, ViewCommand:
		return nil, false
	}

	m.message = ""

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true
	}

	if m.currentView == ViewHelp {
		if key.Matches(msg, m.keys.Back) {
			m.currentView = m.previousView
			return nil, true
		}
		return nil, true
	}
	if m.currentView != ViewMailboxes {
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.run("quit"), true
	case key.Matches(msg, m.keys.NewAddress):
		return m.run("new"), true
	case key.Matches(msg, m.keys.CycleTarget):
		return m.run("cycle"), true
	case key.Matches(msg, m.keys.Remove):
		return m.run("remove"), true
	case key.Matches(msg, m.keys.Reset):
		return m.run("reset"), true
	case key.Matches(msg, m.keys.Refresh):
		return m.run("refresh"), true
	case key.Matches(msg, m.keys.History):
		return m.run("history"), true
	case key.Matches(msg, m.keys.Probe):
		return m.run("probe"), true
	case key.Matches(msg, m.keys.Logout):
		return m.run("logout"), true
	}
	return nil, false
}

// run executes a named action. Keys and the command palette both end up
// here.
func (m *Model) run(name string) tea.Cmd {
	switch name {
	case "quit", "q":
		m.tracker.Cancel()
		return tea.Quit

	case "refresh":
		return m.fetch()

	case "new":
		if m.blocked() {
			return nil
		}
		m.currentView = ViewAddress
		return m.addressForm.Start(mailbox.TargetLabel(m.state.Target, m.state.Set))

	case "cycle":
		if m.blocked() {
			return nil
		}
		m.state = m.state.Cycle()
		m.notify()
		return nil

	case "remove":
		if m.blocked() || !m.state.Set.Splitting() {
			return nil
		}
		kind, ok := m.mailboxes.SelectedKind()
		if !ok {
			return nil
		}
		return m.apply(m.state.Remove(kind), model.ActionRemove)

	case "reset":
		if m.blocked() {
			return nil
		}
		m.currentView = ViewConfirm
		return m.confirmView.Start(
			resetAction,
			"Restore the default configuration?",
			"Mail will be delivered only to the mailbox MIT assigns by default.",
			"Yes, restore",
		)

	case "history":
		if m.client == nil {
			return nil
		}
		m.currentView = ViewHistory
		return m.loadHistory()

	case "probe":
		if !m.state.Loaded || m.prober == nil {
			return nil
		}
		m.currentView = ViewServers
		m.serversView.SetRunning()
		return m.runProbe()

	case "logout":
		return m.logout()

	default:
		m.message = fmt.Sprintf("Unknown command: %s", name)
		return nil
	}
}

// blocked reports whether edits are currently disallowed: nothing loaded
// yet or a request outstanding.
func (m Model) blocked() bool {
	return m.client == nil || !m.state.Loaded || m.tracker.Busy()
}

// notify pushes the current set and target to the mailbox view.
func (m *Model) notify() {
	m.state.Notify(func(set mailbox.Set, target mailbox.ReplaceTarget) {
		m.mailboxes.Render(set, target)
		m.log.Debug("state changed",
			zap.Strings("set", set.Addresses()),
			zap.Stringer("target", target),
		)
	})
}

func (m Model) handleStatus(msg statusMsg) (tea.Model, tea.Cmd) {
	if !m.tracker.Current(msg.ticket) {
		m.log.Debug("dropping stale response",
			zap.String("ticket", msg.ticket.ID),
			zap.String("action", msg.ticket.Action),
		)
		return m, nil
	}
	m.tracker.Finish(msg.ticket)
	m.mailboxes.StopBusy()
	notice := m.notice
	m.notice = ""

	if msg.err != nil {
		m.log.Warn("request failed", zap.String("action", msg.ticket.Action), zap.Error(msg.err))
		if api.IsUnauthorized(msg.err) {
			m.signOut()
			return m, m.showLogin(api.UserMessage(msg.err))
		}
		m.mailboxes.SetAlert("danger", api.UserMessage(msg.err))
		return m, nil
	}

	m.state = m.state.Install(*msg.status)
	m.mailboxes.SetDetails(m.state)
	m.notify()

	switch {
	case msg.ticket.Action == string(model.ActionFetch):
		m.mailboxes.ClearAlert()
	case notice != "":
		m.mailboxes.SetAlert("warning", "Saved. "+notice)
	default:
		m.mailboxes.SetAlert("success", "Saved.")
	}

	return m, m.recordSnapshot(model.Action(msg.ticket.Action), *msg.status)
}

func (m Model) handleLogin(msg loginResultMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
	case errors.Is(msg.err, auth.ErrClosed):
		return m, m.showLogin("")
	case errors.Is(msg.err, auth.ErrDenied):
		return m, m.showLogin(auth.DeniedMessage)
	default:
		m.log.Warn("sign-in failed", zap.Error(msg.err))
		return m, m.showLogin("Sign-in failed: " + msg.err.Error())
	}

	if m.vault != nil {
		if err := m.vault.SaveSession(msg.session); err != nil {
			m.log.Warn("saving session failed", zap.Error(err))
		}
	}
	return m, m.signIn(msg.session)
}

// signIn switches to the mailbox view for session and fetches its status.
func (m *Model) signIn(session *model.Session) tea.Cmd {
	m.client = m.connect(session)
	m.state = mailbox.NewState(session.Username())
	m.mailboxes.SetDetails(m.state)
	m.mailboxes.ClearAlert()
	m.notify()
	m.currentView = ViewMailboxes
	m.log.Info("signed in", zap.String("user", session.Username()))
	return m.fetch()
}

// signOut forgets the client and any outstanding request.
func (m *Model) signOut() {
	m.tracker.Cancel()
	m.mailboxes.StopBusy()
	m.client = nil
	m.state = mailbox.State{}
	m.mailboxes.SetDetails(m.state)
}

func (m *Model) showLogin(errMsg string) tea.Cmd {
	m.currentView = ViewLogin
	m.loginView.SetError(errMsg)
	return m.loginView.Start()
}

func (m *Model) logout() tea.Cmd {
	m.signOut()
	return tea.Batch(m.clearSession(), m.showLogin(""))
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewMailboxes:
		m.mailboxes, cmd = m.mailboxes.Update(msg)
	case ViewAddress:
		m.addressForm, cmd = m.addressForm.Update(msg)
	case ViewConfirm:
		m.confirmView, cmd = m.confirmView.Update(msg)
	case ViewHistory:
		m.historyView, cmd = m.historyView.Update(msg)
	case ViewServers:
		m.serversView, cmd = m.serversView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	// The spinner keeps ticking while another view is in front.
	if _, tick := msg.(spinner.TickMsg); tick && m.currentView != ViewMailboxes {
		var spin tea.Cmd
		m.mailboxes, spin = m.mailboxes.Update(msg)
		cmd = tea.Batch(cmd, spin)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	right := "signed out"
	if m.client != nil {
		right = m.client.Username()
		if pending := m.tracker.Pending(); pending != "" {
			right = pending + "… " + right
		}
	}

	header := m.layout.RenderHeader("mailto", right)
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.message)
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewMailboxes:
		return m.mailboxes.View()
	case ViewAddress:
		return m.addressForm.View()
	case ViewConfirm:
		return m.confirmView.View()
	case ViewHistory:
		return m.historyView.View()
	case ViewServers:
		return m.serversView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "enter submit | esc quit"
	case ViewAddress:
		return "enter save | esc cancel"
	case ViewConfirm:
		return "←/→ choose | enter confirm | esc cancel"
	case ViewHistory:
		return "j/k move | esc back"
	case ViewServers:
		return "esc back"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	}

	if m.tracker.Busy() {
		return "working… | r refresh | q quit"
	}
	hints := "n new | tab instead/in addition"
	if m.state.Set.Splitting() {
		hints += " | d stop selected"
	}
	return hints + " | R reset | r refresh | h history | ? help | q quit"
}
