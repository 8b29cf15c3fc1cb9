package app

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/mailto/internal/auth"
	"github.com/nhle/mailto/internal/credential"
	"github.com/nhle/mailto/internal/flight"
	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/probe"
)

// sessionLoadedMsg carries the session found in the keyring at startup.
type sessionLoadedMsg struct {
	session *model.Session
	err     error
}

// loginResultMsg carries the outcome of interpreting a pasted result.
type loginResultMsg struct {
	session *model.Session
	err     error
}

// statusMsg is the response to a server request. Only the response to the
// current ticket is applied.
type statusMsg struct {
	ticket flight.Ticket
	status *model.Status
	err    error
}

type snapshotRecordedMsg struct {
	err error
}

type historyLoadedMsg struct {
	snapshots []model.Snapshot
	err       error
}

type probeResultMsg struct {
	results []probe.Result
	err     error
}

type loggedOutMsg struct {
	err error
}

var busyText = map[model.Action]string{
	model.ActionFetch:  "loading",
	model.ActionUpdate: "saving",
	model.ActionRemove: "removing",
	model.ActionReset:  "restoring default",
}

func (m Model) loadSession() tea.Cmd {
	v := m.vault
	return func() tea.Msg {
		if v == nil {
			return sessionLoadedMsg{err: credential.ErrNoSession}
		}
		s, err := v.LoadSession()
		return sessionLoadedMsg{session: s, err: err}
	}
}

func (m Model) clearSession() tea.Cmd {
	v := m.vault
	if v == nil {
		return nil
	}
	return func() tea.Msg {
		return loggedOutMsg{err: v.ClearSession()}
	}
}

// authenticate interprets text pasted into the login form.
func (m Model) authenticate(text string) tea.Cmd {
	req := auth.RequestFromConfig(m.cfg.Webathena)
	return func() tea.Msg {
		s, err := auth.Authenticate(context.Background(), auth.TextExchanger{Text: text}, req)
		return loginResultMsg{session: s, err: err}
	}
}

// send issues a server request under a fresh ticket, superseding any
// request still in flight.
func (m *Model) send(action model.Action, call func(context.Context, Forwarder) (*model.Status, error)) tea.Cmd {
	if m.client == nil {
		return nil
	}
	client := m.client
	m.notice = ""
	tk := m.tracker.Begin(string(action))
	m.log.Info("request started",
		zap.String("action", string(action)),
		zap.String("ticket", tk.ID),
	)

	spin := m.mailboxes.StartBusy(busyText[action])
	return tea.Batch(spin, func() tea.Msg {
		status, err := call(context.Background(), client)
		return statusMsg{ticket: tk, status: status, err: err}
	})
}

func (m *Model) fetch() tea.Cmd {
	return m.send(model.ActionFetch, func(ctx context.Context, c Forwarder) (*model.Status, error) {
		return c.Status(ctx)
	})
}

func (m *Model) apply(req mailbox.Request, action model.Action) tea.Cmd {
	m.log.Debug("applying", zap.Strings("addresses", req))
	return m.send(action, func(ctx context.Context, c Forwarder) (*model.Status, error) {
		return c.Apply(ctx, req)
	})
}

func (m *Model) reset() tea.Cmd {
	return m.send(model.ActionReset, func(ctx context.Context, c Forwarder) (*model.Status, error) {
		return c.Reset(ctx)
	})
}

// submitAddress resolves a new address against the current state. A
// rejected address is reported without contacting the server.
func (m *Model) submitAddress(address string) tea.Cmd {
	if m.blocked() {
		return nil
	}
	req, err := m.state.Resolve(address)
	if err != nil {
		m.log.Info("address rejected", zap.String("address", address), zap.Error(err))
		m.mailboxes.SetAlert("danger", err.Error())
		return nil
	}
	cmd := m.apply(req, model.ActionUpdate)
	if dropped := m.state.Dropped(req); len(dropped) > 0 {
		addrs := make([]string, len(dropped))
		for i, b := range dropped {
			addrs[i] = b.Address
		}
		m.log.Warn("update drops an extra internal mailbox", zap.Strings("dropped", addrs))
		m.notice = "Mail is no longer delivered to " + strings.Join(addrs, ", ") +
			"; only one MIT mailbox can be active."
	}
	return cmd
}

// recordSnapshot stores status in the local history and prunes old entries.
func (m Model) recordSnapshot(action model.Action, status model.Status) tea.Cmd {
	if m.history == nil {
		return nil
	}
	h := m.history
	user := m.state.Username
	keep := m.cfg.History.Keep
	return func() tea.Msg {
		ctx := context.Background()
		_, err := h.RecordSnapshot(ctx, model.Snapshot{
			Username: user,
			Action:   action,
			Status:   status,
		})
		if err == nil && keep > 0 {
			_, err = h.PruneSnapshots(ctx, user, keep)
		}
		return snapshotRecordedMsg{err: err}
	}
}

func (m Model) loadHistory() tea.Cmd {
	if m.history == nil {
		return func() tea.Msg { return historyLoadedMsg{} }
	}
	h := m.history
	user := m.state.Username
	limit := m.cfg.History.Keep
	return func() tea.Msg {
		snaps, err := h.GetSnapshots(context.Background(), user, limit)
		return historyLoadedMsg{snapshots: snaps, err: err}
	}
}

func (m Model) runProbe() tea.Cmd {
	p := m.prober
	boxes := m.state.Status.Boxes
	return func() tea.Msg {
		// Each host is bounded by the prober's own timeout.
		results, err := p.Probe(context.Background(), boxes)
		return probeResultMsg{results: results, err: err}
	}
}
