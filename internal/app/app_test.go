package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/mailto/internal/api"
	"github.com/nhle/mailto/internal/credential"
	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/ui/addressform"
	"github.com/nhle/mailto/internal/ui/login"
	"github.com/nhle/mailto/tests/testutil"
)

// fakeForwarder answers every call with the configured status or error.
type fakeForwarder struct {
	mu      sync.Mutex
	user    string
	status  model.Status
	err     error
	fetches int
	applied []mailbox.Request
	resets  int
}

func (f *fakeForwarder) Username() string { return f.user }

func (f *fakeForwarder) answer() (*model.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.status
	return &s, nil
}

func (f *fakeForwarder) Status(context.Context) (*model.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.answer()
}

func (f *fakeForwarder) Apply(_ context.Context, req mailbox.Request) (*model.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, req)
	return f.answer()
}

func (f *fakeForwarder) Reset(context.Context) (*model.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.answer()
}

var (
	exchangeBox = model.Mailbox{Kind: model.KindExchange, Address: "alice@EXCHANGE.MIT.EDU", Enabled: true}
	imapBox     = model.Mailbox{Kind: model.KindIMAP, Address: "alice@PO12.MIT.EDU", Enabled: true}
	gmailBox    = model.Mailbox{Kind: model.KindSMTP, Address: "alice@gmail.com", Enabled: true}
)

func testSession(t *testing.T) *model.Session {
	t.Helper()
	s, err := model.ParseSession([]byte(`{"cname":{"nameType":1,"nameString":["alice"]}}`))
	require.NoError(t, err)
	return s
}

type harness struct {
	fwd   *fakeForwarder
	vault *credential.Vault
	opts  Options
}

func newHarness(t *testing.T, boxes ...model.Mailbox) *harness {
	t.Helper()
	fwd := &fakeForwarder{user: "alice", status: model.Status{ModBy: "alice", ModWith: "mailto", Boxes: boxes}}
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))
	return &harness{
		fwd:   fwd,
		vault: vault,
		opts: Options{
			Vault:   vault,
			History: testutil.NewTestStore(t),
			Log:     zaptest.NewLogger(t),
			Connect: func(*model.Session) Forwarder { return fwd },
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// drain runs cmd and any batched commands, returning the messages.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func statusFrom(t *testing.T, cmd tea.Cmd) statusMsg {
	t.Helper()
	for _, msg := range drain(cmd) {
		if sm, ok := msg.(statusMsg); ok {
			return sm
		}
	}
	t.Fatal("no status message produced")
	return statusMsg{}
}

// signedIn returns a model that has loaded the harness status.
func (h *harness) signedIn(t *testing.T) Model {
	t.Helper()
	m := New(h.opts)
	m, cmd := update(t, m, sessionLoadedMsg{session: testSession(t)})
	require.Equal(t, ViewMailboxes, m.currentView)
	m, _ = update(t, m, statusFrom(t, cmd))
	require.True(t, m.state.Loaded)
	return m
}

func keyPress(s string) tea.KeyMsg {
	if s == "tab" {
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestInitWithoutSessionShowsLogin(t *testing.T) {
	h := newHarness(t)
	m := New(h.opts)

	msg := m.Init()()
	loaded, ok := msg.(sessionLoadedMsg)
	require.True(t, ok)
	assert.True(t, errors.Is(loaded.err, credential.ErrNoSession))

	m, _ = update(t, m, msg)
	assert.Equal(t, ViewLogin, m.currentView)
	assert.Nil(t, m.client)
}

func TestInitWithSavedSessionFetchesStatus(t *testing.T) {
	h := newHarness(t, exchangeBox, gmailBox)
	require.NoError(t, h.vault.SaveSession(testSession(t)))
	m := New(h.opts)

	m, cmd := update(t, m, m.Init()())
	assert.Equal(t, ViewMailboxes, m.currentView)
	assert.True(t, m.tracker.Busy())

	m, _ = update(t, m, statusFrom(t, cmd))
	assert.False(t, m.tracker.Busy())
	assert.Equal(t, []string{exchangeBox.Address, gmailBox.Address}, m.state.Set.Addresses())
	assert.Equal(t, mailbox.Replace(0), m.state.Target)
	assert.Equal(t, 1, h.fwd.fetches)
}

func TestStaleResponseIsIgnored(t *testing.T) {
	h := newHarness(t)
	m := New(h.opts)
	m, _ = update(t, m, sessionLoadedMsg{session: testSession(t)})

	first := m.tracker.Begin(string(model.ActionFetch))
	second := m.tracker.Begin(string(model.ActionFetch))

	m, _ = update(t, m, statusMsg{ticket: first, status: &model.Status{Boxes: []model.Mailbox{gmailBox}}})
	assert.False(t, m.state.Loaded, "superseded response must not install")
	assert.True(t, m.tracker.Busy())

	m, _ = update(t, m, statusMsg{ticket: second, status: &model.Status{Boxes: []model.Mailbox{exchangeBox}}})
	assert.True(t, m.state.Loaded)
	assert.Equal(t, []string{exchangeBox.Address}, m.state.Set.Addresses())
	assert.False(t, m.tracker.Busy())
}

func TestFailedRequestLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, exchangeBox, gmailBox)
	m := h.signedIn(t)

	m, _ = update(t, m, keyPress("tab"))
	before := m.state

	tk := m.tracker.Begin(string(model.ActionUpdate))
	m, _ = update(t, m, statusMsg{
		ticket: tk,
		err:    &api.Error{Op: "update", StatusCode: http.StatusInternalServerError, Message: "moira is down"},
	})

	assert.Equal(t, before.Set.Addresses(), m.state.Set.Addresses())
	assert.Equal(t, before.Target, m.state.Target)
	assert.Contains(t, m.mailboxes.Alert(), "moira is down")
	assert.False(t, m.tracker.Busy())
}

func TestUnauthorizedReturnsToLogin(t *testing.T) {
	h := newHarness(t, exchangeBox)
	m := h.signedIn(t)

	tk := m.tracker.Begin(string(model.ActionFetch))
	m, _ = update(t, m, statusMsg{ticket: tk, err: &api.Error{StatusCode: http.StatusUnauthorized}})

	assert.Equal(t, ViewLogin, m.currentView)
	assert.Nil(t, m.client)
}

func TestCycleKeyAdvancesTarget(t *testing.T) {
	h := newHarness(t, exchangeBox, gmailBox)
	m := h.signedIn(t)
	require.Equal(t, mailbox.Replace(0), m.state.Target)

	m, _ = update(t, m, keyPress("tab"))
	assert.Equal(t, mailbox.Replace(1), m.state.Target)

	m, _ = update(t, m, keyPress("tab"))
	assert.Equal(t, mailbox.Replace(0), m.state.Target)
}

func TestCycleIgnoredWhileBusy(t *testing.T) {
	h := newHarness(t, exchangeBox)
	m := h.signedIn(t)

	m.tracker.Begin(string(model.ActionFetch))
	m, _ = update(t, m, keyPress("tab"))
	assert.Equal(t, mailbox.Replace(0), m.state.Target)
}

func TestRejectedAddressSendsNothing(t *testing.T) {
	h := newHarness(t, exchangeBox, gmailBox)
	m := h.signedIn(t)

	// Replace(0) drops Exchange but the external slot is still taken.
	m, cmd := update(t, m, addressform.AddressSubmittedMsg{Address: "alice@yahoo.com"})

	assert.Nil(t, cmd)
	assert.False(t, m.tracker.Busy())
	assert.Empty(t, h.fwd.applied)
	assert.Contains(t, m.mailboxes.Alert(), "mailing list")
	assert.Equal(t, ViewMailboxes, m.currentView)
}

func TestResetKeywordAsAddressSendsNothing(t *testing.T) {
	h := newHarness(t, exchangeBox)
	m := h.signedIn(t)

	m, cmd := update(t, m, addressform.AddressSubmittedMsg{Address: "reset"})

	assert.Nil(t, cmd)
	assert.False(t, m.tracker.Busy())
	assert.Empty(t, h.fwd.applied)
	assert.Zero(t, h.fwd.resets)
	assert.Contains(t, m.mailboxes.Alert(), "not an email address")
}

func TestUpdateDroppingExtraInternalMailboxWarns(t *testing.T) {
	h := newHarness(t, exchangeBox, imapBox, gmailBox)
	m := h.signedIn(t)

	m, _ = update(t, m, keyPress("tab"))
	m, _ = update(t, m, keyPress("tab"))
	require.Equal(t, mailbox.Replace(2), m.state.Target)

	yahoo := model.Mailbox{Kind: model.KindSMTP, Address: "alice@yahoo.com", Enabled: true}
	h.fwd.status = model.Status{Boxes: []model.Mailbox{exchangeBox, yahoo}}
	m, cmd := update(t, m, addressform.AddressSubmittedMsg{Address: yahoo.Address})
	require.NotNil(t, cmd)

	m, _ = update(t, m, statusFrom(t, cmd))
	require.Len(t, h.fwd.applied, 1)
	assert.Equal(t, mailbox.Request{exchangeBox.Address, yahoo.Address}, h.fwd.applied[0])
	assert.Contains(t, m.mailboxes.Alert(), "no longer delivered to "+imapBox.Address)
	assert.Empty(t, m.notice)
}

func TestAddressInAdditionIsApplied(t *testing.T) {
	h := newHarness(t, exchangeBox)
	m := h.signedIn(t)

	m, _ = update(t, m, keyPress("tab"))
	require.True(t, m.state.Target.IsSplit())

	h.fwd.status = model.Status{Boxes: []model.Mailbox{exchangeBox, gmailBox}}
	m, cmd := update(t, m, addressform.AddressSubmittedMsg{Address: gmailBox.Address})
	require.NotNil(t, cmd)
	assert.Equal(t, string(model.ActionUpdate), m.tracker.Pending())

	m, recordCmd := update(t, m, statusFrom(t, cmd))
	require.Len(t, h.fwd.applied, 1)
	assert.Equal(t, mailbox.Request{exchangeBox.Address, gmailBox.Address}, h.fwd.applied[0])
	assert.Equal(t, []string{exchangeBox.Address, gmailBox.Address}, m.state.Set.Addresses())
	assert.Equal(t, mailbox.Replace(0), m.state.Target, "target resets with every install")
	assert.Equal(t, "Saved.", m.mailboxes.Alert())

	for _, msg := range drain(recordCmd) {
		rec, ok := msg.(snapshotRecordedMsg)
		require.True(t, ok)
		assert.NoError(t, rec.err)
	}
	snaps, err := h.opts.History.GetSnapshots(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.NotEmpty(t, snaps)
	assert.Equal(t, model.ActionUpdate, snaps[0].Action)
}

func TestRemoveOnlyWhenSplitting(t *testing.T) {
	h := newHarness(t, exchangeBox)
	m := h.signedIn(t)

	_, cmd := update(t, m, keyPress("d"))
	assert.Nil(t, cmd, "a single mailbox cannot be removed")

	h2 := newHarness(t, imapBox, gmailBox)
	m = h2.signedIn(t)
	m, _ = update(t, m, keyPress("j"))
	m, cmd = update(t, m, keyPress("d"))
	require.NotNil(t, cmd)
	statusFrom(t, cmd)
	require.Len(t, h2.fwd.applied, 1)
	assert.Equal(t, mailbox.Request{imapBox.Address}, h2.fwd.applied[0])
	assert.Equal(t, string(model.ActionRemove), m.tracker.Pending())
}

func TestLoginDeniedShowsRemediation(t *testing.T) {
	h := newHarness(t)
	m := New(h.opts)

	m, cmd := update(t, m, login.SubmittedMsg{Text: `{"status":"DENIED"}`})
	require.NotNil(t, cmd)
	msg := cmd()
	res, ok := msg.(loginResultMsg)
	require.True(t, ok)

	m, _ = update(t, m, res)
	assert.Equal(t, ViewLogin, m.currentView)
	assert.Nil(t, m.client)
	assert.Contains(t, m.loginView.View(), "mailing lists and groups")
}

func TestLoginSavesSession(t *testing.T) {
	h := newHarness(t, exchangeBox)
	m := New(h.opts)

	_, cmd := update(t, m, login.SubmittedMsg{Text: `{"status":"OK","session":{"cname":{"nameString":["alice"]}}}`})
	res, ok := cmd().(loginResultMsg)
	require.True(t, ok)
	require.NoError(t, res.err)

	m, _ = update(t, m, res)
	assert.Equal(t, ViewMailboxes, m.currentView)

	saved, err := h.vault.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "alice", saved.Username())
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t, exchangeBox)
	require.NoError(t, h.vault.SaveSession(testSession(t)))
	m := h.signedIn(t)

	m, _ = update(t, m, keyPress("L"))
	assert.Equal(t, ViewLogin, m.currentView)
	assert.Nil(t, m.client)

	// The vault is cleared by the returned command; run it directly.
	msg := m.clearSession()()
	out, ok := msg.(loggedOutMsg)
	require.True(t, ok)
	assert.NoError(t, out.err)

	_, err := h.vault.LoadSession()
	assert.True(t, errors.Is(err, credential.ErrNoSession))
}

func TestUnknownCommandReportsMessage(t *testing.T) {
	h := newHarness(t, exchangeBox)
	m := h.signedIn(t)

	cmd := m.run("frobnicate")
	assert.Nil(t, cmd)
	assert.Equal(t, "Unknown command: frobnicate", m.message)
}

func TestHistoryKeyListsRecordedSnapshots(t *testing.T) {
	h := newHarness(t, exchangeBox)
	testutil.Seed(t, h.opts.History,
		testutil.Snapshot("alice", model.ActionUpdate, time.Now().Add(-time.Hour), exchangeBox, gmailBox),
		testutil.Snapshot("bob", model.ActionReset, time.Now()),
	)
	m := h.signedIn(t)

	m, cmd := update(t, m, keyPress("h"))
	require.NotNil(t, cmd)
	assert.Equal(t, ViewHistory, m.currentView)

	var loaded historyLoadedMsg
	for _, msg := range drain(cmd) {
		if hm, ok := msg.(historyLoadedMsg); ok {
			loaded = hm
		}
	}
	require.NoError(t, loaded.err)
	require.Len(t, loaded.snapshots, 1, "only the signed-in user's snapshots")

	m, _ = update(t, m, loaded)
	view := m.historyView.View()
	assert.Contains(t, view, "alice@gmail.com")
	assert.Contains(t, view, "update")
}
