package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nhle/mailto/internal/api"
	"github.com/nhle/mailto/internal/auth"
	"github.com/nhle/mailto/internal/credential"
	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/model"
)

// signedIn returns a client for the stored session.
func (rt *runtime) signedIn() (*api.Client, error) {
	session, err := rt.vault.LoadSession()
	if errors.Is(err, credential.ErrNoSession) {
		return nil, cli.Exit("not signed in; run `mailto login` first", 1)
	}
	if err != nil {
		return nil, err
	}
	return rt.connect(session), nil
}

// load fetches the current status and installs it into a fresh state.
func (rt *runtime) load(ctx context.Context, client *api.Client) (mailbox.State, error) {
	status, err := client.Status(ctx)
	if err != nil {
		return mailbox.State{}, rt.failure(err)
	}
	rt.record(ctx, client.Username(), model.ActionFetch, status)
	return mailbox.NewState(client.Username()).Install(*status), nil
}

// failure turns an API error into an exit error with a readable message.
func (rt *runtime) failure(err error) error {
	rt.log.Warn("request failed", zap.Error(err))
	if api.IsNetworkError(err) {
		return cli.Exit(api.UserMessage(err), 1)
	}
	return err
}

// record stores a snapshot. Failures are logged, never returned.
func (rt *runtime) record(ctx context.Context, user string, action model.Action, status *model.Status) {
	h, err := rt.openHistory()
	if err != nil {
		rt.log.Warn("opening history", zap.Error(err))
		return
	}
	if _, err := h.RecordSnapshot(ctx, model.Snapshot{Username: user, Action: action, Status: *status}); err != nil {
		rt.log.Warn("recording snapshot", zap.Error(err))
		return
	}
	if _, err := h.PruneSnapshots(ctx, user, rt.cfg.History.Keep); err != nil {
		rt.log.Warn("pruning snapshots", zap.Error(err))
	}
}

// mutate sends req and prints the resulting state.
func (rt *runtime) mutate(c *cli.Context, client *api.Client, action model.Action, call func(context.Context) (*model.Status, error)) error {
	status, err := call(c.Context)
	if err != nil {
		return rt.failure(err)
	}
	rt.record(c.Context, client.Username(), action, status)
	printState(c.App.Writer, mailbox.NewState(client.Username()).Install(*status), time.Now())
	return nil
}

func (rt *runtime) show(c *cli.Context) error {
	client, err := rt.signedIn()
	if err != nil {
		return err
	}
	state, err := rt.load(c.Context, client)
	if err != nil {
		return err
	}
	printState(c.App.Writer, state, time.Now())
	return nil
}

func (rt *runtime) set(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mailto set ADDRESS [--instead N | --split]", 2)
	}
	if c.IsSet("instead") && c.Bool("split") {
		return cli.Exit("--instead and --split cannot be combined", 2)
	}

	client, err := rt.signedIn()
	if err != nil {
		return err
	}
	state, err := rt.load(c.Context, client)
	if err != nil {
		return err
	}

	switch {
	case c.Bool("split"):
		state.Target = mailbox.Split()
	case c.IsSet("instead"):
		n := c.Int("instead")
		if n < 1 || n > state.Set.Len() {
			return cli.Exit(fmt.Sprintf("--instead must be between 1 and %d", state.Set.Len()), 2)
		}
		state.Target = mailbox.Replace(n - 1)
	}

	req, err := state.Resolve(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	rt.log.Info("applying", zap.Strings("addresses", req), zap.Stringer("target", state.Target))
	for _, b := range state.Dropped(req) {
		rt.log.Warn("update drops an extra internal mailbox", zap.String("address", b.Address))
		fmt.Fprintf(c.App.Writer, "Mail will no longer be delivered to %s; only one MIT mailbox can be active.\n", b.Address)
	}

	return rt.mutate(c, client, model.ActionUpdate, func(ctx context.Context) (*model.Status, error) {
		return client.Apply(ctx, req)
	})
}

func (rt *runtime) remove(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mailto remove KIND", 2)
	}
	kind, err := model.ParseKind(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	client, err := rt.signedIn()
	if err != nil {
		return err
	}
	state, err := rt.load(c.Context, client)
	if err != nil {
		return err
	}
	if !state.Set.Splitting() {
		return cli.Exit("mail goes to a single mailbox; use `mailto set --instead 1` to change it", 1)
	}
	if !state.Set.Has(kind) {
		return cli.Exit(fmt.Sprintf("no %s mailbox is in use", kind.Label()), 1)
	}

	req := state.Remove(kind)
	return rt.mutate(c, client, model.ActionRemove, func(ctx context.Context) (*model.Status, error) {
		return client.Apply(ctx, req)
	})
}

func (rt *runtime) reset(c *cli.Context) error {
	client, err := rt.signedIn()
	if err != nil {
		return err
	}

	if !c.Bool("yes") {
		confirmed := false
		err := huh.NewConfirm().
			Title("Restore the default configuration?").
			Description("Mail will be delivered only to the mailbox MIT assigns by default.").
			Affirmative("Yes, restore").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
	}

	return rt.mutate(c, client, model.ActionReset, client.Reset)
}

func (rt *runtime) login(c *cli.Context) error {
	req := auth.RequestFromConfig(rt.cfg.Webathena)
	path := c.String("file")
	if path == "-" {
		fmt.Fprintln(c.App.Writer, auth.Instructions(rt.cfg.Webathena.Host, req))
	}

	session, err := auth.Authenticate(c.Context, auth.FileExchanger{Path: path, Stdin: rt.in}, req)
	switch {
	case errors.Is(err, auth.ErrClosed):
		return nil
	case errors.Is(err, auth.ErrDenied):
		return cli.Exit(auth.DeniedMessage, 1)
	case err != nil:
		return cli.Exit("sign-in failed: "+err.Error(), 1)
	}

	if err := rt.vault.SaveSession(session); err != nil {
		return err
	}
	rt.log.Info("signed in", zap.String("user", session.Username()))
	fmt.Fprintf(c.App.Writer, "Signed in as %s.\n", session.Username())
	return nil
}

func (rt *runtime) logout(c *cli.Context) error {
	if err := rt.vault.ClearSession(); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Signed out.")
	return nil
}

func (rt *runtime) listHistory(c *cli.Context) error {
	session, err := rt.vault.LoadSession()
	if err != nil {
		if errors.Is(err, credential.ErrNoSession) {
			return cli.Exit("not signed in; run `mailto login` first", 1)
		}
		return err
	}

	h, err := rt.openHistory()
	if err != nil {
		return err
	}
	snaps, err := h.GetSnapshots(c.Context, session.Username(), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(c.App.Writer, "Nothing recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tACTION\tDELIVERED TO")
	for _, s := range snaps {
		var enabled []string
		for _, b := range s.Status.Boxes {
			if b.Enabled {
				enabled = append(enabled, b.Address)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			s.RecordedAt.Local().Format(time.DateTime), s.Action, strings.Join(enabled, ", "))
	}
	return tw.Flush()
}

func (rt *runtime) probe(c *cli.Context) error {
	client, err := rt.signedIn()
	if err != nil {
		return err
	}
	state, err := rt.load(c.Context, client)
	if err != nil {
		return err
	}

	results, err := rt.prober().Probe(c.Context, state.Status.Boxes)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "You have no IMAP mailboxes.")
		return nil
	}
	for _, r := range results {
		if r.Reachable {
			fmt.Fprintf(c.App.Writer, "%s\treachable (%s)\n", r.Host, r.Elapsed.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(c.App.Writer, "%s\tunreachable: %v\n", r.Host, r.Err)
	}
	return nil
}

func (rt *runtime) showConfig(c *cli.Context) error {
	w := c.App.Writer
	cfg := rt.cfg
	fmt.Fprintf(w, "api.base_url        %s\n", cfg.API.BaseURL)
	fmt.Fprintf(w, "api.timeout_sec     %d\n", cfg.API.TimeoutSec)
	fmt.Fprintf(w, "webathena.host      %s\n", cfg.Webathena.Host)
	fmt.Fprintf(w, "webathena.principal %s@%s\n", strings.Join(cfg.Webathena.Principal, "/"), cfg.Webathena.Realm)
	fmt.Fprintf(w, "display.theme       %s\n", cfg.Display.Theme)
	fmt.Fprintf(w, "history.db_path     %s\n", cfg.History.DBPath)
	fmt.Fprintf(w, "history.keep        %d\n", cfg.History.Keep)
	fmt.Fprintf(w, "probe.port          %d\n", cfg.Probe.Port)
	fmt.Fprintf(w, "probe.timeout_sec   %d\n", cfg.Probe.TimeoutSec)
	fmt.Fprintf(w, "log.level           %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "log.path            %s\n", cfg.Log.Path)

	if !c.Bool("save") {
		return nil
	}
	path := c.String("config")
	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved to %s.\n", path)
	return nil
}

// printState writes the set, target and metadata in the order show uses.
func printState(w io.Writer, s mailbox.State, now time.Time) {
	fmt.Fprintf(w, "Mail to %s is delivered to:\n", s.Username)
	if s.Set.Len() == 0 {
		fmt.Fprintln(w, "  (nowhere)")
	}
	for i, b := range s.Set.Boxes() {
		fmt.Fprintf(w, "  %d. %-9s %s\n", i+1, b.Kind.Label(), b.Address)
	}
	for _, b := range s.Inactive() {
		fmt.Fprintf(w, "     inactive  %s\n", b.Address)
	}
	if when, ok := s.Status.Modified(); ok {
		fmt.Fprintf(w, "Last modified %s by %s with %s\n",
			humanize.RelTime(when, now, "ago", "from now"), s.Status.ModBy, s.Status.ModWith)
	}
}
