package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nhle/mailto/internal/api"
	"github.com/nhle/mailto/internal/app"
	"github.com/nhle/mailto/internal/credential"
	"github.com/nhle/mailto/internal/logger"
	"github.com/nhle/mailto/internal/model"
	"github.com/nhle/mailto/internal/probe"
	"github.com/nhle/mailto/internal/store"
	"github.com/nhle/mailto/internal/theme"
)

func main() {
	rt := &runtime{out: os.Stdout, in: os.Stdin}
	defer rt.close()

	if err := newApp(rt).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mailto:", err)
		rt.close()
		code := 1
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			code = exit.ExitCode()
		}
		os.Exit(code)
	}
}

// runtime carries what every command needs. Fields left nil are built in
// the Before hook from the loaded configuration.
type runtime struct {
	cfg     *model.AppConfig
	log     *zap.Logger
	vault   *credential.Vault
	history *store.SQLiteStore
	out     io.Writer
	in      io.Reader
}

func newApp(rt *runtime) *cli.App {
	return &cli.App{
		Name:      "mailto",
		Usage:     "choose where your MIT mail is delivered",
		Writer:    rt.out,
		ErrWriter: rt.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				Value:   model.DefaultConfigPath(),
				EnvVars: []string{"MAILTO_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
		},
		// Exit codes are handled in main so commands stay testable.
		ExitErrHandler: func(*cli.Context, error) {},
		Before:         rt.setup,
		Action:         rt.runTUI,
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "print where mail is delivered",
				Action: rt.show,
			},
			{
				Name:      "set",
				Usage:     "deliver mail to ADDRESS",
				ArgsUsage: "ADDRESS",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "instead",
						Usage: "replace the Nth mailbox listed by show",
					},
					&cli.BoolFlag{
						Name:  "split",
						Usage: "keep the current mailboxes and add ADDRESS",
					},
				},
				Action: rt.set,
			},
			{
				Name:      "remove",
				Usage:     "stop delivering to the mailbox of KIND (exchange, imap or external)",
				ArgsUsage: "KIND",
				Action:    rt.remove,
			},
			{
				Name:  "reset",
				Usage: "restore the default configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
				},
				Action: rt.reset,
			},
			{
				Name:  "login",
				Usage: "store a Webathena session",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "read the Webathena result from `PATH` (- for stdin)",
						Value: "-",
					},
				},
				Action: rt.login,
			},
			{
				Name:   "logout",
				Usage:  "forget the stored session",
				Action: rt.logout,
			},
			{
				Name:  "history",
				Usage: "list recorded snapshots",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "show at most `N` snapshots"},
				},
				Action: rt.listHistory,
			},
			{
				Name:  "config",
				Usage: "print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "save", Usage: "write it to the configuration file"},
				},
				Action: rt.showConfig,
			},
			{
				Name:   "probe",
				Usage:  "check the post office servers of IMAP mailboxes",
				Action: rt.probe,
			},
		},
	}
}

// setup loads configuration and opens the logger and keyring.
func (rt *runtime) setup(c *cli.Context) error {
	if rt.cfg == nil {
		cfg, err := model.LoadConfig(c.String("config"))
		if err != nil {
			return err
		}
		rt.cfg = cfg
	}
	if lvl := c.String("log-level"); lvl != "" {
		rt.cfg.Log.Level = lvl
	}

	if rt.log == nil {
		log, err := logger.New(rt.cfg.Log)
		if err != nil {
			return err
		}
		rt.log = log
	}

	if rt.vault == nil {
		vault, err := credential.Open(filepath.Dir(c.String("config")))
		if err != nil {
			return err
		}
		rt.vault = vault
	}
	return nil
}

// openHistory opens the snapshot database on first use.
func (rt *runtime) openHistory() (*store.SQLiteStore, error) {
	if rt.history != nil {
		return rt.history, nil
	}
	s, err := store.NewSQLiteStore(rt.cfg.History.DBPath)
	if err != nil {
		return nil, err
	}
	rt.history = s
	return s, nil
}

func (rt *runtime) close() {
	if rt.history != nil {
		if err := rt.history.Close(); err != nil && rt.log != nil {
			rt.log.Warn("closing history", zap.Error(err))
		}
		rt.history = nil
	}
	if rt.log != nil {
		_ = rt.log.Sync()
	}
}

// connect builds an API client for session.
func (rt *runtime) connect(session *model.Session) *api.Client {
	timeout := time.Duration(rt.cfg.API.TimeoutSec) * time.Second
	return api.NewClient(rt.cfg.API.BaseURL, session, timeout, rt.log)
}

func (rt *runtime) prober() *probe.Prober {
	return probe.New(rt.cfg.Probe, rt.log)
}

func (rt *runtime) runTUI(c *cli.Context) error {
	history, err := rt.openHistory()
	if err != nil {
		return err
	}

	theme.Apply(rt.cfg.Display.Theme)
	root := app.New(app.Options{
		Config:  rt.cfg,
		Vault:   rt.vault,
		History: history,
		Prober:  rt.prober(),
		Log:     rt.log,
		Connect: func(s *model.Session) app.Forwarder { return rt.connect(s) },
	})

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
