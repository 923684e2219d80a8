package main

import (
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/campusctl/internal/api"
	"github.com/alexjbarnes/campusctl/internal/campus"
	"github.com/alexjbarnes/campusctl/internal/config"
	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/alexjbarnes/campusctl/internal/logging"
	"github.com/alexjbarnes/campusctl/internal/session"
	"github.com/alexjbarnes/campusctl/internal/state"
	"github.com/spf13/cobra"
)

// app carries what a command needs once configuration is loaded. It is
// opened at the start of each command and closed when it returns, so
// the state database lock is never held between commands.
type app struct {
	output   string
	logLevel string

	cfg     *config.Config
	logger  *slog.Logger
	state   *state.State
	session *session.Session
	svc     *campus.Service
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "campusctl",
		Short:         "Manage students and attendance from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return validateOutput(a.output)
		},
	}

	root.PersistentFlags().StringVarP(&a.output, "output", "o", formatTable, "output format: table, json or yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newStudentsCommand(a),
		newAttendanceCommand(a),
		newScanCommand(a),
		newDashboardCommand(a),
		newCallCommand(a),
		newEndpointsCommand(a),
	)

	return root
}

// withService wraps a command body so it runs with an open app.
func (a *app) withService(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd); err != nil {
			return err
		}
		defer a.close()

		return fn(cmd, args)
	}
}

// withLogin is withService for commands that need a stored session.
func (a *app) withLogin(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return a.withService(func(cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(); err != nil {
			return err
		}

		return fn(cmd, args)
	})
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}

	logger := logging.NewLogger(cfg.Environment, level)

	st, err := state.LoadAt(cfg.StatePath, state.Options{Passphrase: cfg.StatePassphrase})
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}

	sess, err := session.New(st, logger)
	if err != nil {
		st.Close()
		return err
	}

	errOut := cmd.ErrOrStderr()

	client, err := api.NewClient(api.Options{
		BaseURL:        cfg.APIURL,
		Session:        sess,
		RefreshPath:    cfg.RefreshPath,
		RefreshTimeout: cfg.RefreshTimeout,
		Timeout:        cfg.HTTPTimeout,
		Logger:         logger,
		Logouter: api.LogoutFunc(func() {
			logger.Warn("session ended after failed renewal")
			fmt.Fprintln(errOut, "Session expired. Run 'campusctl login' to sign in again.")
		}),
	})
	if err != nil {
		st.Close()
		return fmt.Errorf("creating API client: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.state = st
	a.session = sess
	a.svc = campus.New(client, logger)

	return nil
}

func (a *app) close() {
	if a.state == nil {
		return
	}

	if err := a.state.Close(); err != nil {
		a.logger.Warn("closing state", slog.String("error", err.Error()))
	}

	a.state = nil
}

// requireLogin fails early when no credential pair is stored.
func (a *app) requireLogin() error {
	if !a.session.Authenticated() {
		return fmt.Errorf("%w: run 'campusctl login' first", apperrors.ErrNotAuthenticated)
	}

	return nil
}
