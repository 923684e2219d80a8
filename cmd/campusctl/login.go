package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alexjbarnes/campusctl/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	isTerminalFunc   = term.IsTerminal   // mockable
)

func newLoginCommand(a *app) *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token pair",
		Args:  cobra.NoArgs,
		RunE: a.withService(func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())

			if email == "" {
				email = a.cfg.Email
			}

			if email == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Email: ")

				line, err := readLine(in)
				if err != nil {
					return fmt.Errorf("reading email: %w", err)
				}

				email = line
			}

			password, err := a.readPassword(cmd, in, passwordStdin)
			if err != nil {
				return err
			}

			user, err := a.svc.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(user); ok {
				return err
			}

			p.line("Logged in as %s <%s>", user.Name, user.Email)

			return nil
		}),
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (defaults to CAMPUS_EMAIL)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

// readPassword takes the password from stdin when asked, then from
// CAMPUS_PASSWORD, then from a terminal prompt.
func (a *app) readPassword(cmd *cobra.Command, in *bufio.Reader, fromStdin bool) (string, error) {
	if !fromStdin && a.cfg.Password != "" {
		return a.cfg.Password, nil
	}

	fd := int(os.Stdin.Fd())
	if fromStdin || cmd.InOrStdin() != os.Stdin || !isTerminalFunc(fd) {
		line, err := readLine(in)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return line, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := readPasswordFunc(fd)
	fmt.Fprintln(cmd.ErrOrStderr())

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(raw), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: a.withService(func(cmd *cobra.Command, _ []string) error {
			if !a.session.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}

			if err := a.svc.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("logout: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")

			return nil
		}),
	}
}

type whoami struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           string     `json:"role,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	TokensSavedAt  *time.Time `json:"tokensSavedAt,omitempty"`
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: a.withLogin(func(cmd *cobra.Command, _ []string) error {
			user, err := a.svc.UserDetails(cmd.Context())
			if err != nil {
				return err
			}

			out := whoami{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}

			if exp, ok := session.AccessTokenExpiry(a.session.AccessToken()); ok {
				out.TokenExpiresAt = &exp
			}

			if saved := a.state.CredentialsSavedAt(); !saved.IsZero() {
				out.TokensSavedAt = &saved
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(out); ok {
				return err
			}

			rows := [][]string{
				{"Name", out.Name},
				{"Email", out.Email},
				{"Role", out.Role},
			}

			if out.TokenExpiresAt != nil {
				rows = append(rows, []string{"Token expires", out.TokenExpiresAt.Local().Format(time.RFC1123)})
			}

			if out.TokensSavedAt != nil {
				rows = append(rows, []string{"Tokens saved", out.TokensSavedAt.Local().Format(time.RFC1123)})
			}

			return p.table([]string{"FIELD", "VALUE"}, rows)
		}),
	}
}
