package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"droneops-console/internal/credentials"
	"droneops-console/internal/fleet"
	"droneops-console/internal/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if email == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
				var err error
				if email, err = readLine(in); err != nil {
					return err
				}
			}
			password, err := readPassword(cmd, in)
			if err != nil {
				return err
			}
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			u, err := sess.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted when empty)")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var r fleet.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, bufio.NewReader(cmd.InOrStdin()))
			if err != nil {
				return err
			}
			r.Password = password
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			u, err := sess.Register(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s <%s>\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&r.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&r.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&r.Organization, "organization", "", "Organization")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			if err := sess.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

type whoami struct {
	User      fleet.User `yaml:"user"`
	ExpiresAt string     `yaml:"expires_at"`
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(session.Deps{})
			if err != nil {
				return err
			}
			defer sess.Close()
			u, err := sess.Profile(cmd.Context())
			if err != nil {
				return err
			}
			out := whoami{User: u, ExpiresAt: "-"}
			if creds, err := a.credentials(); err == nil {
				if rec, err := creds.Load(); err == nil {
					if exp, ok := credentials.Expiry(rec.Token); ok {
						out.ExpiresAt = formatTime(exp)
					}
				}
			}
			return a.render(cmd.OutOrStdout(), out, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Name:\t%s\n", u.Name)
				fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
				fmt.Fprintf(tw, "Role:\t%s\n", orDash(u.Role))
				fmt.Fprintf(tw, "Organization:\t%s\n", orDash(u.Organization))
				fmt.Fprintf(tw, "Token expires:\t%s\n", out.ExpiresAt)
			})
		},
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(cmd *cobra.Command, r *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(r)
}
