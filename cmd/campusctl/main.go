// Package main provides campusctl, a command-line client for the campusauth
// API. The session is kept in the user config directory so consecutive
// invocations share it, and expired access tokens are renewed transparently.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultServer = "http://localhost:8080"

func main() {
	if err := rootCmd().Execute(); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "Error: session ended, run `campusctl login`")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

type globals struct {
	server      string
	sessionFile string
	timeout     time.Duration
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "campusctl",
		Short:         "Command-line client for the campusauth API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	server := os.Getenv("CAMPUSCTL_SERVER")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&g.server, "server", server, "API base URL (env CAMPUSCTL_SERVER)")
	cmd.PersistentFlags().StringVar(&g.sessionFile, "session-file", "", "Session file (default: user config dir)")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 15*time.Second, "Per-request timeout")

	cmd.AddCommand(
		loginCmd(g),
		registerCmd(g),
		meCmd(g),
		logoutCmd(g),
		usersCmd(g),
		getCmd(g),
		statusCmd(g),
	)
	return cmd
}

func (g *globals) manager() (*client.Manager, error) {
	var store *client.FileStore
	if g.sessionFile != "" {
		store = client.NewFileStore(g.sessionFile)
	} else {
		var err error
		if store, err = client.DefaultFileStore(); err != nil {
			return nil, err
		}
	}
	return client.New(client.Config{BaseURL: g.server, Timeout: g.timeout}, store)
}

func loginCmd(g *globals) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := g.manager()
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			id, err := m.Login(cmd.Context(), email, password)
			if err != nil {
				if errors.Is(err, client.ErrInvalidCredentials) {
					return errors.New("invalid email or password")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", id.Email, id.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("CAMPUSCTL_PASSWORD"), "Password (env CAMPUSCTL_PASSWORD, prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func registerCmd(g *globals) *cobra.Command {
	var in client.RegisterInput
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account (elevated roles need an admin session)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := g.manager()
			if err != nil {
				return err
			}
			if in.Password == "" {
				if in.Password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			in.Role = campusauth.Role(role)
			if err := m.Register(cmd.Context(), in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", in.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password (prompted when empty)")
	cmd.Flags().StringVar(&in.DisplayName, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "", "Role (admin, faculty, student)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func meCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := g.manager()
			if err != nil {
				return err
			}
			id, err := m.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), id)
		},
	}
}

func logoutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on the server and forget it locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := g.manager()
			if err != nil {
				return err
			}
			if err := m.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func usersCmd(g *globals) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts (admin only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := g.manager()
			if err != nil {
				return err
			}
			if known := m.Identity(); known != nil && !m.CanAccess(campusauth.RoleAdmin) {
				return fmt.Errorf("listing users needs the admin role, logged in as %s", known.Role)
			}
			users, err := m.ListUsers(cmd.Context(), campusauth.Role(role))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Only list this role")
	return cmd
}

func getCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Send an authenticated GET and print the response data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := g.manager()
			if err != nil {
				return err
			}
			resp, err := m.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var data json.RawMessage
			if err := resp.Decode(&data); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the locally stored session without contacting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := g.manager()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !m.Authenticated() {
				fmt.Fprintln(out, "not logged in")
				return nil
			}
			if id := m.Identity(); id != nil {
				fmt.Fprintf(out, "logged in as %s (%s) at %s\n", id.Email, id.Role, g.server)
				return nil
			}
			fmt.Fprintf(out, "session stored for %s, identity not fetched yet\n", g.server)
			return nil
		},
	}
}

// readPassword reads without echo from a terminal, or one line from piped
// input.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")

	var password string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

