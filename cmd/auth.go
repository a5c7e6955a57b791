package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/output"
	"github.com/sobandev/careerpilot-ai/internal/session"
)

var (
	loginEmail         string
	loginPassword      string
	loginPasswordStdin bool
	registerName       string
	registerRole       string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session locally",
	Long: `Sign in with email and password.

The access token and identity are written to the credential file so later
commands reuse the session until it expires or you log out.`,
	Example: `  cpctl login --email ada@example.com --password-stdin < password.txt`,
	Args:    cobra.NoArgs,
	RunE:    runLogin,
}

var registerCmd = &cobra.Command{
	Use:     "register",
	Short:   "Create a CareerPilot account",
	Long:    `Create an account and sign in with it.`,
	Example: `  cpctl register --email ada@example.com --name "Ada Lovelace" --role employer --password-stdin`,
	Args:    cobra.NoArgs,
	RunE:    runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session locally and on the server",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Verify the stored session with the server",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session state and credential storage",
	Long: `Show the session state after verifying it with the server, along with
token expiry, the API endpoint and where credentials are kept.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&loginEmail, "email", "", "account email (required)")
		c.Flags().StringVar(&loginPassword, "password", "", "account password")
		c.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")
		_ = c.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVar(&registerName, "name", "", "full name")
	registerCmd.Flags().StringVar(&registerRole, "role", string(domain.RoleJobseeker), "account role: jobseeker, employer")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd, statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	id, err := current.session.Login(cmd.Context(), loginEmail, password)
	if err != nil {
		return commandError("login", err)
	}

	p := current.printer
	p.Success("Logged in as %s (%s)", id.Email, id.Role)
	if current.store.Token() == "" {
		p.Warning("server issued a cookie-only session; it will not survive this process")
	}
	if !current.store.Persistent() {
		p.Warning("credentials are kept in memory only")
	}
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	role := domain.Role(registerRole)
	if !role.Valid() {
		return &output.CLIError{
			Summary:  fmt.Sprintf("register: unknown role %q", registerRole),
			ExitCode: output.ExitUsageError,
		}
	}

	id, err := current.session.Register(cmd.Context(), domain.Registration{
		Email:    loginEmail,
		Password: password,
		FullName: registerName,
		Role:     role,
	})
	if err != nil {
		return commandError("register", err)
	}

	current.printer.Success("Registered and logged in as %s (%s)", id.Email, id.Role)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	current.session.Logout(cmd.Context())
	current.printer.Success("Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	if err := current.session.Bootstrap(cmd.Context()); err != nil {
		return commandError("whoami", err)
	}

	snap := current.session.Current()
	if snap.State != session.StateAuthenticated {
		return commandError("whoami", domain.ErrNotAuthenticated)
	}

	if jsonOutput {
		return current.printer.JSON(snap.Identity)
	}
	printIdentity(current.printer, snap.Identity)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	p := current.printer
	if err := current.session.Bootstrap(cmd.Context()); err != nil {
		p.Warning("could not verify session: %v", err)
	}
	snap := current.session.Current()

	if jsonOutput {
		status := map[string]any{
			"state":      snap.State.String(),
			"api":        current.client.BaseURL(),
			"renewal":    current.cfg.Auth.Renewal,
			"persistent": current.store.Persistent(),
			"store_path": current.cfg.Store.Path,
		}
		if snap.HasIdentity {
			status["identity"] = snap.Identity
		}
		if exp, ok := tokenExpiry(current.store.Token()); ok {
			status["token_expires_at"] = exp.UTC().Format(time.RFC3339)
		}
		return p.JSON(status)
	}

	p.Header("Session")
	p.KeyValue("State", p.StatusBadge(snap.State.String()))
	if snap.HasIdentity {
		p.KeyValue("User", fmt.Sprintf("%s (%s)", snap.Identity.Email, snap.Identity.Role))
	}
	switch exp, ok := tokenExpiry(current.store.Token()); {
	case current.store.Token() == "":
		p.KeyValue("Token", p.Dim("none"))
	case ok:
		p.KeyValue("Token expires", fmt.Sprintf("%s (%s)", exp.Local().Format(time.RFC1123), untilString(time.Until(exp))))
	default:
		p.KeyValue("Token", "opaque")
	}

	p.Header("Client")
	p.KeyValue("API", current.client.BaseURL())
	p.KeyValue("Renewal", current.cfg.Auth.Renewal)
	if current.store.Persistent() {
		p.KeyValue("Credentials", current.cfg.Store.Path)
	} else {
		p.KeyValue("Credentials", p.Dim("memory only"))
	}
	return nil
}

func readPassword(in io.Reader) (string, error) {
	if loginPasswordStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		loginPassword = strings.TrimRight(line, "\r\n")
	}
	if loginPassword == "" {
		return "", &output.CLIError{
			Summary:    "password is required",
			Suggestion: "Pass --password or --password-stdin",
			ExitCode:   output.ExitUsageError,
		}
	}
	return loginPassword, nil
}

// tokenExpiry reads the exp claim without verifying the signature. The
// client never holds the signing key.
func tokenExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func untilString(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	return "in " + d.Round(time.Second).String()
}

func printIdentity(p *output.Printer, id domain.Identity) {
	p.KeyValue("ID", id.ID)
	p.KeyValue("Email", id.Email)
	if id.FullName != "" {
		p.KeyValue("Name", id.FullName)
	}
	p.KeyValue("Role", string(id.Role))
	if id.Location != "" {
		p.KeyValue("Location", id.Location)
	}
	if id.Phone != "" {
		p.KeyValue("Phone", id.Phone)
	}
}
