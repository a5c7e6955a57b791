package output

import (
	"errors"
	"fmt"

	"github.com/fatih/color"

	"github.com/sobandev/careerpilot-ai/internal/domain"
)

// Exit code constants
const (
	ExitSuccess        = 0
	ExitGeneral        = 1
	ExitUsageError     = 2
	ExitSessionExpired = 3
	ExitConfigError    = 4
	ExitUnreachable    = 5
)

// CLIError is a structured error with user-facing context
type CLIError struct {
	Summary    string
	Detail     string
	Suggestion string
	ExitCode   int
}

// Error implements the error interface, returning the summary
func (e *CLIError) Error() string {
	return e.Summary
}

// FromError maps an error to a CLIError. op names the action that failed.
func FromError(op string, err error) *CLIError {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var reqErr *domain.RequestError
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return &CLIError{
			Summary:    op + ": session expired",
			Suggestion: "Run 'cpctl login' to sign in again",
			ExitCode:   ExitSessionExpired,
		}
	case errors.Is(err, domain.ErrNotAuthenticated):
		return &CLIError{
			Summary:    op + ": not logged in",
			Suggestion: "Run 'cpctl login' first",
			ExitCode:   ExitSessionExpired,
		}
	case errors.As(err, &reqErr):
		return &CLIError{
			Summary:  fmt.Sprintf("%s: %s", op, reqErr.Detail),
			Detail:   fmt.Sprintf("server responded with status %d", reqErr.Status),
			ExitCode: ExitGeneral,
		}
	case errors.Is(err, domain.ErrTransport):
		return &CLIError{
			Summary:    op + ": API unreachable",
			Detail:     err.Error(),
			Suggestion: "Check api.base_url or your network connection",
			ExitCode:   ExitUnreachable,
		}
	default:
		return &CLIError{
			Summary:  op + " failed",
			Detail:   err.Error(),
			ExitCode: ExitGeneral,
		}
	}
}

// FormatError prints a structured error message to stderr
func (p *Printer) FormatError(e *CLIError) {
	if p.useColors {
		color.New(color.FgRed, color.Bold).Fprintf(p.err, "Error: %s\n", e.Summary)
		if e.Detail != "" {
			fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
		}
		if e.Suggestion != "" {
			color.New(color.FgCyan).Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
		}
	} else {
		fmt.Fprintf(p.err, "[ERROR] %s\n", e.Summary)
		if e.Detail != "" {
			fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
		}
		if e.Suggestion != "" {
			fmt.Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
		}
	}
}
