// Package cmd contains all CLI commands for cpctl
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sobandev/careerpilot-ai/internal/apiclient"
	"github.com/sobandev/careerpilot-ai/internal/config"
	"github.com/sobandev/careerpilot-ai/internal/credential"
	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/logger"
	"github.com/sobandev/careerpilot-ai/internal/metrics"
	"github.com/sobandev/careerpilot-ai/internal/output"
	"github.com/sobandev/careerpilot-ai/internal/portal"
	"github.com/sobandev/careerpilot-ai/internal/session"
	"github.com/sobandev/careerpilot-ai/internal/telemetry"
)

var (
	cfgFile    string
	verbose    bool
	apiURL     string
	noPersist  bool
	colorMode  string
	jsonOutput bool
	version    = "dev"

	current *app
)

// app holds the per-process dependencies built before a command runs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	printer  *output.Printer
	store    *credential.Store
	client   *apiclient.Client
	session  *session.Session
	portal   *portal.Client
	registry *prometheus.Registry
	shutdown telemetry.ShutdownFunc
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cpctl",
	Short: "CareerPilot command-line client",
	Long: `cpctl is a command-line client for the CareerPilot job portal.

It keeps your session in a local credential file, attaches it to every
request and recovers or expires it consistently when the server rejects it.

Example usage:
  cpctl login --email you@example.com --password-stdin
  cpctl whoami                 # Verify the session with the server
  cpctl jobs list --q golang   # Search jobs
  cpctl dashboard              # Feed, applications and resume at a glance
  cpctl stub serve --demo      # Run a local stand-in backend`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		closeApp(cmd.Context())
		return nil
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx)
}

// run executes rootCmd with its configured arguments and maps any error to
// a printed message and exit code.
func run(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return output.ExitSuccess
	}

	printer := output.NewPrinter(output.PrinterOptions{ColorMode: output.ColorNever, Err: rootCmd.ErrOrStderr()})
	if current != nil {
		printer = current.printer
		closeApp(ctx)
	}
	cliErr := output.FromError("cpctl", err)
	printer.FormatError(cliErr)
	return cliErr.ExitCode
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .cpctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().BoolVar(&noPersist, "no-persist", false, "keep credentials in memory only")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "color output: auto, always, never")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
}

// initApp loads configuration and wires the store, client and session.
func initApp(cmd *cobra.Command) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &output.CLIError{
			Summary:    "invalid configuration",
			Detail:     err.Error(),
			Suggestion: "Check .cpctl.yaml and CPCTL_* environment variables",
			ExitCode:   output.ExitConfigError,
		}
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if noPersist {
		cfg.Store.Persist = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	mode, err := output.ParseColorMode(colorMode)
	if err != nil {
		return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitUsageError}
	}
	printer := output.NewPrinter(output.PrinterOptions{
		ColorMode:    mode,
		ConfigColors: cfg.Output.Colors,
		Out:          cmd.OutOrStdout(),
		Err:          cmd.ErrOrStderr(),
	})

	log := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "cpctl",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Warn("telemetry disabled", "error", err)
		shutdown = func(context.Context) error { return nil }
	}

	var storage domain.Storage = credential.NewMemoryStorage()
	if cfg.Store.Persist {
		storage = credential.NewFileStorage(cfg.Store.Path)
	}
	store := credential.NewStore(storage, log)

	registry := prometheus.NewRegistry()
	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		UserAgent:   "cpctl/" + version,
		RateLimit:   cfg.API.RateLimit,
		Burst:       cfg.API.Burst,
		RenewalMode: cfg.Auth.Renewal,
		RefreshPath: cfg.Auth.RefreshPath,
	}, store, log, metrics.NewClient(registry))
	if err != nil {
		return &output.CLIError{
			Summary:  "invalid API client configuration",
			Detail:   err.Error(),
			ExitCode: output.ExitConfigError,
		}
	}

	current = &app{
		cfg:      cfg,
		logger:   log,
		printer:  printer,
		store:    store,
		client:   client,
		session:  session.New(client, store, log),
		portal:   portal.New(client),
		registry: registry,
		shutdown: shutdown,
	}

	log.Debug("configuration loaded",
		"api", cfg.API.BaseURL,
		"renewal", cfg.Auth.Renewal,
		"persist", cfg.Store.Persist,
		"store_path", cfg.Store.Path)

	return nil
}

// closeApp flushes telemetry and logs request counters at debug level.
func closeApp(ctx context.Context) {
	a := current
	if a == nil {
		return
	}
	current = nil

	if families, err := a.registry.Gather(); err == nil {
		for _, mf := range families {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			a.logger.Debug("client metric", "name", mf.GetName(), "total", total)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// commandError converts err into a CLIError naming op.
func commandError(op string, err error) error {
	if err == nil {
		return nil
	}
	return output.FromError(op, err)
}
