package cmd

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/stubserver"
)

const (
	demoEmail    = "demo@careerpilot.local"
	demoPassword = "demo-password"
)

var (
	stubAddr      string
	stubDemo      bool
	stubAccessTTL time.Duration
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local stand-in for the CareerPilot backend",
}

var stubServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stub API until interrupted",
	Long: `Serve an in-memory CareerPilot API with a seeded job catalogue.

Point the client at it with --api-url or api.base_url. Prometheus metrics are
exposed on /metrics.`,
	Example: `  cpctl stub serve --addr :8000 --demo`,
	Args:    cobra.NoArgs,
	RunE:    runStubServe,
}

func init() {
	stubServeCmd.Flags().StringVar(&stubAddr, "addr", "", "listen address (overrides stub.addr)")
	stubServeCmd.Flags().BoolVar(&stubDemo, "demo", false, "create a demo jobseeker account")
	stubServeCmd.Flags().DurationVar(&stubAccessTTL, "access-ttl", time.Hour, "access token lifetime")

	stubCmd.AddCommand(stubServeCmd)
	rootCmd.AddCommand(stubCmd)
}

func runStubServe(cmd *cobra.Command, args []string) error {
	cfg := current.cfg.Stub
	if stubAddr != "" {
		cfg.Addr = stubAddr
	}

	srv, err := stubserver.New(stubserver.Config{
		Secret:        cfg.Secret,
		AccessTTL:     stubAccessTTL,
		SecureCookies: cfg.SecureCookies,
		Registry:      prometheus.NewRegistry(),
		Logger:        current.logger,
	})
	if err != nil {
		return commandError("stub", err)
	}

	p := current.printer
	if stubDemo {
		if _, err := srv.AddUser(domain.Registration{
			Email:    demoEmail,
			Password: demoPassword,
			FullName: "Demo Jobseeker",
			Role:     domain.RoleJobseeker,
		}); err != nil {
			return commandError("stub", err)
		}
		p.Info("Demo account: %s / %s", demoEmail, demoPassword)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr)
	}()
	p.Success("Stub API listening on %s", cfg.Addr)

	select {
	case err := <-errCh:
		return commandError("stub", err)
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return commandError("stub shutdown", err)
	}
	p.Info("Stub API stopped")
	return nil
}
