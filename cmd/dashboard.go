package cmd

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/portal"
)

// dashboard is everything the dashboard view shows. Analysis is nil when no
// resume has been uploaded.
type dashboard struct {
	Feed         portal.Feed          `json:"feed"`
	Applications []portal.Application `json:"applications"`
	Analysis     portal.Record        `json:"analysis"`
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show your feed, applications and resume score together",
	Long: `Fetch the job feed, your applications and your resume analysis in
parallel. If the session is rejected, the requests share a single recovery.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	d, err := loadDashboard(cmd)
	if err != nil {
		return commandError("dashboard", err)
	}
	if jsonOutput {
		return current.printer.JSON(d)
	}

	p := current.printer
	if id, ok := current.store.Identity(); ok {
		p.Print("%s", p.Bold("Welcome back, "+nameOf(id)))
	}

	p.Header("Resume")
	if d.Analysis == nil {
		p.Print("%s", p.Dim("No resume uploaded. Run 'cpctl resume upload <file>'"))
	} else if analysis, ok := d.Analysis["analysis"].(map[string]any); ok {
		p.KeyValue("Score", formatValue(analysis["overall_score"]))
		p.KeyValue("Strengths", formatValue(analysis["strengths"]))
	}

	p.Header("Applications")
	if len(d.Applications) == 0 {
		p.Print("%s", p.Dim("No applications yet"))
	} else if err := renderApplications(p, d.Applications); err != nil {
		return err
	}

	return renderFeed(d.Feed)
}

func loadDashboard(cmd *cobra.Command) (dashboard, error) {
	var d dashboard
	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		feed, err := current.portal.Feed(ctx)
		d.Feed = feed
		return err
	})
	g.Go(func() error {
		apps, err := current.portal.Applications(ctx)
		d.Applications = apps
		return err
	})
	g.Go(func() error {
		analysis, err := current.portal.ResumeAnalysis(ctx)
		var reqErr *domain.RequestError
		if errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound {
			return nil
		}
		d.Analysis = analysis
		return err
	})

	if err := g.Wait(); err != nil {
		return dashboard{}, err
	}
	return d, nil
}

func nameOf(id domain.Identity) string {
	if id.FullName != "" {
		return id.FullName
	}
	return id.Email
}
