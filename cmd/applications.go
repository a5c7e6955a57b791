package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sobandev/careerpilot-ai/internal/output"
	"github.com/sobandev/careerpilot-ai/internal/portal"
)

var (
	applyInput    portal.ApplicationInput
	employerJobID string
)

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "Apply to jobs and track applications",
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your applications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		apps, err := current.portal.Applications(cmd.Context())
		if err != nil {
			return commandError("list applications", err)
		}
		if jsonOutput {
			return current.printer.JSON(apps)
		}
		if len(apps) == 0 {
			current.printer.Info("No applications yet")
			return nil
		}
		return renderApplications(current.printer, apps)
	},
}

var applicationsApplyCmd = &cobra.Command{
	Use:     "apply <job-id>",
	Short:   "Apply to a job",
	Example: `  cpctl applications apply job-backend-go --cover-letter "I build Go services"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := applyInput
		in.JobID = args[0]
		sub, err := current.portal.Apply(cmd.Context(), in)
		if err != nil {
			return commandError("apply", err)
		}
		current.printer.Success("%s (id %s)", sub.Message, sub.ID)
		return nil
	},
}

var applicationsEmployerCmd = &cobra.Command{
	Use:   "employer",
	Short: "List applications to your company's jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		apps, err := current.portal.EmployerApplications(cmd.Context(), employerJobID)
		if err != nil {
			return commandError("list employer applications", err)
		}
		if jsonOutput {
			return current.printer.JSON(apps)
		}
		if len(apps) == 0 {
			current.printer.Info("No applications yet")
			return nil
		}
		p := current.printer
		t := output.NewTable(p.Out(), "ID", "APPLICANT", "JOB", "STATUS", "MATCH")
		for _, a := range apps {
			applicant, _ := a["profiles"].(map[string]any)
			job, _ := a["jobs"].(map[string]any)
			t.AddRow(
				formatValue(a["id"]),
				formatValue(applicant["email"]),
				formatValue(job["title"]),
				p.StatusBadge(formatValue(a["status"])),
				formatValue(a["match_score"])+"%",
			)
		}
		return t.Render()
	},
}

var applicationsSetStatusCmd = &cobra.Command{
	Use:   "set-status <application-id> <status>",
	Short: "Move an application to applied, viewed, shortlisted, rejected or hired",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := portal.ApplicationStatus(args[1])
		if !status.Valid() {
			return &output.CLIError{
				Summary:    fmt.Sprintf("unknown application status %q", args[1]),
				Suggestion: "Use one of: applied, viewed, shortlisted, rejected, hired",
				ExitCode:   output.ExitUsageError,
			}
		}
		change, err := current.portal.UpdateApplicationStatus(cmd.Context(), args[0], status)
		if err != nil {
			return commandError("update application status", err)
		}
		current.printer.Success("%s: %s", change.Message, current.printer.StatusBadge(string(change.Status)))
		return nil
	},
}

func renderApplications(p *output.Printer, apps []portal.Application) error {
	t := output.NewTable(p.Out(), "ID", "JOB", "COMPANY", "STATUS", "MATCH", "APPLIED")
	for _, a := range apps {
		title, company := a.JobID, "-"
		if a.Job != nil {
			title = a.Job.Title
			if a.Job.Company != nil {
				company = a.Job.Company.Name
			}
		}
		t.AddRow(
			a.ID,
			title,
			company,
			p.StatusBadge(string(a.Status)),
			strconv.FormatFloat(a.MatchScore, 'f', 0, 64)+"%",
			orDash(a.AppliedAt),
		)
	}
	return t.Render()
}

func init() {
	applicationsApplyCmd.Flags().StringVar(&applyInput.CoverLetter, "cover-letter", "", "cover letter text")
	applicationsApplyCmd.Flags().StringVar(&applyInput.ContactEmail, "contact-email", "", "contact email")
	applicationsApplyCmd.Flags().StringVar(&applyInput.ContactPhone, "contact-phone", "", "contact phone")
	applicationsEmployerCmd.Flags().StringVar(&employerJobID, "job", "", "only show applications to this job")

	applicationsCmd.AddCommand(applicationsListCmd, applicationsApplyCmd, applicationsEmployerCmd, applicationsSetStatusCmd)
	rootCmd.AddCommand(applicationsCmd)
}
