package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sobandev/careerpilot-ai/internal/portal"
)

var (
	jobsQuery portal.JobQuery
	jobDraft  portal.JobDraft
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Browse, score and post jobs",
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List open jobs",
	Example: `  cpctl jobs list --q golang --location Remote --limit 10`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := current.portal.ListJobs(cmd.Context(), jobsQuery)
		if err != nil {
			return commandError("list jobs", err)
		}
		if jsonOutput {
			return current.printer.JSON(list)
		}
		if len(list.Jobs) == 0 {
			current.printer.Info("No jobs match the filters")
			return nil
		}
		return renderJobs(current.printer, list.Jobs)
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := current.portal.GetJob(cmd.Context(), args[0])
		if err != nil {
			return commandError("get job", err)
		}
		return printRecord(current.printer, job)
	},
}

var jobsScoreCmd = &cobra.Command{
	Use:   "score <job-id>",
	Short: "Score your resume against a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := current.portal.JobScore(cmd.Context(), args[0])
		if err != nil {
			return commandError("score job", err)
		}
		return printRecord(current.printer, score)
	},
}

var jobsFeedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show your personalised job feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := current.portal.Feed(cmd.Context())
		if err != nil {
			return commandError("job feed", err)
		}
		if jsonOutput {
			return current.printer.JSON(feed)
		}
		return renderFeed(feed)
	},
}

var jobsCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Post a job for your company",
	Example: `  cpctl jobs create --title "Go Engineer" --skills go,postgresql --location Remote`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := current.portal.CreateJob(cmd.Context(), jobDraft)
		if err != nil {
			return commandError("create job", err)
		}
		if jsonOutput {
			return current.printer.JSON(job)
		}
		current.printer.Success("Posted %s (id %s)", job.Title, job.ID)
		return nil
	},
}

func renderFeed(feed portal.Feed) error {
	p := current.printer
	sections := []struct {
		title string
		jobs  []portal.Job
	}{
		{"Highly relevant", feed.HighlyRelevant},
		{"Based on your skills", feed.BasedOnSkills},
		{"Trending", feed.Trending},
	}
	for _, s := range sections {
		if len(s.jobs) == 0 {
			continue
		}
		p.Header(s.title)
		if err := renderJobs(p, s.jobs); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	f := jobsListCmd.Flags()
	f.StringVar(&jobsQuery.Q, "q", "", "search text")
	f.StringVar(&jobsQuery.Industry, "industry", "", "filter by industry")
	f.StringVar(&jobsQuery.Location, "location", "", "filter by location")
	f.StringVar(&jobsQuery.JobType, "type", "", "filter by job type")
	f.IntVar(&jobsQuery.Limit, "limit", 20, "page size (1-100)")
	f.IntVar(&jobsQuery.Offset, "offset", 0, "page offset")

	f = jobsCreateCmd.Flags()
	f.StringVar(&jobDraft.Title, "title", "", "job title (required)")
	f.StringVar(&jobDraft.Description, "description", "", "job description")
	f.StringVar(&jobDraft.Requirements, "requirements", "", "requirements")
	f.StringSliceVar(&jobDraft.SkillsRequired, "skills", nil, "required skills")
	f.Float64Var(&jobDraft.ExperienceMin, "experience-min", 0, "minimum years of experience")
	f.Float64Var(&jobDraft.ExperienceMax, "experience-max", 0, "maximum years of experience")
	f.StringVar(&jobDraft.EducationLevel, "education", "", "education level")
	f.StringVar(&jobDraft.Industry, "industry", "", "industry")
	f.StringVar(&jobDraft.Location, "location", "", "location")
	f.StringVar(&jobDraft.JobType, "type", "full-time", "job type")
	_ = jobsCreateCmd.MarkFlagRequired("title")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsScoreCmd, jobsFeedCmd, jobsCreateCmd)
	rootCmd.AddCommand(jobsCmd)
}
