package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var roadmapTarget string

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Upload and analyse your resume",
}

var resumeUploadCmd = &cobra.Command{
	Use:     "upload <file>",
	Short:   "Upload a resume (PDF or DOCX)",
	Example: `  cpctl resume upload ./cv.pdf`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open resume: %w", err)
		}
		defer f.Close()

		res, err := current.portal.UploadResume(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return commandError("upload resume", err)
		}
		if jsonOutput {
			return current.printer.JSON(res)
		}
		current.printer.Success("Uploaded %s", filepath.Base(args[0]))
		return printRecord(current.printer, res)
	},
}

var resumeAnalysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Show the analysis of your latest resume",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := current.portal.ResumeAnalysis(cmd.Context())
		if err != nil {
			return commandError("resume analysis", err)
		}
		if jsonOutput {
			return current.printer.JSON(res)
		}
		p := current.printer
		if resume, ok := res["resume"].(map[string]any); ok {
			p.Header("Resume")
			if err := printRecord(p, resume); err != nil {
				return err
			}
		}
		if analysis, ok := res["analysis"].(map[string]any); ok {
			p.Header("Analysis")
			return printRecord(p, analysis)
		}
		return nil
	},
}

var roadmapCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Generate and view career roadmaps",
}

var roadmapGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a roadmap towards a target role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roadmap, err := current.portal.GenerateRoadmap(cmd.Context(), roadmapTarget)
		if err != nil {
			return commandError("generate roadmap", err)
		}
		return printRecord(current.printer, roadmap)
	},
}

var roadmapShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your latest roadmap",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roadmap, err := current.portal.Roadmap(cmd.Context())
		if err != nil {
			return commandError("roadmap", err)
		}
		return printRecord(current.printer, roadmap)
	},
}

func init() {
	roadmapGenerateCmd.Flags().StringVar(&roadmapTarget, "target", "", "target role (server default when empty)")

	resumeCmd.AddCommand(resumeUploadCmd, resumeAnalysisCmd)
	roadmapCmd.AddCommand(roadmapGenerateCmd, roadmapShowCmd)
	rootCmd.AddCommand(resumeCmd, roadmapCmd)
}
