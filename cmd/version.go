package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sobandev/careerpilot-ai/internal/output"
)

var (
	commit    = "unknown"
	buildTime = "unknown"
)

// SetBuildInfo sets the commit hash and build time
func SetBuildInfo(c, bt string) {
	commit = c
	buildTime = bt
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, build information, and the User-Agent sent to the API.`,
	Args:  cobra.NoArgs,
	// Version needs no configuration or session.
	PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
	PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		short, _ := cmd.Flags().GetBool("short")
		w := cmd.OutOrStdout()

		if short {
			fmt.Fprintln(w, version)
			return nil
		}

		info := map[string]string{
			"version":    version,
			"commit":     commit,
			"built":      buildTime,
			"user_agent": "cpctl/" + version,
			"goVersion":  runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		}
		if jsonOutput {
			return output.NewPrinter(output.PrinterOptions{Out: w}).JSON(info)
		}

		fmt.Fprintf(w, "cpctl version %s\n", version)
		for _, key := range []string{"commit", "built", "user_agent", "goVersion", "platform"} {
			fmt.Fprintf(w, "  %-11s %s\n", key+":", info[key])
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "print version string only")
	rootCmd.AddCommand(versionCmd)
}
