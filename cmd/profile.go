package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/portal"
)

var (
	profileUpdate portal.ProfileUpdate
	companyFields = map[string]*string{}
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View and edit profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show [user-id]",
	Short: "Show a public profile (yours when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := ""
		if len(args) == 1 {
			userID = args[0]
		} else {
			id, ok := current.store.Identity()
			if !ok {
				return commandError("profile", domain.ErrNotAuthenticated)
			}
			userID = id.ID
		}
		profile, err := current.portal.PublicProfile(cmd.Context(), userID)
		if err != nil {
			return commandError("profile", err)
		}
		return printRecord(current.printer, profile)
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:     "update",
	Short:   "Update your profile",
	Example: `  cpctl profile update --location Lisbon --phone "+351 555 0100"`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := current.portal.UpdateProfile(cmd.Context(), profileUpdate)
		if err != nil {
			return commandError("update profile", err)
		}
		current.printer.Success("Profile updated")
		return printRecord(current.printer, profile)
	},
}

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Manage your employer company",
}

var companyCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Create or update your company",
	Example: `  cpctl company create --name "Northwind Labs" --industry Software`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := portal.Record{}
		for key, value := range companyFields {
			if *value != "" {
				body[key] = *value
			}
		}
		company, err := current.portal.CreateCompany(cmd.Context(), body)
		if err != nil {
			return commandError("create company", err)
		}
		current.printer.Success("Company saved")
		return printRecord(current.printer, company)
	},
}

var companyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your company",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		company, err := current.portal.MyCompany(cmd.Context())
		if err != nil {
			return commandError("company", err)
		}
		if company == nil && !jsonOutput {
			current.printer.Info("No company yet. Run 'cpctl company create --name ...'")
			return nil
		}
		return printRecord(current.printer, company)
	},
}

var companyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show hiring counters for your company",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := current.portal.EmployerStats(cmd.Context())
		if err != nil {
			return commandError("employer stats", err)
		}
		return printRecord(current.printer, stats)
	},
}

func init() {
	f := profileUpdateCmd.Flags()
	f.StringVar(&profileUpdate.FullName, "name", "", "full name")
	f.StringVar(&profileUpdate.AvatarURL, "avatar-url", "", "avatar URL")
	f.StringVar(&profileUpdate.Phone, "phone", "", "phone number")
	f.StringVar(&profileUpdate.Location, "location", "", "location")

	for _, key := range []string{"name", "description", "website", "industry", "size", "location"} {
		companyFields[key] = companyCreateCmd.Flags().String(key, "", "company "+key)
	}
	_ = companyCreateCmd.MarkFlagRequired("name")

	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd)
	companyCmd.AddCommand(companyCreateCmd, companyShowCmd, companyStatsCmd)
	rootCmd.AddCommand(profileCmd, companyCmd)
}
