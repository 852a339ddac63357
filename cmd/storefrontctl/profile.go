package main

import (
	"fmt"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/spf13/cobra"
)

// storefrontctl profile
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
	RunE:  runProfile,
}

func init() {
	profileCmd.Flags().String("first-name", "", "New first name")
	profileCmd.Flags().String("last-name", "", "New last name")
	profileCmd.Flags().String("avatar", "", "New avatar URL")
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	if token, _ := cmd.Flags().GetString("token"); token == "" {
		return apperr.AuthRequired("profile")
	}
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	profile, err := c.Me(ctx)
	if err != nil {
		return err
	}
	if in, changed := profileEdits(cmd, profile); changed {
		if profile, err = c.UpdateProfile(ctx, in); err != nil {
			return err
		}
	}

	if format(cmd) == "json" {
		return printJSON(profile)
	}
	fmt.Printf("%s %s <%s>  role: %s\n", profile.FirstName, profile.LastName, profile.Email, profile.Role)
	if profile.AvatarURL != "" {
		fmt.Printf("avatar: %s\n", profile.AvatarURL)
	}
	return nil
}

// profileEdits overlays the flags that were set on the current profile.
func profileEdits(cmd *cobra.Command, p *models.Profile) (service.ProfileInput, bool) {
	in := service.ProfileInput{FirstName: p.FirstName, LastName: p.LastName, AvatarURL: p.AvatarURL}
	changed := false
	for flag, dst := range map[string]*string{
		"first-name": &in.FirstName,
		"last-name":  &in.LastName,
		"avatar":     &in.AvatarURL,
	} {
		if cmd.Flags().Changed(flag) {
			*dst, _ = cmd.Flags().GetString(flag)
			changed = true
		}
	}
	return in, changed
}
