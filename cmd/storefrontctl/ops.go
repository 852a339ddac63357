package main

import (
	"fmt"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// storefrontctl migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Applying schema…")
		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("Done.")
		return nil
	},
}

// storefrontctl token
var tokenCmd = &cobra.Command{
	Use:   "token [email]",
	Short: "Issue a signed API token (development)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("user-id")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if !models.ValidRole(role) {
			return fmt.Errorf("unknown role %q", role)
		}
		if id == "" {
			id = uuid.NewString()
		}

		tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		token, err := tokens.Generate(models.User{ID: id, Email: args[0], Role: role}, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user-id", "", "Subject user id (random when empty)")
	tokenCmd.Flags().String("role", models.RoleCustomer, "Role: customer, vendor, admin")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(migrateCmd, tokenCmd)
}
