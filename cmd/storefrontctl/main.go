// Command storefrontctl is the command-line storefront: it browses the catalog,
// manages the cart and wishlist, checks out, and carries the operator commands
// for migrating the database and issuing tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"storefront/config"
	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/storefront"
	"storefront/internal/util"

	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "storefrontctl",
	Short:         "Storefront command-line client",
	Long:          "Browse the catalog, manage your cart and wishlist, check out, and run operator tasks.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("api", getEnv("STOREFRONT_API_URL", "http://localhost:8080"), "Storefront API base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("STOREFRONT_TOKEN"), "Bearer token for signed-in commands")
	rootCmd.PersistentFlags().Duration("timeout", storefront.DefaultFetchTimeout, "Request timeout")
	rootCmd.PersistentFlags().Int("retries", 2, "Retries for failed reads")
	rootCmd.PersistentFlags().String("format", "table", "Output format: table, json")
}

func initConfig() {
	cfg = config.Load()
	_ = util.InitLogger("production")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newClient builds an API client from the persistent flags.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	api, _ := cmd.Flags().GetString("api")
	token, _ := cmd.Flags().GetString("token")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	retries, _ := cmd.Flags().GetInt("retries")

	return client.New(client.Options{
		BaseURL: api,
		Token:   token,
		Timeout: timeout,
		Retries: retries,
		Codec:   catalogCodec(),
	})
}

// signIn resolves the token to a user and returns a session for it. Without
// a token the session stays signed out and the stores report AuthRequired.
func signIn(ctx context.Context, cmd *cobra.Command, c *client.Client) (*storefront.Session, error) {
	session := &storefront.Session{}
	if token, _ := cmd.Flags().GetString("token"); token == "" {
		return session, nil
	}
	profile, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	session.SignIn(models.User{ID: profile.ID, Email: profile.Email, Role: profile.Role})
	return session, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(cmd.Context(), 2*timeout)
}
