package cmd

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/solatis/metasync/internal/core/auth"
	"github.com/solatis/metasync/internal/core/config"
	"github.com/solatis/metasync/internal/core/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an API key",
	Long: `create issues a key signed with one of the HMAC secrets from
MS_HMAC_SECRET / MS_HMAC_SECRET_<n>. The key is printed once; only its
HMAC is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, closeDB, err := openQueries(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := auth.RevokeAPIKey(cmd.Context(), queries, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("secret-id", "", "secret id to sign with (default: the only or lowest configured secret)")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set MS_HMAC_SECRET environment variable)")
	}

	secretID, _ := cmd.Flags().GetString("secret-id")
	if secretID == "" {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		secretID = ids[0]
	}

	queries, closeDB, err := openQueries(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	issued, err := auth.CreateAPIKey(cmd.Context(), queries, secrets, secretID, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "id:     %s\n", issued.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "name:   %s\n", issued.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "key:    %s\n", color.New(color.Bold).Sprint(issued.Key))
	fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("store the key now; it cannot be shown again"))
	return nil
}

func openQueries(cmd *cobra.Command) (*db.Queries, func(), error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := requireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return queries, func() { database.Close() }, nil
}
