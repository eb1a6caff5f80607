package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/trail/internal/api"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (0 = no expiry)")
}

var tokenCmd = &cobra.Command{
	Use:   "token ACCOUNT",
	Short: "Issue an API bearer token for an account",
	Long: `Sign a bearer token whose subject is ACCOUNT using [api].jwt_secret.
Requests made with it act as ACCOUNT; issue one for [api].admin to reach
the admin routes.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	auth, err := api.NewAuthenticator(cfg.API.JWTSecret, cfg.API.Admin)
	if err != nil {
		return fmt.Errorf("%w (run 'trail config init')", err)
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	tok, err := auth.IssueToken(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
