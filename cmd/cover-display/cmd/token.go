// file: cmd/cover-display/cmd/token.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cover-display/internal/app"
	"cover-display/internal/logger"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange the refresh token once and print the access token",
	Long: `The token command checks the configured credentials with a single refresh
exchange. The access token is masked unless --show is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		show, _ := cmd.Flags().GetBool("show")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Spotify.RequestTimeout+5*time.Second)
		defer cancel()

		gen, accessToken, err := app.FetchToken(ctx, cfg, logger.NewNopLogger())
		if err != nil {
			return err
		}

		if !show {
			accessToken = maskToken(accessToken)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "access token: %s\nvalid until:  %s\n",
			accessToken, gen.Expiry().Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().Bool("show", false, "print the full access token")
}

func maskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
