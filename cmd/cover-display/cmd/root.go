// file: cmd/cover-display/cmd/root.go
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cover-display/config"
)

// Flags shared by every subcommand
var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "cover-display",
	Short: "Show the album art of the track currently playing on Spotify.",
	Long: `cover-display polls the Spotify currently-playing endpoint with a refresh-token
grant and writes the album art of the current track to a well-known image file.
An optional display command is restarted on every change, and changes can be
announced on NATS.

Credentials are read from SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET and
SPOTIFY_REFRESH_TOKEN, from the environment or an env file.`,
	SilenceUsage: true,
	// Without a subcommand, run the display
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisplay(cmd)
	},
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
	addRunFlags(rootCmd.Flags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&configPath, "config", "c", "", "path to config file (YAML); missing files are ignored")
	fs.StringVar(&envFile, "env-file", ".env", "path to a .env file with the Spotify credentials")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration and explains missing credentials
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			fmt.Fprintf(os.Stderr, "%s=<client id>\n%s=<client secret>\n%s=<refresh token>\n",
				config.EnvClientID, config.EnvClientSecret, config.EnvRefreshToken)
		}
		return nil, err
	}

	if err := applyOverrides(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
