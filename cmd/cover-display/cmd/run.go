// file: cmd/cover-display/cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cover-display/config"
	"cover-display/internal/app"
	"cover-display/internal/lifecycle"
	"cover-display/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll Spotify and keep the cover file up to date",
	Long: `The run command polls until interrupted. SIGHUP re-reads the configuration and
restarts the poller; SIGINT and SIGTERM stop it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisplay(cmd)
	},
}

func init() {
	addRunFlags(runCmd.Flags())
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String("artwork", "", "override the cover file path (empty = use config)")
	fs.String("exec", "", "override the display command, {path} is replaced by the cover file")
	fs.Duration("interval", 0, "override the polling interval (0 = use config)")
	fs.String("metrics-addr", "", "enable metrics on this address (empty = use config)")
	fs.String("log-level", "", "override the log level (empty = use config)")
}

// applyOverrides copies the flags that were set over the loaded config
func applyOverrides(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Lookup("artwork") == nil {
		return nil
	}

	if fs.Changed("artwork") {
		cfg.Artwork.Path, _ = fs.GetString("artwork")
	}
	if fs.Changed("exec") {
		cfg.Artwork.Command, _ = fs.GetString("exec")
	}
	if fs.Changed("interval") {
		interval, _ := fs.GetDuration("interval")
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		cfg.Polling.Interval = interval
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Address, _ = fs.GetString("metrics-addr")
		cfg.Metrics.Enabled = cfg.Metrics.Address != ""
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level, _ = fs.GetString("log-level")
	}
	return nil
}

func runDisplay(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Lifecycle messages go to the console only; each app instance opens
	// its own log file
	consoleCfg := cfg.Logging
	consoleCfg.File = ""
	consoleCfg.Console = true
	appLogger, err := logger.NewLogger(&consoleCfg)
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	first := true
	createApp := func() (lifecycle.Application, error) {
		if !first {
			// Reload picks up configuration changes
			if cfg, err = loadConfig(cmd); err != nil {
				return nil, err
			}
		}
		first = false
		return app.NewApp(cfg)
	}

	return lifecycle.RunWithReload(createApp, appLogger)
}
