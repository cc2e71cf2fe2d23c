// Package commands implements the CLI of the bulletin web host.
package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "bulletin",
	Short: "ChurchBulletin web host",
	Long: `Serves the ChurchBulletin client application, its API controllers and
the health report, exporting logs, metrics and traces when a telemetry
credential is configured.

Configuration is read from BULLETIN_* environment variables and an optional
YAML file. Running without a subcommand is the same as "bulletin serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return os.Setenv(config.EnvPrefix+"_CONFIG_FILE", cfgFile)
		}
		return nil
	},
	RunE: runServe,
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(versionCmd)
}
