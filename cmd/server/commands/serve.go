package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/app"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
	handlers "github.com/ClearMeasureLabs/onion8-flyway/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web host",
	Long: `Start the web host. Startup resolves the runtime mode, builds the
telemetry pipelines, assembles the middleware chain and routes, and runs the
startup health gate before any port is opened. SIGINT or SIGTERM triggers a
graceful shutdown.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Telemetry.ServiceVersion == "dev" && Version != "dev" {
		cfg.Telemetry.ServiceVersion = Version
	}

	application, err := app.NewApplication(cmd.Context(), cfg, app.Options{
		Version: handlers.VersionInfo{
			Version:   cfg.Telemetry.ServiceVersion,
			Commit:    Commit,
			BuildTime: Date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return application.Run(cmd.Context())
}
