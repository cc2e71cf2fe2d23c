package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/services"
)

// ErrProbeUnhealthy is returned when the host reports Unhealthy
var ErrProbeUnhealthy = errors.New("host reported unhealthy")

var (
	probeURL     string
	probeTimeout time.Duration
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running host's health report",
	Long: `Fetch the health report of a running host and exit non-zero unless it
is Healthy or Degraded. Intended for container health probes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()

		client := resty.NewWithClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)})
		report, err := probe(ctx, client, probeURL)
		if err != nil {
			return err
		}
		cmd.Printf("%s\n", report.Status)
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&probeURL, "url", "http://localhost:8080"+config.HealthCheckPath, "health report URL")
	healthcheckCmd.Flags().DurationVar(&probeTimeout, "timeout", 5*time.Second, "probe timeout")
}

// probe fetches and decodes the health report at url. A 503 response still
// carries a report, so the body decides the outcome rather than the status code.
func probe(ctx context.Context, client *resty.Client, url string) (services.HealthReport, error) {
	var report services.HealthReport

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(url)
	if err != nil {
		return report, fmt.Errorf("health probe failed: %w", err)
	}

	if err := json.Unmarshal(resp.Body(), &report); err != nil {
		return report, fmt.Errorf("health probe returned %s without a report: %w", resp.Status(), err)
	}

	if report.Status == services.Unhealthy {
		return report, fmt.Errorf("%w: %v", ErrProbeUnhealthy, failing(report))
	}
	return report, nil
}

func failing(report services.HealthReport) []string {
	var names []string
	for _, name := range report.Names() {
		if report.Entries[name].Status == services.Unhealthy {
			names = append(names, name)
		}
	}
	return names
}
