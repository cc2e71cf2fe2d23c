package app

//go:generate mockgen -source=gate.go -destination=../mock/health_checker_mock.go -package=mock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/services"
)

// ErrStartupUnhealthy is returned when the startup report is Unhealthy under
// the enforce policy
var ErrStartupUnhealthy = errors.New("startup health check reported unhealthy")

// HealthChecker produces a health report on demand
type HealthChecker interface {
	CheckHealth(ctx context.Context) services.HealthReport
}

// RunStartupGate runs exactly one health evaluation before the host starts
// listening. With the enforce policy an Unhealthy report stops startup;
// with the report policy every outcome is only logged.
func RunStartupGate(ctx context.Context, checker HealthChecker, policy string, logger *slog.Logger) (services.HealthReport, error) {
	report := checker.CheckHealth(ctx)

	attrs := []any{
		slog.String("status", report.Status.String()),
		slog.Duration("duration", report.TotalDuration),
		slog.String("policy", policy),
	}
	if failed := failingEntries(report); len(failed) > 0 {
		attrs = append(attrs, slog.String("failing", strings.Join(failed, ",")))
	}

	switch report.Status {
	case services.Healthy:
		logger.InfoContext(ctx, "startup health check passed", attrs...)
	case services.Degraded:
		logger.WarnContext(ctx, "startup health check degraded", attrs...)
	default:
		if policy == config.GatePolicyEnforce {
			logger.ErrorContext(ctx, "startup health check failed", attrs...)
			return report, fmt.Errorf("%w: %s", ErrStartupUnhealthy, strings.Join(failingEntries(report), ", "))
		}
		logger.WarnContext(ctx, "startup health check unhealthy, continuing", attrs...)
	}

	return report, nil
}

func failingEntries(report services.HealthReport) []string {
	var failed []string
	for _, name := range report.Names() {
		if report.Entries[name].Status != services.Healthy {
			failed = append(failed, name)
		}
	}
	return failed
}
