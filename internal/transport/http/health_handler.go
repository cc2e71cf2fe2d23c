package http

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/services"
)

// HealthReporter produces the structured health report
type HealthReporter interface {
	CheckHealth(ctx context.Context) services.HealthReport
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	reporter  HealthReporter
	enforce   bool
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a new health handler. With enforce set, an
// Unhealthy report is served with 503; otherwise the status is always 200.
func NewHealthHandler(reporter HealthReporter, enforce bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		reporter:  reporter,
		enforce:   enforce,
		startTime: time.Now(),
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// Report handles GET /_healthcheck
func (h *HealthHandler) Report(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.CheckHealth(r.Context())

	status := http.StatusOK
	if h.enforce && report.Status == services.Unhealthy {
		status = http.StatusServiceUnavailable
		h.logger.WarnContext(r.Context(), "health endpoint reporting unhealthy",
			slog.Any("failed", failedEntries(report)))
	}

	w.Header().Set("Cache-Control", "no-store, no-cache")
	render.Status(r, status)
	render.JSON(w, r, report)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":     "alive",
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(h.startTime).Seconds(),
		"goroutines": runtime.NumGoroutine(),
	})
}

func failedEntries(report services.HealthReport) []string {
	var failed []string
	for _, name := range report.Names() {
		if report.Entries[name].Status != services.Healthy {
			failed = append(failed, name)
		}
	}
	return failed
}
