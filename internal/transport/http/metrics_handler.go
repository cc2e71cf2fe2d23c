package http

import (
	"log/slog"
	"net/http"

	apperrors "github.com/ClearMeasureLabs/onion8-flyway/internal/errors"
)

// MetricsHandler exposes the Prometheus pull endpoint of the metric pipeline
type MetricsHandler struct {
	prometheus http.Handler
	errors     *apperrors.ErrorHandler
}

// NewMetricsHandler creates a new metrics handler. A nil prometheus handler
// means the pull reader is not configured and the endpoint answers 404.
func NewMetricsHandler(prometheus http.Handler, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		prometheus: prometheus,
		errors:     apperrors.NewErrorHandler(logger, false),
	}
}

// Enabled reports whether metrics can be scraped
func (h *MetricsHandler) Enabled() bool {
	return h.prometheus != nil
}

// GetMetrics handles GET /api/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		h.errors.NotFound(w, r)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}
