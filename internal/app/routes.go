package app

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "github.com/ClearMeasureLabs/onion8-flyway/internal/errors"
	customMiddleware "github.com/ClearMeasureLabs/onion8-flyway/internal/middleware"
	handlers "github.com/ClearMeasureLabs/onion8-flyway/internal/transport/http"
)

// HandlerKind names the handler family a route is bound to
type HandlerKind int

const (
	PageRouter HandlerKind = iota
	APIController
	StaticFallback
	HealthEndpoint
)

func (k HandlerKind) String() string {
	switch k {
	case PageRouter:
		return "PageRouter"
	case APIController:
		return "APIController"
	case StaticFallback:
		return "StaticFallback"
	case HealthEndpoint:
		return "HealthEndpoint"
	default:
		return fmt.Sprintf("HandlerKind(%d)", int(k))
	}
}

// RouteEntry binds a path pattern to a handler kind
type RouteEntry struct {
	Pattern string
	Kind    HandlerKind
}

// FallbackPattern matches every path no other route claimed
const FallbackPattern = "/*"

// RouteTable returns the host's endpoints. The table does not depend on the
// runtime mode; the fallback entry is always last.
func RouteTable() []RouteEntry {
	return []RouteEntry{
		{Pattern: "/Error", Kind: PageRouter},
		{Pattern: "/api", Kind: APIController},
		{Pattern: "/_healthcheck", Kind: HealthEndpoint},
		{Pattern: FallbackPattern, Kind: StaticFallback},
	}
}

// routeHandlers carries the concrete handlers behind each kind
type routeHandlers struct {
	pages       *handlers.PageHandler
	health      *handlers.HealthHandler
	version     *handlers.VersionHandler
	metrics     *handlers.MetricsHandler
	clientLogs  *handlers.ClientLogHandler
	fallback    http.Handler
	errors      *apperrors.ErrorHandler
	rateLimiter *customMiddleware.RateLimiter
}

// buildRouter registers table on a fresh chi router. The fallback is bound
// as the NotFound handler so that it only runs once every explicit route
// has failed to match.
func buildRouter(table []RouteEntry, h routeHandlers) (*chi.Mux, error) {
	r := chi.NewRouter()

	for _, entry := range table {
		switch entry.Kind {
		case PageRouter:
			r.Get(entry.Pattern, h.pages.ErrorPage)
		case APIController:
			r.Route(entry.Pattern, func(r chi.Router) {
				setupAPIRoutes(r, h)
			})
		case HealthEndpoint:
			r.Get(entry.Pattern, h.health.Report)
		case StaticFallback:
			if entry.Pattern != FallbackPattern {
				return nil, fmt.Errorf("fallback must use pattern %q, got %q", FallbackPattern, entry.Pattern)
			}
			r.NotFound(h.fallback.ServeHTTP)
		default:
			return nil, fmt.Errorf("route %s: unsupported handler kind %s", entry.Pattern, entry.Kind)
		}
	}

	r.MethodNotAllowed(h.errors.MethodNotAllowed)
	return r, nil
}

// setupAPIRoutes configures the controller endpoints
func setupAPIRoutes(r chi.Router, h routeHandlers) {
	r.Use(render.SetContentType(render.ContentTypeJSON))
	if h.rateLimiter != nil {
		r.Use(h.rateLimiter.Handler)
	}

	r.Get("/version", h.version.Version)
	r.Get("/health/live", h.health.LivenessCheck)
	if h.metrics.Enabled() {
		r.Get("/metrics", h.metrics.GetMetrics)
	}
	r.Post("/client-logs", h.clientLogs.Handle)

	// API misses answer with problem details, never the entry document
	r.NotFound(h.errors.NotFound)
	r.MethodNotAllowed(h.errors.MethodNotAllowed)
}
