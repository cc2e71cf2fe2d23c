// Package http implements the HTTP handlers of the bulletin host.
//
// Handlers stay thin: they translate between HTTP and the services package
// and render responses with go-chi/render. Failures are answered as RFC 7807
// problem details through internal/errors.
//
// # Endpoints
//
//	GET  /_healthcheck       HealthHandler.Report
//	GET  /api/version        VersionHandler.Version
//	GET  /api/health/live    HealthHandler.LivenessCheck
//	GET  /api/metrics        MetricsHandler.GetMetrics (Prometheus, opt-in)
//	POST /api/client-logs    ClientLogHandler.Handle
//	GET  /Error              PageHandler.ErrorPage
//	*    (no route matched)  FallbackHandler
//
// The fallback serves the client application's entry document so that
// client-side routes survive a browser reload.
package http
