// Package services implements the health subsystem of the bulletin host.
//
// A HealthCheckService holds named checks, each registered with the status
// it reports on failure. CheckHealth runs them concurrently under a per-check
// timeout and folds the entries into a HealthReport whose status is the
// worst entry:
//
//	svc := services.NewHealthCheckService(logger, 5*time.Second)
//	_ = svc.Register("entry_document", services.EntryDocumentCheck(webRoot, "index.html"), services.Unhealthy)
//	_ = svc.Register("telemetry", services.TelemetryCheck(pipelines), services.Degraded)
//	report := svc.CheckHealth(ctx)
//
// The same report feeds the startup gate and the /_healthcheck endpoint.
package services
