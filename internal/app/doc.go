// Package app assembles the bulletin web host and manages its lifecycle.
//
// # Startup sequence
//
// NewApplication runs the startup steps in order and stops at the first
// failure, releasing whatever was already acquired:
//
//  1. Resolve the runtime mode and the telemetry credential
//  2. Describe the service resource (name ChurchBulletin by default)
//  3. Build the log, metric and trace pipelines when a credential is set
//  4. Assemble the mode-dependent middleware chain
//  5. Register the route table on a chi router
//  6. Run the startup health gate
//
// No port is opened until Run or Serve is called.
//
// # Request path
//
// Every request passes the ambient middleware first:
//
//	RequestID → RealIP → OTel → StructuredLogger → Recoverer → SecurityHeaders
//
// and then the stage chain, whose last stage dispatches to the router.
//
// # Health gate
//
// The gate evaluates the registered checks once. Under the enforce policy an
// Unhealthy report aborts startup with ErrStartupUnhealthy; under the report
// policy the outcome is only logged.
//
// # Shutdown
//
// Run stops on SIGINT or SIGTERM. Stop drains the listeners within
// Server.ShutdownTimeout and then flushes the telemetry pipelines. The
// package never calls os.Exit.
package app
