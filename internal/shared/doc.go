// Package shared holds code used across packages that belongs to no single
// layer. Today that is only testutil, the test helpers for captured slog
// records and in-memory telemetry exporters.
package shared
