// Package config resolves the host's configuration once at process start.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. An optional YAML file (config.yaml, configs/config.yaml or BULLETIN_CONFIG_FILE)
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern BULLETIN_* for namespacing:
//
//	BULLETIN_ENVIRONMENT=Development
//	BULLETIN_SERVER_PORT=8080
//	BULLETIN_TELEMETRY_CONNECTION_STRING=InstrumentationKey=...;IngestionEndpoint=https://...
//	BULLETIN_HEALTH_GATE_POLICY=enforce
//
// Two variables are inherited from the hosting runtime and read verbatim:
// ASPNETCORE_ENVIRONMENT (used when BULLETIN_ENVIRONMENT is unset) and
// OpenTelemetry.ConnectionString (used when the telemetry connection string is unset).
//
// # Runtime Mode and Observability
//
// Two decisions derived here drive the rest of startup:
//
//	cfg.Mode()          // Development or Production
//	cfg.Observability() // credential present or absent
//
// An empty credential is indistinguishable from a missing one. The credential
// is never validated here; malformed values fail later, when exporters are built.
package config
