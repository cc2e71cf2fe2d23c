package config

import "time"

const (
	// EnvPrefix namespaces every environment variable read by envconfig
	EnvPrefix = "BULLETIN"

	// HostingEnvironmentVar is consulted when BULLETIN_ENVIRONMENT is unset
	HostingEnvironmentVar = "ASPNETCORE_ENVIRONMENT"

	// LegacyConnectionStringVar is the credential variable name used by the
	// hosting runtime. It contains a dot, so it is read with os.LookupEnv.
	LegacyConnectionStringVar = "OpenTelemetry.ConnectionString"

	// DefaultServiceName tags every exported signal
	DefaultServiceName = "ChurchBulletin"

	// DefaultHSTSMaxAge matches the 30 day default of the hosting framework
	DefaultHSTSMaxAge = 30 * 24 * time.Hour

	// ErrorPagePath is where the exception handler re-executes failed requests
	ErrorPagePath = "/Error"

	// HealthCheckPath exposes the health report
	HealthCheckPath = "/_healthcheck"

	GatePolicyEnforce = "enforce"
	GatePolicyReport  = "report"
)
