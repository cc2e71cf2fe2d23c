package config

import "strings"

// RuntimeMode is the hosting environment as seen by the middleware assembler.
// It is decided once at startup.
type RuntimeMode int

const (
	Production RuntimeMode = iota
	Development
)

// ParseRuntimeMode maps the environment name to a mode. Anything that is not
// "Development" (case-insensitive) runs as Production, including the empty string.
func ParseRuntimeMode(env string) RuntimeMode {
	if strings.EqualFold(strings.TrimSpace(env), "Development") {
		return Development
	}
	return Production
}

func (m RuntimeMode) String() string {
	if m == Development {
		return "Development"
	}
	return "Production"
}

// IsDevelopment reports whether client debugging support should be installed
func (m RuntimeMode) IsDevelopment() bool {
	return m == Development
}

// ObservabilityConfig records whether a telemetry credential was supplied.
// Enabled is true iff EndpointCredential is non-empty.
type ObservabilityConfig struct {
	EndpointCredential string
	Enabled            bool
}

// NewObservabilityConfig derives the config from an optional credential.
// The empty string is treated exactly like an absent variable.
func NewObservabilityConfig(credential string) ObservabilityConfig {
	return ObservabilityConfig{
		EndpointCredential: credential,
		Enabled:            credential != "",
	}
}
