package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load consults so host settings cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"BULLETIN_ENVIRONMENT", "BULLETIN_SERVER_PORT", "BULLETIN_SERVER_TLS_PORT",
		"BULLETIN_SERVER_CERT_FILE", "BULLETIN_SERVER_KEY_FILE",
		"BULLETIN_LOGGING_LEVEL", "BULLETIN_LOGGING_OUTPUT",
		"BULLETIN_TELEMETRY_CONNECTION_STRING", "BULLETIN_TELEMETRY_SERVICE_NAME",
		"BULLETIN_TELEMETRY_SAMPLE_RATIO", "BULLETIN_HEALTH_GATE_POLICY",
		"BULLETIN_HEALTH_UPSTREAM_URL", "BULLETIN_WEB_ROOT", "BULLETIN_CONFIG_FILE",
		HostingEnvironmentVar, LegacyConnectionStringVar,
	}
	for _, v := range vars {
		if old, ok := os.LookupEnv(v); ok {
			t.Cleanup(func() { os.Setenv(v, old) })
		}
		os.Unsetenv(v)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "Production", cfg.Environment)
				assert.Equal(t, Production, cfg.Mode())
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, DefaultHSTSMaxAge, cfg.Security.HSTSMaxAge)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "console", cfg.Logging.Output)
				assert.Equal(t, "ChurchBulletin", cfg.Telemetry.ServiceName)
				assert.Equal(t, "wwwroot", cfg.Web.Root)
				assert.Equal(t, "index.html", cfg.Web.EntryDocument)
				assert.Equal(t, "/_framework", cfg.Web.FrameworkPrefix)
				assert.True(t, cfg.EnforceHealthGate())
				assert.False(t, cfg.Observability().Enabled)
			},
		},
		{
			name: "development mode and credential",
			env: map[string]string{
				"BULLETIN_ENVIRONMENT":                 "development",
				"BULLETIN_TELEMETRY_CONNECTION_STRING": "abc123",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Development, cfg.Mode())
				obs := cfg.Observability()
				assert.True(t, obs.Enabled)
				assert.Equal(t, "abc123", obs.EndpointCredential)
			},
		},
		{
			name: "hosting runtime variables are honoured",
			env: map[string]string{
				HostingEnvironmentVar:     "Development",
				LegacyConnectionStringVar: "InstrumentationKey=k",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Development, cfg.Mode())
				assert.Equal(t, "InstrumentationKey=k", cfg.Observability().EndpointCredential)
			},
		},
		{
			name: "own variable wins over legacy credential",
			env: map[string]string{
				"BULLETIN_TELEMETRY_CONNECTION_STRING": "primary",
				LegacyConnectionStringVar:              "legacy",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "primary", cfg.Observability().EndpointCredential)
			},
		},
		{
			name: "empty credential is absent",
			env: map[string]string{
				"BULLETIN_TELEMETRY_CONNECTION_STRING": "",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Observability().Enabled)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"BULLETIN_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "invalid gate policy",
			env:     map[string]string{"BULLETIN_HEALTH_GATE_POLICY": "sometimes"},
			wantErr: true,
		},
		{
			name:    "invalid sample ratio",
			env:     map[string]string{"BULLETIN_TELEMETRY_SAMPLE_RATIO": "1.5"},
			wantErr: true,
		},
		{
			name:    "invalid upstream url",
			env:     map[string]string{"BULLETIN_HEALTH_UPSTREAM_URL": "not a url"},
			wantErr: true,
		},
		{
			name:    "cert without key",
			env:     map[string]string{"BULLETIN_SERVER_CERT_FILE": "cert.pem"},
			wantErr: true,
		},
		{
			name: "gate policy is case-insensitive",
			env:  map[string]string{"BULLETIN_HEALTH_GATE_POLICY": "REPORT"},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.EnforceHealthGate())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	content := `
environment: Development
server:
  port: 9090
telemetry:
  service_name: FromFile
  connection_string: ignored
web:
  root: /srv/www
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	t.Setenv("BULLETIN_CONFIG_FILE", file)
	t.Setenv("BULLETIN_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Mode())
	assert.Equal(t, 7070, cfg.Server.Port, "env takes precedence over the file")
	assert.Equal(t, "FromFile", cfg.Telemetry.ServiceName)
	assert.Equal(t, "/srv/www", cfg.Web.Root)
	assert.False(t, cfg.Observability().Enabled, "credential is never read from the file")
}

func TestHTTPSPort(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0, cfg.HTTPSPort())

	cfg.Server.TLSPort = 8443
	assert.Equal(t, 0, cfg.HTTPSPort(), "no certificate means no HTTPS listener")

	cfg.Server.CertFile = "cert.pem"
	cfg.Server.KeyFile = "key.pem"
	assert.Equal(t, 8443, cfg.HTTPSPort())
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, Production, cfg.Mode())
}
