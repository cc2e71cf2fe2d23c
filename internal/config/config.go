package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete host configuration
type Config struct {
	Environment string          `yaml:"environment" envconfig:"ENVIRONMENT"`
	Server      ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security    SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging     LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry   TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Web         WebConfig       `yaml:"web" envconfig:"WEB"`
	Health      HealthConfig    `yaml:"health" envconfig:"HEALTH"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	TLSPort         int           `yaml:"tls_port" envconfig:"TLS_PORT" default:"0" validate:"min=0,max=65535"`
	CertFile        string        `yaml:"cert_file" envconfig:"CERT_FILE" validate:"required_with=KeyFile"`
	KeyFile         string        `yaml:"key_file" envconfig:"KEY_FILE" validate:"required_with=CertFile"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
}

// SecurityConfig contains transport security and API protection settings
type SecurityConfig struct {
	HSTSMaxAge            time.Duration   `yaml:"hsts_max_age" envconfig:"HSTS_MAX_AGE" default:"720h"`
	HSTSIncludeSubdomains bool            `yaml:"hsts_include_subdomains" envconfig:"HSTS_INCLUDE_SUBDOMAINS" default:"false"`
	RateLimit             RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for API controllers
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// TelemetryConfig contains the observability settings. ConnectionString is
// the only input that decides whether telemetry is exported at all.
type TelemetryConfig struct {
	ConnectionString  string        `yaml:"connection_string" envconfig:"CONNECTION_STRING"`
	ServiceName       string        `yaml:"service_name" envconfig:"SERVICE_NAME" default:"ChurchBulletin" validate:"required"`
	ServiceVersion    string        `yaml:"service_version" envconfig:"SERVICE_VERSION" default:"dev"`
	DefaultEndpoint   string        `yaml:"default_endpoint" envconfig:"DEFAULT_ENDPOINT" default:"localhost:4317" validate:"required"`
	Insecure          bool          `yaml:"insecure" envconfig:"INSECURE" default:"false"`
	HeaderName        string        `yaml:"header_name" envconfig:"HEADER_NAME" default:"x-api-key" validate:"required"`
	ExportInterval    time.Duration `yaml:"export_interval" envconfig:"EXPORT_INTERVAL" default:"60s" validate:"gt=0"`
	SampleRatio       float64       `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0" validate:"min=0,max=1"`
	PrometheusEnabled bool          `yaml:"prometheus_enabled" envconfig:"PROMETHEUS_ENABLED" default:"false"`
}

// WebConfig locates the client application assets
type WebConfig struct {
	Root            string `yaml:"root" envconfig:"ROOT" default:"wwwroot" validate:"required"`
	EntryDocument   string `yaml:"entry_document" envconfig:"ENTRY_DOCUMENT" default:"index.html" validate:"required"`
	FrameworkPrefix string `yaml:"framework_prefix" envconfig:"FRAMEWORK_PREFIX" default:"/_framework" validate:"required,startswith=/"`
}

// HealthConfig controls the health subsystem and the startup gate
type HealthConfig struct {
	GatePolicy   string        `yaml:"gate_policy" envconfig:"GATE_POLICY" default:"enforce" validate:"oneof=enforce report"`
	CheckTimeout time.Duration `yaml:"check_timeout" envconfig:"CHECK_TIMEOUT" default:"5s" validate:"gt=0"`
	UpstreamURL  string        `yaml:"upstream_url" envconfig:"UPSTREAM_URL" validate:"omitempty,url"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if cfg.Environment == "" {
		cfg.Environment = os.Getenv(HostingEnvironmentVar)
	}
	if cfg.Environment == "" {
		cfg.Environment = Production.String()
	}

	// envconfig cannot express the dotted variable name the hosting runtime uses
	if cfg.Telemetry.ConnectionString == "" {
		if legacy, ok := os.LookupEnv(LegacyConnectionStringVar); ok {
			cfg.Telemetry.ConnectionString = legacy
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Mode returns the runtime mode selected by the hosting environment
func (c *Config) Mode() RuntimeMode {
	return ParseRuntimeMode(c.Environment)
}

// Observability returns the telemetry decision derived from the credential
func (c *Config) Observability() ObservabilityConfig {
	return NewObservabilityConfig(c.Telemetry.ConnectionString)
}

// EnforceHealthGate reports whether an unhealthy startup report must abort the process
func (c *Config) EnforceHealthGate() bool {
	return c.Health.GatePolicy == GatePolicyEnforce
}

// HTTPSPort returns the port HTTPS redirection should target, 0 if unknown
func (c *Config) HTTPSPort() int {
	if c.Server.CertFile == "" || c.Server.TLSPort == 0 {
		return 0
	}
	return c.Server.TLSPort
}

func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if !envSet("ENVIRONMENT") && fileConfig.Environment != "" {
		envConfig.Environment = fileConfig.Environment
	}
	if !envSet("SERVER_PORT") && fileConfig.Server.Port != 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if !envSet("SERVER_TLS_PORT") && fileConfig.Server.TLSPort != 0 {
		envConfig.Server.TLSPort = fileConfig.Server.TLSPort
	}
	if envConfig.Server.CertFile == "" {
		envConfig.Server.CertFile = fileConfig.Server.CertFile
	}
	if envConfig.Server.KeyFile == "" {
		envConfig.Server.KeyFile = fileConfig.Server.KeyFile
	}
	if !envSet("LOGGING_LEVEL") && fileConfig.Logging.Level != "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if !envSet("LOGGING_OUTPUT") && fileConfig.Logging.Output != "" {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if !envSet("TELEMETRY_SERVICE_NAME") && fileConfig.Telemetry.ServiceName != "" {
		envConfig.Telemetry.ServiceName = fileConfig.Telemetry.ServiceName
	}
	if !envSet("TELEMETRY_DEFAULT_ENDPOINT") && fileConfig.Telemetry.DefaultEndpoint != "" {
		envConfig.Telemetry.DefaultEndpoint = fileConfig.Telemetry.DefaultEndpoint
	}
	if !envSet("WEB_ROOT") && fileConfig.Web.Root != "" {
		envConfig.Web.Root = fileConfig.Web.Root
	}
	if !envSet("HEALTH_GATE_POLICY") && fileConfig.Health.GatePolicy != "" {
		envConfig.Health.GatePolicy = fileConfig.Health.GatePolicy
	}
	if envConfig.Health.UpstreamURL == "" {
		envConfig.Health.UpstreamURL = fileConfig.Health.UpstreamURL
	}
	// the credential is deliberately never read from the file

	return envConfig
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + key)
	return ok
}

func (c *Config) validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	c.Health.GatePolicy = strings.ToLower(c.Health.GatePolicy)

	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Server.TLSPort != 0 && c.Server.TLSPort == c.Server.Port {
		return fmt.Errorf("tls port %d collides with http port", c.Server.TLSPort)
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Environment: Production.String(),
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			HSTSMaxAge: DefaultHSTSMaxAge,
			RateLimit: RateLimitConfig{
				RPS:   100,
				Burst: 50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:     DefaultServiceName,
			ServiceVersion:  "dev",
			DefaultEndpoint: "localhost:4317",
			HeaderName:      "x-api-key",
			ExportInterval:  60 * time.Second,
			SampleRatio:     1.0,
		},
		Web: WebConfig{
			Root:            "wwwroot",
			EntryDocument:   "index.html",
			FrameworkPrefix: "/_framework",
		},
		Health: HealthConfig{
			GatePolicy:   GatePolicyEnforce,
			CheckTimeout: 5 * time.Second,
		},
	}
}
