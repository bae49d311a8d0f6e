// Package config provides configuration loading for devopsd.
//
// Values come from an optional YAML file and are overridden by DEVOPSD_*
// environment variables. Every section is flat so that the env mapping
// DEVOPSD_SECTION_FIELD_NAME -> section.field_name is unambiguous.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete devopsd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	LLM       LLMConfig       `koanf:"llm"`
	NATS      NATSConfig      `koanf:"nats"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Logging   LoggingConfig   `koanf:"logging"`
	Secrets   SecretsConfig   `koanf:"secrets"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// WorkflowConfig bounds the orchestrator loop.
type WorkflowConfig struct {
	MaxIterations          int      `koanf:"max_iterations"`
	SupervisorRetryCeiling int      `koanf:"supervisor_retry_ceiling"`
	MaxPhaseAttempts       int      `koanf:"max_phase_attempts"`
	PhaseTimeout           Duration `koanf:"phase_timeout"`
	DeployBranch           string   `koanf:"deploy_branch"`
	DefaultCloudProvider   string   `koanf:"default_cloud_provider"`
}

// LLMConfig configures the text-generation backend used for Terraform.
// When Enabled is false the deterministic template generator is used.
type LLMConfig struct {
	Enabled           bool    `koanf:"enabled"`
	Model             string  `koanf:"model"`
	BaseURL           string  `koanf:"base_url"`
	APIKey            Secret  `koanf:"api_key"`
	Temperature       float64 `koanf:"temperature"`
	RequestsPerMinute int     `koanf:"requests_per_minute"`
	Burst             int     `koanf:"burst"`
	MaxRetries        int     `koanf:"max_retries"`
}

// NATSConfig configures workflow event publishing.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	// Embedded starts an in-process nats-server instead of dialing URL.
	Embedded bool `koanf:"embedded"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	Insecure       bool    `koanf:"insecure"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	SamplingRate   float64 `koanf:"sampling_rate"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// SecretsConfig configures scanning of generated artifacts for credentials.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	cfg := &Config{
		Secrets: SecretsConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Workflow.MaxIterations == 0 {
		cfg.Workflow.MaxIterations = 10
	}
	if cfg.Workflow.SupervisorRetryCeiling == 0 {
		cfg.Workflow.SupervisorRetryCeiling = 3
	}
	if cfg.Workflow.MaxPhaseAttempts == 0 {
		cfg.Workflow.MaxPhaseAttempts = 3
	}
	if cfg.Workflow.PhaseTimeout == 0 {
		cfg.Workflow.PhaseTimeout = Duration(2 * time.Minute)
	}
	if cfg.Workflow.DeployBranch == "" {
		cfg.Workflow.DeployBranch = "main"
	}
	if cfg.Workflow.DefaultCloudProvider == "" {
		cfg.Workflow.DefaultCloudProvider = "aws"
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4-turbo"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.RequestsPerMinute == 0 {
		cfg.LLM.RequestsPerMinute = 50
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 5
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "workflows"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "devopsd"
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "0.1.0"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Workflow.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("workflow.max_iterations must be positive, got %d", c.Workflow.MaxIterations))
	}
	if c.Workflow.SupervisorRetryCeiling < 1 {
		errs = append(errs, fmt.Errorf("workflow.supervisor_retry_ceiling must be positive, got %d", c.Workflow.SupervisorRetryCeiling))
	}
	if c.Workflow.MaxPhaseAttempts < 1 {
		errs = append(errs, fmt.Errorf("workflow.max_phase_attempts must be positive, got %d", c.Workflow.MaxPhaseAttempts))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.Enabled && !c.LLM.APIKey.IsSet() {
		errs = append(errs, errors.New("llm.api_key is required when llm is enabled"))
	}
	if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
		errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http/protobuf, got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %v", c.Telemetry.SamplingRate))
	}

	return errors.Join(errs...)
}
