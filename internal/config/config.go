// Package config defines the agent runtime's typed configuration, loaded
// from YAML with an environment-variable overlay, validated against an
// embedded JSON Schema, and hot-reloadable for the gadget allow-list and
// hook bundle list. Grounded on the teacher's internal/config package,
// trimmed from its multi-channel bot surface (no channels/auth/server/
// session sections) down to the agent runtime's own concerns.
package config

import "time"

// Config is the root configuration document.
type Config struct {
	Providers     ProvidersConfig     `yaml:"providers"`
	Agent         AgentConfig         `yaml:"agent"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Media         MediaConfig         `yaml:"media"`
	Gadgets       GadgetsConfig       `yaml:"gadgets"`
	Hooks         HooksConfig         `yaml:"hooks"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ProvidersConfig selects the default provider:model descriptor and carries
// per-provider credentials, matching internal/provider's dispatch contract.
type ProvidersConfig struct {
	Default   string                 `yaml:"default"`
	Anthropic ProviderCredentials    `yaml:"anthropic"`
	OpenAI    ProviderCredentials    `yaml:"openai"`
	Gemini    ProviderCredentials    `yaml:"gemini"`
	Bedrock   BedrockCredentials     `yaml:"bedrock"`
	Extra     map[string]ProviderCredentials `yaml:"extra,omitempty"`
}

type ProviderCredentials struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type BedrockCredentials struct {
	Region string `yaml:"region"`
}

// AgentConfig configures the run loop (spec.md §4.I).
type AgentConfig struct {
	MaxIterations   int    `yaml:"max_iterations"`
	AcknowledgeText string `yaml:"acknowledge_text"`
}

// ExecutorConfig configures the gadget executor (spec.md §4.D).
type ExecutorConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	SpilloverBudget int           `yaml:"spillover_budget_bytes"`
}

// MediaConfig selects and configures the internal/media backend.
type MediaConfig struct {
	// Backend is "memory" (default), "local", or "s3".
	Backend   string       `yaml:"backend"`
	LocalPath string       `yaml:"local_path"`
	S3        S3MediaConfig `yaml:"s3"`
}

type S3MediaConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`
}

// GadgetsConfig gates which registered gadgets a run may invoke. An empty
// AllowList means every registered gadget is permitted.
type GadgetsConfig struct {
	AllowList []string `yaml:"allow_list"`
}

// HooksConfig lists named hook bundles. internal/hooks never reads this
// list; no package in this module installs hooks from it.
type HooksConfig struct {
	Bundles []string `yaml:"bundles"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	MetricsEnabled   bool    `yaml:"metrics_enabled"`
	TracingEndpoint  string  `yaml:"tracing_endpoint"`
	ServiceName      string  `yaml:"service_name"`
	SamplingRate     float64 `yaml:"sampling_rate"`
}

// applyDefaults fills unset fields with the runtime's defaults, mirroring
// the teacher's applyDefaults/apply*Defaults functions.
func applyDefaults(cfg *Config) {
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 50
	}
	if cfg.Agent.AcknowledgeText == "" {
		cfg.Agent.AcknowledgeText = "Continue working the task, or signal completion with a gadget call."
	}
	if cfg.Executor.MaxConcurrent == 0 {
		cfg.Executor.MaxConcurrent = 8
	}
	if cfg.Executor.DefaultTimeout == 0 {
		cfg.Executor.DefaultTimeout = 30 * time.Second
	}
	if cfg.Executor.SpilloverBudget == 0 {
		cfg.Executor.SpilloverBudget = 50 << 10
	}
	if cfg.Media.Backend == "" {
		cfg.Media.Backend = "memory"
	}
	if cfg.Media.S3.Region == "" {
		cfg.Media.S3.Region = "us-east-1"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "gadgetrun"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}
}
