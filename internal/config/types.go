package config

// ProviderType identifies a reasoning-oracle LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
)

// AgentConfig holds the default bounds for autonomous agent sessions.
// Individual sessions may override these at creation time.
type AgentConfig struct {
	MaxIterations      int      `yaml:"max_iterations" koanf:"max_iterations"`
	MaxDurationMinutes int      `yaml:"max_duration_minutes" koanf:"max_duration_minutes"`
	AutoApprove        bool     `yaml:"auto_approve" koanf:"auto_approve"`
	DeniedActions      []string `yaml:"denied_actions" koanf:"denied_actions"`
}

// Config is the top-level triage configuration, corresponding to .triage.yml.
type Config struct {
	OracleEnabled    bool         `yaml:"oracle_enabled" koanf:"oracle_enabled"`
	Provider         ProviderType `yaml:"provider" koanf:"provider"`
	Model            string       `yaml:"model" koanf:"model"`
	EmbeddingModel   string       `yaml:"embedding_model" koanf:"embedding_model"`
	StoreDir         string       `yaml:"store_dir" koanf:"store_dir"`
	RedactionEnabled bool         `yaml:"redaction_enabled" koanf:"redaction_enabled"`
	OracleTimeoutSec int          `yaml:"oracle_timeout_sec" koanf:"oracle_timeout_sec"`
	Agent            AgentConfig  `yaml:"agent" koanf:"agent"`
}
