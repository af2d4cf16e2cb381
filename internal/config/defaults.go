package config

// defaultModels maps each provider to its default reasoning model.
var defaultModels = map[ProviderType]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o",
	ProviderOllama:    "llama3",
}

// DefaultDeniedActions are substrings that block an agent action outright.
// They cover destructive filesystem, VCS, and publish operations.
var DefaultDeniedActions = []string{
	"rm -rf",
	"rm -f",
	"mkfs",
	"dd if=",
	"git push --force",
	"git reset --hard",
	"git clean",
	"npm publish",
	"docker push",
	"kubectl delete",
	"drop table",
	"truncate table",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OracleEnabled:    false,
		Provider:         ProviderAnthropic,
		Model:            defaultModels[ProviderAnthropic],
		EmbeddingModel:   "text-embedding-3-small",
		StoreDir:         ".triage",
		RedactionEnabled: true,
		OracleTimeoutSec: 60,
		Agent: AgentConfig{
			MaxIterations:      50,
			MaxDurationMinutes: 30,
			AutoApprove:        false,
			DeniedActions:      DefaultDeniedActions,
		},
	}
}

// DefaultModel returns the default reasoning model for the given provider.
func DefaultModel(provider ProviderType) string {
	if m, ok := defaultModels[provider]; ok {
		return m
	}
	return defaultModels[ProviderAnthropic]
}
