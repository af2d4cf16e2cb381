package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to the given path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to triage! Let's configure the assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Oracle on or off.
	oraclePrompt := promptui.Select{
		Label: "Use an LLM reasoning oracle? (heuristics are used when disabled)",
		Items: []string{"yes", "no"},
	}
	_, oracleStr, err := oraclePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("oracle selection: %w", err)
	}
	cfg.OracleEnabled = oracleStr == "yes"

	if cfg.OracleEnabled {
		// 2. Provider selection.
		providerPrompt := promptui.Select{
			Label: "Select LLM provider",
			Items: []string{"anthropic", "openai", "ollama"},
		}
		_, providerStr, err := providerPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("provider selection: %w", err)
		}
		cfg.Provider = ProviderType(providerStr)

		// 3. Model, defaulting per provider.
		modelPrompt := promptui.Prompt{
			Label:     "Model",
			Default:   DefaultModel(cfg.Provider),
			AllowEdit: true,
		}
		model, err := modelPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("model prompt: %w", err)
		}
		cfg.Model = model

		if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: %s is not set. Set it before running oracle-backed commands.\n", envVar)
		}
	}

	// 4. Agent bounds.
	iterPrompt := promptui.Prompt{
		Label:    "Max agent iterations per run",
		Default:  strconv.Itoa(cfg.Agent.MaxIterations),
		Validate: validatePositiveInt,
	}
	iterStr, err := iterPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("iterations prompt: %w", err)
	}
	cfg.Agent.MaxIterations, _ = strconv.Atoi(iterStr)

	durPrompt := promptui.Prompt{
		Label:    "Max agent run duration (minutes)",
		Default:  strconv.Itoa(cfg.Agent.MaxDurationMinutes),
		Validate: validatePositiveInt,
	}
	durStr, err := durPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("duration prompt: %w", err)
	}
	cfg.Agent.MaxDurationMinutes, _ = strconv.Atoi(durStr)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	fmt.Printf("\nConfiguration saved to %s\n", path)

	return cfg, nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative")
	}
	return nil
}
