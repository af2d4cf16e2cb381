package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/triagekit/triage/internal/cases"
	"github.com/triagekit/triage/internal/config"
	"github.com/triagekit/triage/internal/db"
	"github.com/triagekit/triage/internal/embeddings"
	"github.com/triagekit/triage/internal/evidence"
	"github.com/triagekit/triage/internal/llm"
	"github.com/triagekit/triage/internal/oracle"
	"github.com/triagekit/triage/internal/orchestrator"
	"github.com/triagekit/triage/internal/templates"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `triage init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openDB opens (creating if needed) the sqlite store under the store dir.
func openDB(cfg *config.Config) (*db.DB, error) {
	if err := os.MkdirAll(cfg.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return db.Open(filepath.Join(cfg.StoreDir, "triage.db"))
}

// buildOracle selects the reasoning oracle: LLM-backed when enabled and a
// client can be constructed, the deterministic heuristic otherwise.
func buildOracle(cfg *config.Config, store *cases.Store) oracle.Oracle {
	if cfg.OracleEnabled {
		client, err := llm.NewClient(string(cfg.Provider), cfg.Model)
		if err == nil {
			return oracle.NewLLMOracle(client, cfg.Model, time.Duration(cfg.OracleTimeoutSec)*time.Second)
		}
		fmt.Fprintf(os.Stderr, "note: LLM oracle unavailable (%v), using heuristic oracle\n", err)
	}
	return oracle.NewHeuristicOracle(store)
}

// buildEmbedder returns an embedder for semantic template matching, or nil
// when none can be configured. Matching works without one.
func buildEmbedder(cfg *config.Config) embeddings.Embedder {
	if !cfg.OracleEnabled {
		return nil
	}
	switch cfg.Provider {
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(cfg.EmbeddingModel, os.Getenv("OLLAMA_HOST"))
	default:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil
		}
		return embeddings.NewOpenAIEmbedder(apiKey, cfg.EmbeddingModel)
	}
}

// buildRedactor honors the redaction toggle.
func buildRedactor(cfg *config.Config) evidence.Redactor {
	if cfg.RedactionEnabled {
		return evidence.NewRuleRedactor()
	}
	return evidence.NoopRedactor{}
}

// buildOrchestrator wires the full case-operation stack from config.
func buildOrchestrator(ctx context.Context, cfg *config.Config, database *db.DB) (*orchestrator.Orchestrator, *cases.Store, *templates.Store, error) {
	store := cases.NewStore(database)
	tmplStore := templates.NewStore(database)
	if err := tmplStore.EnsureDefaults(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("seeding default templates: %w", err)
	}
	matcher := templates.NewMatcher(tmplStore, buildEmbedder(cfg))
	orch := orchestrator.New(store, tmplStore, matcher, buildOracle(cfg, store))
	orch.SetVerbose(verbose)
	return orch, store, tmplStore, nil
}
