// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

// pipelineConfig builds the full pipeline configuration: the YAML config
// file (when present) provides the base, environment variables override the
// API keys, and .secrets/ fills in any key still missing.
func pipelineConfig() (types.PipelineConfig, error) {
	cfg := types.PipelineConfig{
		Search: types.SearchConfig{
			EnableBrave:  true,
			EnableSerper: true,
		},
	}

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Environment overrides (DEEP_RESEARCH_* via viper), then secrets.
	cfg.Synthesis.APIKey = secretDefault(secrets.KeyAnthropic,
		firstNonEmpty(viper.GetString("anthropic_api_key"), cfg.Synthesis.APIKey))
	cfg.Gate.APIKey = secretDefault(secrets.KeyAnthropic,
		firstNonEmpty(viper.GetString("anthropic_api_key"), cfg.Gate.APIKey))
	cfg.Search.BraveAPIKey = secretDefault(secrets.KeyBrave,
		firstNonEmpty(viper.GetString("brave_api_key"), cfg.Search.BraveAPIKey))
	cfg.Search.SerperAPIKey = secretDefault(secrets.KeySerper,
		firstNonEmpty(viper.GetString("serper_api_key"), cfg.Search.SerperAPIKey))

	if cfg.Gate.Model == "" {
		cfg.Gate.Model = cfg.Synthesis.Model
	}
	return cfg, nil
}

// buildProviders assembles the enabled search providers that have API keys.
func buildProviders(cfg types.SearchConfig) []search.Provider {
	var providers []search.Provider
	if cfg.EnableBrave && cfg.BraveAPIKey != "" {
		providers = append(providers, &search.BraveProvider{APIKey: cfg.BraveAPIKey, Progress: os.Stderr})
	}
	if cfg.EnableSerper && cfg.SerperAPIKey != "" {
		providers = append(providers, &search.SerperProvider{APIKey: cfg.SerperAPIKey, Progress: os.Stderr})
	}
	return providers
}

// buildClient assembles the Claude backend, or nil when no key is configured.
func buildClient(cfg types.AIConfig) llm.Client {
	if cfg.APIKey == "" {
		return nil
	}
	return &llm.ClaudeBackend{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		MaxRetries: cfg.MaxRetries,
		Progress:   os.Stderr,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
