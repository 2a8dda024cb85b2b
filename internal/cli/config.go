package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tactimerge/internal/model"
)

// Keys that have no default value but must still be readable from the
// environment.
var secretKeys = []string{
	"llm.api_key", "llm.base_url", "llm.http_proxy", "llm.https_proxy", "llm.no_proxy",
	"embedding.api_key", "embedding.base_url",
}

// LoadConfig resolves the configuration from v: flags bound to v, then
// TACTIMERGE_* variables, then the config file, then built-in defaults.
// Provider credentials fall back to OPENAI_API_KEY, ANTHROPIC_API_KEY,
// API_URL and OLLAMA_BASE_URL.
func LoadConfig(v *viper.Viper) (model.Config, error) {
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		return model.Config{}, err
	}

	var cfg model.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return model.Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyProviderEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every default as a viper key so that environment
// variables can override keys absent from the config file.
func setDefaults(v *viper.Viper, cfg model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	for _, k := range secretKeys {
		v.SetDefault(k, "")
	}
	flatten(v, "", tree)
	return nil
}

func flatten(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

func applyProviderEnv(cfg *model.Config) {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		fill(&cfg.LLM.APIKey, "OPENAI_API_KEY")
		fill(&cfg.LLM.BaseURL, "API_URL")
	case "anthropic", "claude":
		fill(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "ollama":
		fill(&cfg.LLM.BaseURL, "OLLAMA_BASE_URL")
	}

	switch strings.ToLower(cfg.Embedding.Provider) {
	case "openai":
		fill(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
		fill(&cfg.Embedding.BaseURL, "API_URL")
	case "ollama":
		fill(&cfg.Embedding.BaseURL, "OLLAMA_BASE_URL")
	}
}

// redacted hides credentials for display.
func redacted(cfg model.Config) model.Config {
	mask := func(s string) string {
		if len(s) <= 8 {
			return strings.Repeat("*", len(s))
		}
		return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
	}
	cfg.LLM.APIKey = mask(cfg.LLM.APIKey)
	cfg.Embedding.APIKey = mask(cfg.Embedding.APIKey)
	return cfg
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage TactiMerge configuration",
	Long: `Manage TactiMerge configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (TACTIMERGE_*, e.g. TACTIMERGE_LLM_PROVIDER)
3. Config file (~/.tactimerge/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file, environment and flags. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(redacted(cfg))
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(yamlData)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.tactimerge/config.yaml (or --config) with every option set to its default.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		configPath := cfgFile
		if configPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			configPath = filepath.Join(home, ".tactimerge", "config.yaml")
		}

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'tactimerge config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		// Helper for writing with error checking
		printf := func(format string, a ...interface{}) {
			if err != nil {
				return
			}
			_, err = fmt.Fprintf(f, format, a...)
		}

		yamlData, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		printf("# TactiMerge Configuration File\n")
		printf("#\n")
		printf("# Configuration hierarchy (highest to lowest priority):\n")
		printf("#   1. CLI flags\n")
		printf("#   2. Environment variables (TACTIMERGE_*)\n")
		printf("#   3. This config file\n")
		printf("#   4. Built-in defaults\n\n")
		printf("%s", yamlData)
		printf("\n# API Keys (recommended to use environment variables or a .env file instead):\n")
		printf("#   OPENAI_API_KEY=sk-...\n")
		printf("#   API_URL=https://api.openai.com/v1\n")
		printf("#   ANTHROPIC_API_KEY=sk-ant-...\n")
		printf("#   OLLAMA_BASE_URL=http://localhost:11434\n")
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created default configuration: %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
