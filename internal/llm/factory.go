package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates the configured summarizer. An empty provider selects
// the offline stats backend.
func NewProvider(config Config) (EvidenceSummarizer, error) {
	switch strings.ToLower(config.Provider) {
	case "", "stats":
		return NewStatsProvider(), nil

	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: stats, openai, anthropic, ollama)", config.Provider)
	}
}
