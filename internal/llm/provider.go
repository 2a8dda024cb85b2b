package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/tactimerge/internal/extract"
	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/util"
)

// EvidenceSummarizer derives tactical attributes from one era's evidence.
// Implementations may only cite report ids present in the request.
type EvidenceSummarizer interface {
	// Name returns the provider name
	Name() string

	// SummarizeEvidence returns attributes, each citing the reports it rests on
	SummarizeEvidence(ctx context.Context, req EvidenceRequest) ([]Attribute, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// EvidenceRequest is the input of a single summarization call.
type EvidenceRequest struct {
	Team   string
	Era    string
	Intent string

	// Evidence is the STRICT allowlist of reports the model can cite
	Evidence []model.Evidence
}

// Allowed returns the set of citable report ids.
func (r EvidenceRequest) Allowed() map[string]bool {
	ids := make(map[string]bool, len(r.Evidence))
	for _, e := range r.Evidence {
		ids[e.Report.ID] = true
	}
	return ids
}

// Attribute is one tactical trait as returned by a provider.
type Attribute struct {
	Name        string   `json:"name"`
	Value       string   `json:"value"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "stats", "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for a single HTTP exchange
	Timeout time.Duration

	MaxTokens   int
	Temperature float32

	Proxy util.ProxyConfig
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Proxy: util.ProxyConfig{
			HTTPProxy:  c.HTTPProxy,
			HTTPSProxy: c.HTTPSProxy,
			NoProxy:    c.NoProxy,
		},
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 800
}

const systemPrompt = "You are a football tactics analyst. You describe how a team played using only the match reports you are given, and you answer in JSON."

// maxNarrative bounds each report excerpt in the prompt.
const maxNarrative = 1200

// BuildPrompt constructs the strict-evidence prompt for one era.
func BuildPrompt(req EvidenceRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Team: %s\nEra: %s\n", req.Team, req.Era)
	if req.Intent != "" {
		fmt.Fprintf(&b, "Focus: %s\n", req.Intent)
	}
	b.WriteString(`
CRITICAL RULES:
1. You MUST ONLY cite report ids from the reports listed below.
2. DO NOT use knowledge about the team that is not in these reports.
3. Every attribute needs at least one supporting report id.
4. If the reports do not support an attribute, leave it out.

Respond with a JSON object of the form:
{"attributes": [{"name": "pressing_intensity", "value": "short description", "evidence_ids": ["<report id>"]}]}

Reports:
`)
	for _, e := range req.Evidence {
		r := e.Report
		fmt.Fprintf(&b, "\n[id: %s]", r.ID)
		if r.PlayedOn != nil {
			fmt.Fprintf(&b, " %s", r.PlayedOn.Format("2006-01-02"))
		} else {
			fmt.Fprintf(&b, " %d", r.Year)
		}
		if r.Opponent != "" {
			fmt.Fprintf(&b, " vs %s", r.Opponent)
		}
		if r.Competition != "" {
			fmt.Fprintf(&b, " (%s)", r.Competition)
		}
		b.WriteByte('\n')
		if line := statsLine(r.Stats); line != "" {
			fmt.Fprintf(&b, "Stats: %s\n", line)
		}
		b.WriteString(excerpt(r.Narrative, maxNarrative))
		b.WriteByte('\n')
	}
	return b.String()
}

func statsLine(s model.MatchStats) string {
	var parts []string
	if s.Formation != "" {
		parts = append(parts, "formation "+s.Formation)
	}
	if s.Possession != nil {
		parts = append(parts, fmt.Sprintf("possession %.0f%%", *s.Possession))
	}
	if s.Shots != nil {
		parts = append(parts, fmt.Sprintf("shots %d", *s.Shots))
	}
	if s.XG != nil {
		parts = append(parts, fmt.Sprintf("xG %.2f", *s.XG))
	}
	if s.GoalsFor != nil && s.GoalsAgainst != nil {
		parts = append(parts, fmt.Sprintf("score %d-%d", *s.GoalsFor, *s.GoalsAgainst))
	}
	return strings.Join(parts, ", ")
}

// excerpt keeps the leading whole sentences of s that fit in n bytes. A first
// sentence longer than n is cut at a word boundary instead.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	var b strings.Builder
	for _, sentence := range extract.Sentences(s) {
		if b.Len()+len(sentence)+1 > n {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}
	if b.Len() == 0 {
		return truncate(s, n)
	}
	return b.String() + " ..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndexByte(s[:n], ' ')
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "..."
}

// ParseAttributes extracts attributes from a model response. It accepts the
// documented object form, a bare array, and either wrapped in a code fence.
func ParseAttributes(text string) ([]Attribute, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON in response")
	}
	text = text[start:]

	if text[0] == '[' {
		var attrs []Attribute
		if err := json.NewDecoder(strings.NewReader(text)).Decode(&attrs); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		return attrs, nil
	}
	var wrapped struct {
		Attributes []Attribute `json:"attributes"`
	}
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return wrapped.Attributes, nil
}

// Leaked returns cited ids that are not part of the request's evidence.
func Leaked(attrs []Attribute, req EvidenceRequest) []string {
	allowed := req.Allowed()
	var leaked []string
	for _, a := range attrs {
		for _, id := range a.EvidenceIDs {
			if !allowed[id] {
				leaked = append(leaked, id)
			}
		}
	}
	return leaked
}
