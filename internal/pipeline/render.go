package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/predict"
)

// Output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Renderer writes results as JSON or Markdown.
type Renderer struct {
	Format string
}

// NewRenderer creates a renderer; unknown formats are rejected.
func NewRenderer(format string) (*Renderer, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return &Renderer{Format: FormatJSON}, nil
	case FormatMarkdown, "md":
		return &Renderer{Format: FormatMarkdown}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (supported: json, markdown)", format)
}

// RenderFile renders v into path.
func (r *Renderer) RenderFile(v any, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return r.Render(f, v)
}

// Render writes v. Analyses render as the bare era map in JSON, matching
// the /analyze response.
func (r *Renderer) Render(w io.Writer, v any) error {
	if r.Format == FormatJSON {
		if a, ok := v.(*Analysis); ok {
			v = a.Summary.Eras
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	var b strings.Builder
	switch t := v.(type) {
	case *Analysis:
		writeAnalysis(&b, t)
	case *model.PredictionResult:
		writePrediction(&b, t)
	case *predict.Comparison:
		writeComparison(&b, t)
	default:
		return fmt.Errorf("no markdown rendering for %T", v)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeAnalysis(b *strings.Builder, a *Analysis) {
	fmt.Fprintf(b, "# Tactical profile: %s\n\n", a.Summary.Team)

	reports := make(map[string]model.MatchReport, a.Evidence.Len())
	for _, e := range a.Evidence.Items {
		reports[e.Report.ID] = e.Report
	}

	for _, bucket := range a.Evidence.ByEra() {
		attrs, ok := a.Summary.Eras[bucket.Era]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "## %s\n\n", bucket.Era)
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := attrs[name]
			fmt.Fprintf(b, "- **%s**: %s [%s]\n", strings.ReplaceAll(name, "_", " "), c.Value, strings.Join(c.EvidenceIDs, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Evidence\n\n")
	for _, id := range a.Summary.Citations() {
		r := reports[id]
		title := r.Title
		if title == "" {
			title = truncate(r.Narrative, 80)
		}
		fmt.Fprintf(b, "- `%s` (%d, %s) %s\n", id, r.Year, r.Era, title)
	}
}

func writePrediction(b *strings.Builder, p *model.PredictionResult) {
	fmt.Fprintf(b, "# %s vs %s\n\n", p.TeamA, p.TeamB)
	b.WriteString("| | win | draw | loss |\n|---|---|---|---|\n")
	fmt.Fprintf(b, "| %s | %.1f%% | %.1f%% | %.1f%% |\n\n", p.TeamA, 100*p.Probabilities.Win, 100*p.Probabilities.Draw, 100*p.Probabilities.Loss)
	fmt.Fprintf(b, "- Expected goals: %.2f - %.2f (baseline %.2f - %.2f)\n", p.XG.TeamA, p.XG.TeamB, p.BaselineXG.TeamA, p.BaselineXG.TeamB)
	fmt.Fprintf(b, "- Most likely score: %s\n", p.MostLikelyScore)
	fmt.Fprintf(b, "- Confidence: %.2f (%s), %d + %d reports over %d years\n",
		p.Confidence, p.ConfidenceLevel, p.EvidenceCount.TeamA, p.EvidenceCount.TeamB, p.RecencySpreadYears)
}

func writeComparison(b *strings.Builder, c *predict.Comparison) {
	fmt.Fprintf(b, "# Team strengths (league avg %.3f, fill %s)\n\n", c.LeagueAvg, c.Fill)
	b.WriteString("| team | atk home | def home | atk away | def away | matches |\n|---|---|---|---|---|---|\n")
	for _, s := range c.Stats {
		fmt.Fprintf(b, "| %s | %.2f | %.2f | %.2f | %.2f | %d |\n", s.Team, s.AtkHome, s.DefHome, s.AtkAway, s.DefAway, s.Matches)
	}
	if len(c.Stats) == 2 {
		fmt.Fprintf(b, "\n- %s at home: %.2f xG\n", c.Stats[0].Team, c.ExpectedXGAvsB)
		fmt.Fprintf(b, "- %s at home: %.2f xG\n", c.Stats[1].Team, c.ExpectedXGBvsA)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
