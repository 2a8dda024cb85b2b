package extract

import (
	"strings"
	"testing"
)

func TestVisibleText_SkipsScriptsAndStyles(t *testing.T) {
	html := `
	<html>
	<head><style>.score { color: red; }</style></head>
	<body>
		<nav>Home | Fixtures</nav>
		<h1>Barcelona 5-0 Real Madrid</h1>
		<p>Barcelona pressed high from the first whistle.</p>
		<script>trackPageView();</script>
		<p>Xavi dictated the tempo.</p>
	</body>
	</html>
	`

	text, err := VisibleText(html)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Contains(text, "trackPageView") || strings.Contains(text, "color: red") {
		t.Errorf("script or style leaked into text: %q", text)
	}
	if strings.Contains(text, "Fixtures") {
		t.Errorf("navigation leaked into text: %q", text)
	}
	for _, want := range []string{"pressed high", "Xavi dictated the tempo."} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in %q", want, text)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		format Format
		want   string
	}{
		{"text", "  Compact   block\n\n and quick   breaks ", FormatText, "Compact block and quick breaks"},
		{"html", "<p>Compact <b>block</b></p><p>quick breaks</p>", FormatHTML, "Compact block quick breaks"},
		{"markdown", "## Report\n\n- **Compact** block\n- see [the stats](http://x.y/z)", FormatMarkdown, "Report Compact block see the stats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.body, tt.format)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	if DetectFormat("<!DOCTYPE html><html><body>x</body></html>") != FormatHTML {
		t.Error("expected html")
	}
	if DetectFormat("Plain report about a 4-4-2.") != FormatText {
		t.Error("expected text")
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("They had 1.7 xG. Pressing was relentless! Did it work? Yes")
	want := []string{"They had 1.7 xG.", "Pressing was relentless!", "Did it work?", "Yes"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStats(t *testing.T) {
	text := "Lining up in a 4-2-3-1, United enjoyed 58% possession and had 14 shots, 6 shots on target, " +
		"for an xG of 1.74 in a 2-1 win."
	s := Stats(text)

	if s.Possession == nil || *s.Possession != 58 {
		t.Errorf("possession = %v", s.Possession)
	}
	if s.Shots == nil || *s.Shots != 14 {
		t.Errorf("shots = %v", s.Shots)
	}
	if s.ShotsOnTarget == nil || *s.ShotsOnTarget != 6 {
		t.Errorf("shots on target = %v", s.ShotsOnTarget)
	}
	if s.XG == nil || *s.XG != 1.74 {
		t.Errorf("xg = %v", s.XG)
	}
	if s.Formation != "4-2-3-1" {
		t.Errorf("formation = %q", s.Formation)
	}
}

func TestStats_Conservative(t *testing.T) {
	s := Stats("They won 2-1 in 2019 after 90 minutes of football with 3-3-3 nonsense.")
	if s.Possession != nil || s.Shots != nil || s.XG != nil {
		t.Errorf("unexpected figures: %+v", s)
	}
	if s.Formation != "" {
		t.Errorf("3-3-3 is not a formation, got %q", s.Formation)
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in     string
		gf, ga int
		ok     bool
	}{
		{"2-1", 2, 1, true},
		{" 0 : 0 ", 0, 0, true},
		{"3–2", 3, 2, true},
		{"two-one", 0, 0, false},
		{"2-1-0", 0, 0, false},
	}
	for _, tt := range tests {
		gf, ga, ok := ParseScore(tt.in)
		if ok != tt.ok || gf != tt.gf || ga != tt.ga {
			t.Errorf("ParseScore(%q) = %d, %d, %v", tt.in, gf, ga, ok)
		}
	}
}
