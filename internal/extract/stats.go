package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/tactimerge/internal/model"
)

// Patterns are conservative: a number is only taken when it sits right next
// to its label, so loose prose rarely produces a figure.
var (
	possessionAfter  = regexp.MustCompile(`(?i)\bpossession\s*(?:of|:|at|was)?\s*(\d{1,2}(?:\.\d+)?)\s*%`)
	possessionBefore = regexp.MustCompile(`(?i)\b(\d{1,2}(?:\.\d+)?)\s*%\s*(?:of\s+)?(?:the\s+)?(?:ball\s+)?possession\b`)
	xgAfter          = regexp.MustCompile(`(?i)\bxg\s*(?:of|:|was)?\s*(\d{1,2}\.\d{1,2})\b`)
	xgBefore         = regexp.MustCompile(`(?i)\b(\d{1,2}\.\d{1,2})\s*xg\b`)
	shotsPattern     = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:total\s+)?shots?(\s+on\s+target)?\b`)
	formationPattern = regexp.MustCompile(`\b([2-5](?:-[1-6]){2,3})\b`)
	scorePattern     = regexp.MustCompile(`^\s*(\d{1,2})\s*[-–:]\s*(\d{1,2})\s*$`)
)

// Stats extracts whatever match numbers the narrative states explicitly.
func Stats(text string) model.MatchStats {
	var s model.MatchStats

	if v, ok := firstFloat(text, possessionAfter, possessionBefore); ok && v <= 100 {
		s.Possession = model.Float(v)
	}
	if v, ok := firstFloat(text, xgAfter, xgBefore); ok {
		s.XG = model.Float(v)
	}
	for _, m := range shotsPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if m[2] != "" {
			if s.ShotsOnTarget == nil {
				s.ShotsOnTarget = model.Int(n)
			}
		} else if s.Shots == nil {
			s.Shots = model.Int(n)
		}
	}
	for _, m := range formationPattern.FindAllStringSubmatch(text, -1) {
		if isFormation(m[1]) {
			s.Formation = m[1]
			break
		}
	}
	return s
}

// ParseScore parses "2-1" into goals for and against.
func ParseScore(s string) (gf, ga int, ok bool) {
	m := scorePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	gf, _ = strconv.Atoi(m[1])
	ga, _ = strconv.Atoi(m[2])
	return gf, ga, true
}

// isFormation checks that the outfield lines add up to ten players.
func isFormation(f string) bool {
	total := 0
	for _, p := range strings.Split(f, "-") {
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		total += n
	}
	return total == 10
}

func firstFloat(text string, patterns ...*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}
