package risk

import (
	"fmt"
	"strings"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
)

// Level is the tri-state outcome shown to the user.
type Level string

const (
	LevelGood    Level = "good"
	LevelWarning Level = "warning"
	LevelBad     Level = "bad"
)

const (
	badScoreBelow     = 50
	warningScoreBelow = 80
)

var badges = map[Level]string{
	LevelGood:    "LOW RISK",
	LevelWarning: "REVIEW",
	LevelBad:     "HIGH RISK",
}

// FinalRisk is the fused verdict.
type FinalRisk struct {
	Level       Level  `json:"level"`
	Badge       string `json:"badge"`
	Summary     string `json:"summary"`
	Explanation string `json:"explanation"`
}

// Resolve fuses the rule assessment with the AI verdict. Rule failures
// always win over the model.
func Resolve(verdict domain.Verdict, a Assessment) FinalRisk {
	var level Level
	var why []string

	switch {
	case a.HasFailure():
		level = LevelBad
		why = append(why, "one or more checks failed")
	case verdict == domain.VerdictFake:
		level = LevelBad
		why = append(why, "the AI judged the receipt fake")
	case a.Score < badScoreBelow:
		level = LevelBad
		why = append(why, fmt.Sprintf("score %d is below %d", a.Score, badScoreBelow))
	case verdict == domain.VerdictSuspicious || verdict == domain.VerdictUnreadable:
		level = LevelWarning
		why = append(why, "the AI verdict was "+strings.ToLower(string(verdict)))
	case a.Score < warningScoreBelow:
		level = LevelWarning
		why = append(why, fmt.Sprintf("score %d is below %d", a.Score, warningScoreBelow))
	default:
		level = LevelGood
	}

	return FinalRisk{
		Level:       level,
		Badge:       badges[level],
		Summary:     summarize(level, a.Score, verdict),
		Explanation: explain(why, a),
	}
}

// Resolve is a convenience wrapper for callers holding an Engine.
func (e *Engine) Resolve(verdict domain.Verdict, a Assessment) FinalRisk {
	return Resolve(verdict, a)
}

func summarize(level Level, score int, verdict domain.Verdict) string {
	v := string(verdict)
	if v == "" {
		v = "none"
	}
	switch level {
	case LevelGood:
		return fmt.Sprintf("Low risk: score %d/100, AI verdict %s", score, v)
	case LevelWarning:
		return fmt.Sprintf("Needs review: score %d/100, AI verdict %s", score, v)
	default:
		return fmt.Sprintf("High risk: score %d/100, AI verdict %s", score, v)
	}
}

func explain(why []string, a Assessment) string {
	var parts []string
	if len(why) > 0 {
		parts = append(parts, "Rated this way because "+strings.Join(why, "; ")+".")
	}
	for _, c := range a.Checks {
		if c.Status == StatusPass {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s %s %d] %s", c.Status, c.Name, c.Impact, c.Description))
	}
	if len(parts) == 0 {
		return "All checks passed."
	}
	return strings.Join(parts, " ")
}
