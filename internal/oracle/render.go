package oracle

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// MaxCandidateChars caps the rendered candidate list sent to a model.
const MaxCandidateChars = 150_000

// RenderCandidate formats one candidate the way prompts present it.
func RenderCandidate(c schemas.CandidateElement) string {
	return fmt.Sprintf(`<%s id="#%s" topic="%s" idx=%d />`, c.Tag, c.ID, c.Topic, c.Idx)
}

// RenderCandidates joins the candidates one per line, truncated to
// MaxCandidateChars bytes on a rune boundary.
func RenderCandidates(cands []schemas.CandidateElement) string {
	var b strings.Builder
	for i, c := range cands {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(RenderCandidate(c))
		if b.Len() > MaxCandidateChars {
			break
		}
	}
	return truncateString(b.String(), MaxCandidateChars)
}

// RenderHistory lists prior actions newest first. Each line is numbered
// "step.action." with both counters starting at 1, and steps are separated
// by a blank line.
func RenderHistory(history [][]schemas.ActionRecord) string {
	var steps []string
	for s := len(history) - 1; s >= 0; s-- {
		batch := history[s]
		var lines []string
		for a := len(batch) - 1; a >= 0; a-- {
			lines = append(lines, fmt.Sprintf("%d.%d. %s", s+1, a+1, batch[a].Summary))
		}
		steps = append(steps, strings.Join(lines, "\n"))
	}
	return strings.Join(steps, "\n\n")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
