package feedback

import "regexp"

// Positive-sentiment signatures. Each distinct match contributes to the
// pattern score; the strong subset marks phrases that almost never
// appear in negative feedback.
var positivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(thanks|thank you|thx|ty)\b`),
	regexp.MustCompile(`(?i)\b(i (get|got) it|i understand( now)?|makes sense|now i see|that clears it up)\b`),
	regexp.MustCompile(`(?i)\b(perfect|excellent|brilliant|amazing|awesome|wonderful)\b`),
	regexp.MustCompile(`(?i)\b(that help(s|ed)|very helpful|so helpful|really helpful)\b`),
	regexp.MustCompile(`(?i)\b(great (answer|explanation)|good (answer|explanation)|well explained)\b`),
	regexp.MustCompile(`(?i)\b(exactly what i (needed|wanted)|just what i (needed|wanted))\b`),
	regexp.MustCompile(`(?i)\b(you('re| are) the best|love (it|this|that))\b`),
}

var strongPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(thanks|thank you)\b`),
	regexp.MustCompile(`(?i)\b(i understand( now)?|i (get|got) it)\b`),
	regexp.MustCompile(`(?i)\b(perfect|excellent)\b`),
}

const (
	perMatchWeight  = 0.3
	patternScoreCap = 0.8
	strongBonus     = 0.2
	strongScoreCap  = 0.9
)

// patternScore scores positive sentiment from lexical signatures alone:
// 0.3 per matching signature capped at 0.8, plus a 0.2 bonus capped at
// 0.9 overall when a strong phrase is present.
func patternScore(text string) float64 {
	matches := 0
	for _, p := range positivePatterns {
		if p.MatchString(text) {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}

	score := float64(matches) * perMatchWeight
	if score > patternScoreCap {
		score = patternScoreCap
	}

	for _, p := range strongPatterns {
		if p.MatchString(text) {
			score += strongBonus
			if score > strongScoreCap {
				score = strongScoreCap
			}
			break
		}
	}

	return score
}
