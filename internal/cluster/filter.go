package cluster

import (
	"regexp"
	"strings"
)

// Lexical signatures that mark an utterance as conversational feedback
// rather than a question. Matching any of these keeps the text out of
// the clustering path entirely.
var feedbackSignatures = []*regexp.Regexp{
	// greetings / sign-offs
	regexp.MustCompile(`(?i)^(hi|hello|hey|good (morning|afternoon|evening)|bye|goodbye|see you)\b`),
	// gratitude
	regexp.MustCompile(`(?i)\b(thanks|thank you|thx|ty|appreciated?|appreciate it)\b`),
	// understanding
	regexp.MustCompile(`(?i)\b(i (get|got) it|makes sense|understood|i understand( now)?|that helps?(ed)?|now i see)\b`),
	// short acknowledgements
	regexp.MustCompile(`(?i)^(ok|okay|cool|nice|great|perfect|awesome|got it|sure|yes|yep|no|nope)[.!]*$`),
}

// interrogative and action words that indicate a genuine question even
// in short, excited text ("how?!").
var questionWords = regexp.MustCompile(`(?i)\b(what|why|how|when|where|which|who|can|could|would|should|explain|help|show|tell|solve|define)\b`)

const shortExclamatoryLimit = 20

// IsFeedback classifies an utterance as feedback (not a question).
// Feedback never creates or updates a cluster.
func IsFeedback(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	for _, sig := range feedbackSignatures {
		if sig.MatchString(trimmed) {
			return true
		}
	}

	// Short exclamatory text with no interrogative or action words is
	// an emotional reaction, not a query.
	if len(trimmed) < shortExclamatoryLimit &&
		strings.HasSuffix(trimmed, "!") &&
		!questionWords.MatchString(trimmed) {
		return true
	}

	return false
}
